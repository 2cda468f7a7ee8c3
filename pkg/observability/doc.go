/*
Package observability provides tools for monitoring the hotswap coordinator.

It turns lifecycle hooks into Prometheus metrics and lets several hook sets
observe the same coordinator.
*/
package observability
