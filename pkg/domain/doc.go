/*
Package domain contains the core models of the hotswap coordinator.

It defines the entities exchanged between the bundler, the coordinator and the UI
framework runtime. This package is kept pure and free of external dependencies
like I/O or transports, following Hexagonal Architecture principles.

# Key Entities

  - ModuleRecord / UpdatePacket: what the bundler hands over per change cycle.
  - ComponentInstance: a live node of the UI tree, with a key-based state Handle.
  - StateSnapshot: preservable state captured right before a replacement.
  - InstanceState: the Live | Placeholder variant stored per instance id.
  - Decision: hot-swap per subtree, or a single full reload.
  - Event: ordered lifecycle records consumed by tooling.
*/
package domain
