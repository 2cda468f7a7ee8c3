/*
Package ports defines the driven and driving ports (interfaces) of the hotswap coordinator.

These interfaces decouple the coordinator core from the UI framework, the transport
towards dev tooling and the inbound channels delivering bundler updates.

# Key Interfaces

  - Runtime: mounts and tears down component instances (the UI framework).
  - PlaceholderRenderer: optional, renders stand-ins for failed instances.
  - Transport: receives ordered lifecycle events.
  - Coordinator: what inbound adapters (HTTP, MCP, Redis) drive.
*/
package ports
