// Package realtime implements the connection registry and per-connection
// lifecycle for the gateway.
//
// The registry:
//   - Owns the set of live logical connections, keyed by
//     (service, canonical params, tab identity)
//   - Guarantees at most one connection per identity key (Connect is
//     idempotent)
//   - Runs a periodic health-check ping per connection
//   - Recovers from unexpected closes with exponential backoff, up to a
//     fixed attempt cap, then surfaces a terminal reconnection_failed event
//   - Publishes inbound frames and lifecycle events on the event bus
package realtime
