// Package connection provides the reconnecting network clients that venue
// adapters are built on: a line-framed TCP client with optional TLS and a
// WebSocket client, both with heartbeats, exponential-backoff reconnection
// and a shared atomic connection mode.
//
// Lifecycle coordination between the read, heartbeat and controller
// goroutines happens exclusively through the State atomic; there is no other
// shared mutable lifecycle state.
package connection
