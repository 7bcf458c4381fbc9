// Package api implements the HTTP REST API and WebSocket stream for the AV
// bridge.
//
// This package provides:
//   - REST endpoints to list entities, read their state, send commands and
//     page through recorded state history
//   - A WebSocket hub that relays state changes as they are published
//   - Middleware: request IDs, access logging, panic recovery and a body cap
//
// # Architecture
//
// The API is a thin surface over the bridge. Reads come from the bridge's
// last published snapshots and never touch a device; commands go through
// the same serialised path as MQTT commands, so acks are published for both.
//
// # Graceful Degradation
//
// History endpoints return 404 when the state history database is disabled.
// Everything else works without it.
package api
