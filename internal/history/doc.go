// Package history keeps an append-only SQLite log of every state an entity
// published.
//
// The log is for operators and the HTTP API. Nothing in it is ever read back
// into an adapter: after a restart every entity starts Disconnected and
// learns its state from the device.
package history
