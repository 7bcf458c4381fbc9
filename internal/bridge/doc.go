// Package bridge schedules the AV entities and connects them to the rest of
// Gray Logic.
//
// The Bridge owns every configured entity. For each one it:
//   - polls on a fixed interval, one goroutine per entity
//   - publishes the host-facing state (retained, QoS 1) when it changes
//   - forwards changes to telemetry, state history and WebSocket listeners
//   - executes commands arriving over MQTT or the HTTP API
//
// Adapter calls for one entity never overlap: polls and commands take the
// entity's lock. Readers of the last published state (the API, health
// reporting) never wait for a device.
//
// MQTT topics use the flat bridge scheme with protocol "av":
//
//	graylogic/state/av/{entity_id}    state (retained)
//	graylogic/command/av/{entity_id}  commands in
//	graylogic/ack/av/{entity_id}      command acknowledgements
//	graylogic/health/av               bridge health (retained, LWT)
package bridge
