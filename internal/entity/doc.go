// Package entity holds the state-synchronisation model shared by every
// device adapter in the bridge.
//
// An adapter polls a remote device, normalises what it reads into a cached
// snapshot, and translates host commands into best-effort vendor calls. This
// package supplies the pieces those adapters have in common:
//
//   - Kind and Error: the closed taxonomy of device failures
//     (CommandFailed, CannotConnect, Other)
//   - ConnState and Availability: the Disconnected/Connected/Unavailable
//     state machine
//   - ToPlatform and ToNative: brightness conversion between a device's
//     0-100 scale and the host's 0-255 scale
//   - Command: a host command with loosely typed parameters
//   - Entity: the interface the scheduler drives
//
// # Availability rules
//
// Only a successful connect inside a poll moves an adapter to Connected.
// A connection-class failure moves a Connected adapter to Unavailable.
// CommandFailed never changes availability.
//
// # Thread Safety
//
// Nothing here locks. The scheduler runs one routine at a time per adapter.
package entity
