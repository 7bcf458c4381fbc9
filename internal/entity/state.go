package entity

import "time"

// ConnState is an adapter's connection state.
type ConnState int

const (
	// Disconnected: never connected, or closed.
	Disconnected ConnState = iota

	// Connected: the last connect or poll succeeded.
	Connected

	// Unavailable: was connected, then a connection-class failure occurred.
	Unavailable
)

func (s ConnState) String() string {
	switch s {
	case Connected:
		return "connected"
	case Unavailable:
		return "unavailable"
	default:
		return "disconnected"
	}
}

// Availability tracks one adapter's ConnState.
// The zero value is Disconnected.
type Availability struct {
	state     ConnState
	lastErr   error
	changedAt time.Time
}

// State returns the current state.
func (a *Availability) State() ConnState { return a.state }

// Available reports whether the adapter is Connected.
func (a *Availability) Available() bool { return a.state == Connected }

// LastError returns the failure that last moved the adapter away from Connected.
func (a *Availability) LastError() error { return a.lastErr }

// ChangedAt returns when the state last changed.
func (a *Availability) ChangedAt() time.Time { return a.changedAt }

// MarkConnected records a successful connect. Only poll routines call this.
func (a *Availability) MarkConnected() {
	a.lastErr = nil
	a.set(Connected)
}

// MarkUnavailable records a failure that makes the device's state unknowable,
// such as an unparseable status literal, regardless of its error kind.
// A Disconnected adapter stays Disconnected.
func (a *Availability) MarkUnavailable(err error) {
	a.lastErr = err
	if a.state == Connected {
		a.set(Unavailable)
	}
}

// Fail applies err's kind to the state. CommandFailed leaves the state alone;
// every other kind behaves like MarkUnavailable. It reports whether the state changed.
func (a *Availability) Fail(err error) bool {
	if err == nil || KindOf(err) == KindCommandFailed {
		return false
	}
	before := a.state
	a.MarkUnavailable(err)
	return a.state != before
}

// MarkDisconnected records an orderly close.
func (a *Availability) MarkDisconnected() {
	a.set(Disconnected)
}

func (a *Availability) set(s ConnState) {
	if a.state != s {
		a.state = s
		a.changedAt = time.Now()
	}
}
