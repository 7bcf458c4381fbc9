package lightpack

import "errors"

// Domain errors for the lightpack package. They appear as the cause inside
// *entity.Error values.
var (
	// ErrNotConnected is returned when a call is made without a session.
	ErrNotConnected = errors.New("lightpack: not connected")

	// ErrAuthFailed is returned when Prismatik rejects the API key.
	ErrAuthFailed = errors.New("lightpack: api key rejected")

	// ErrRejected is returned when a set command is not acknowledged with "ok".
	ErrRejected = errors.New("lightpack: command rejected")

	// ErrBusy is returned when another client holds the device lock.
	ErrBusy = errors.New("lightpack: device locked by another client")

	// ErrNotLocked is returned when unlocking a device this session does not hold.
	ErrNotLocked = errors.New("lightpack: not locked")

	// ErrUnexpectedReply is returned when a reply does not have the expected shape.
	ErrUnexpectedReply = errors.New("lightpack: unexpected reply")
)

// ErrHostRequired is returned by NewLight when no host is configured.
var ErrHostRequired = errors.New("lightpack: host is required")
