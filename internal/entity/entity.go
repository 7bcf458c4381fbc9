package entity

import "context"

// Logger is the structured logger adapters receive at construction.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger { return nopLogger{} }

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return nopLogger{}
	}
	return l
}

// Entity is a device adapter as the scheduler sees it.
//
// Implementations are not safe for concurrent use. The caller serialises
// Update, Execute and Close per entity.
type Entity interface {
	// ID is the stable identifier used in topics and URLs.
	ID() string

	// Name is the display name.
	Name() string

	// Protocol names the vendor API, e.g. "lightpack".
	Protocol() string

	// Available reports whether the adapter is Connected.
	Available() bool

	// Update polls the device and refreshes the cached snapshot.
	Update(ctx context.Context) error

	// State returns the host-facing view of the cached snapshot.
	State() map[string]any

	// Execute runs a host command best-effort.
	Execute(ctx context.Context, cmd Command) error

	// Close releases device sessions.
	Close(ctx context.Context) error
}
