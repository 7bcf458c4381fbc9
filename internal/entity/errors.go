package entity

import (
	"errors"
	"fmt"
)

// Kind classifies a device failure.
type Kind int

const (
	// KindOther is anything the vendor API did not classify.
	KindOther Kind = iota

	// KindCommandFailed means the device answered but rejected the request.
	KindCommandFailed

	// KindCannotConnect means the transport to the device failed.
	KindCannotConnect
)

// String returns the kind name used in logs and acks.
func (k Kind) String() string {
	switch k {
	case KindCommandFailed:
		return "command_failed"
	case KindCannotConnect:
		return "cannot_connect"
	default:
		return "other"
	}
}

// Kind sentinels. errors.Is(err, ErrCannotConnect) matches any *Error of that kind.
var (
	ErrCommandFailed = errors.New("command failed")
	ErrCannotConnect = errors.New("cannot connect")
	ErrOther         = errors.New("unexpected device error")
)

// Host-side errors raised before any device call is made.
var (
	ErrUnsupportedCommand = errors.New("unsupported command")
	ErrInvalidParameters  = errors.New("invalid parameters")
)

// Error is a classified device failure.
type Error struct {
	Kind Kind
	Op   string // vendor operation, e.g. "getstatus" or "api/zap"
	Err  error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.sentinel())
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.sentinel(), e.Err)
}

// Unwrap exposes both the kind sentinel and the cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.sentinel()}
	}
	return []error{e.sentinel(), e.Err}
}

func (e *Error) sentinel() error {
	switch e.Kind {
	case KindCommandFailed:
		return ErrCommandFailed
	case KindCannotConnect:
		return ErrCannotConnect
	default:
		return ErrOther
	}
}

// CommandFailed wraps err as a KindCommandFailed error.
func CommandFailed(op string, err error) error {
	return &Error{Kind: KindCommandFailed, Op: op, Err: err}
}

// CannotConnect wraps err as a KindCannotConnect error.
func CannotConnect(op string, err error) error {
	return &Error{Kind: KindCannotConnect, Op: op, Err: err}
}

// Other wraps err as a KindOther error.
func Other(op string, err error) error {
	return &Error{Kind: KindOther, Op: op, Err: err}
}

// KindOf reports the kind of err. Errors that carry no kind are KindOther.
// Callers check err != nil first; KindOf(nil) is KindOther.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindOther
}

// Recover converts a panic in the calling routine into a KindOther error.
// Use as: defer entity.Recover("update", &err)
func Recover(op string, errp *error) {
	if r := recover(); r != nil {
		*errp = Other(op, fmt.Errorf("panic: %v", r))
	}
}
