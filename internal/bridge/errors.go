package bridge

import "errors"

var (
	// ErrUnknownEntity is returned for commands addressed to an entity id
	// that is not configured.
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrMQTTRequired is returned by New when no MQTT client is supplied.
	ErrMQTTRequired = errors.New("MQTT client is required")

	// ErrDuplicateEntity is returned by New when two entities share an id.
	ErrDuplicateEntity = errors.New("duplicate entity id")
)
