package enigma2

import "errors"

// Domain errors for the enigma2 package.
var (
	// ErrHostRequired is returned by NewPlayer when no host is configured.
	ErrHostRequired = errors.New("enigma2: host is required")

	// ErrHTTPStatus is returned when OpenWebif answers with a non-2xx status.
	ErrHTTPStatus = errors.New("enigma2: unexpected http status")

	// ErrRejected is returned when OpenWebif answers {"result": false}.
	ErrRejected = errors.New("enigma2: request rejected")

	// ErrDecode is returned when a response body is not the expected JSON.
	ErrDecode = errors.New("enigma2: invalid response body")

	// ErrNoBouquets is returned when the receiver lists no bouquets.
	ErrNoBouquets = errors.New("enigma2: no bouquets")

	// ErrUnknownSource is returned when selecting a source not in the catalogue.
	ErrUnknownSource = errors.New("enigma2: unknown source")
)
