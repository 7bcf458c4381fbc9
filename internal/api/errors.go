package api

import (
	"encoding/json"
	"net/http"
)

// Problem is the body of every non-2xx response. The command fields are
// only filled for failed entity commands.
type Problem struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`

	CommandID string `json:"command_id,omitempty"`
	AckCode   string `json:"ack_code,omitempty"`
	Kind      string `json:"kind,omitempty"`
}

// Problem codes, one per HTTP status family the API returns.
const (
	CodeBadRequest  = "bad_request"
	CodeNotFound    = "not_found"
	CodeInternal    = "internal_error"
	CodeUnavailable = "service_unavailable"
)

// codeFor maps an HTTP status onto its problem code.
func codeFor(status int) string {
	switch {
	case status == http.StatusNotFound:
		return CodeNotFound
	case status == http.StatusBadGateway, status == http.StatusServiceUnavailable:
		return CodeUnavailable
	case status >= 400 && status < 500:
		return CodeBadRequest
	default:
		return CodeInternal
	}
}

func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	//nolint:errcheck // client may already be gone
	json.NewEncoder(w).Encode(body)
}

// fail writes p with its code derived from status and the request ID
// stamped by requestIDMiddleware.
func fail(w http.ResponseWriter, r *http.Request, status int, p Problem) {
	if p.Code == "" {
		p.Code = codeFor(status)
	}
	if id, ok := r.Context().Value(ctxKeyRequestID).(string); ok {
		p.RequestID = id
	}
	respond(w, status, p)
}

func failf(w http.ResponseWriter, r *http.Request, status int, message string) {
	fail(w, r, status, Problem{Message: message})
}
