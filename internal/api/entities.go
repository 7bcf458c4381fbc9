package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-av/internal/bridge"
	"github.com/nerrad567/gray-logic-av/internal/entity"
	"github.com/nerrad567/gray-logic-av/internal/history"
)

// CommandRequest is the body of POST /entities/{id}/commands.
type CommandRequest struct {
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// CommandResponse is returned once a command has been run.
type CommandResponse struct {
	CommandID string `json:"command_id"`
	Status    string `json:"status"`
}

func (s *Server) handleListEntities(w http.ResponseWriter, _ *http.Request) {
	snaps := s.entities.Entities()
	respond(w, http.StatusOK, map[string]any{
		"entities": snaps,
		"count":    len(snaps),
	})
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, ok := s.entities.Entity(id)
	if !ok {
		failf(w, r, http.StatusNotFound, "entity not found")
		return
	}
	respond(w, http.StatusOK, snap)
}

// handleCommand runs a command synchronously. 202 means the device accepted
// it; the state change itself arrives through the normal publish path.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.entities.Entity(id); !ok {
		failf(w, r, http.StatusNotFound, "entity not found")
		return
	}

	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		failf(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Command == "" {
		failf(w, r, http.StatusBadRequest, "command is required")
		return
	}

	commandID, err := s.entities.Execute(r.Context(), id, entity.Command{
		Name:   req.Command,
		Params: req.Parameters,
	})
	if err != nil {
		s.writeCommandError(w, r, commandID, err)
		return
	}

	respond(w, http.StatusAccepted, CommandResponse{
		CommandID: commandID,
		Status:    string(bridge.AckCompleted),
	})
}

// writeCommandError turns an ack error code into an HTTP status. Device side
// failures are reported as 502 since the API itself did its job.
func (s *Server) writeCommandError(w http.ResponseWriter, r *http.Request, commandID string, err error) {
	ack := bridge.ErrorCode(err)

	var status int
	switch ack {
	case bridge.ErrCodeNotConfigured:
		status = http.StatusNotFound
	case bridge.ErrCodeInvalidCommand, bridge.ErrCodeInvalidParameters:
		status = http.StatusBadRequest
	case bridge.ErrCodeBridgeError:
		status = http.StatusInternalServerError
	default:
		status = http.StatusBadGateway
	}

	p := Problem{Message: err.Error(), CommandID: commandID, AckCode: ack}
	if entErr := (*entity.Error)(nil); errors.As(err, &entErr) {
		p.Kind = entErr.Kind.String()
	}
	fail(w, r, status, p)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		failf(w, r, http.StatusNotFound, "state history is disabled")
		return
	}

	id := chi.URLParam(r, "id")
	if _, ok := s.entities.Entity(id); !ok {
		failf(w, r, http.StatusNotFound, "entity not found")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			failf(w, r, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	limit = history.ClampLimit(limit)

	entries, err := s.history.GetHistory(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("failed to read state history", "entity_id", id, "error", err)
		failf(w, r, http.StatusInternalServerError, "failed to read state history")
		return
	}

	respond(w, http.StatusOK, map[string]any{
		"entity_id": id,
		"history":   entries,
		"count":     len(entries),
		"limit":     limit,
	})
}
