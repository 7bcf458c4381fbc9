package history

import (
	"context"
	"time"
)

// Sources of a recorded state.
const (
	SourcePoll    = "poll"
	SourceCommand = "command"
)

// Entry is one recorded state.
type Entry struct {
	ID        int64          `json:"id"`
	EntityID  string         `json:"entity_id"`
	State     map[string]any `json:"state"`
	Source    string         `json:"source"`
	CreatedAt time.Time      `json:"created_at"`
}

// Repository stores and queries state history.
//
// Implementations must be safe for concurrent use.
type Repository interface {
	RecordStateChange(ctx context.Context, entityID string, state map[string]any, source string) error

	// GetHistory returns entries newest first. limit is clamped to [1, 200],
	// with 0 meaning 50.
	GetHistory(ctx context.Context, entityID string, limit int) ([]Entry, error)

	// Prune deletes entries older than olderThan and returns how many.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}
