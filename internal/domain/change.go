package domain

import "time"

// ChangeType mirrors the postgres change kinds.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
	// ChangeResync is emitted after a source reconnects and may have missed events.
	ChangeResync ChangeType = "RESYNC"
)

// ChangeEvent says that some row of Table owned by UserID changed.
// It is a wake-up signal only; subscribers refetch instead of trusting it.
type ChangeEvent struct {
	Type   ChangeType `json:"type"`
	Table  string     `json:"table"`
	UserID string     `json:"user_id"`
	At     time.Time  `json:"at"`
}
