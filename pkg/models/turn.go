package models

import "time"

// ConversationTurn is one persisted utterance. The same ID is used for the
// Qdrant point and the PostgreSQL row; a turn missing from either store is
// treated as absent. Turns are append-only: never updated, never deleted by
// the service (retention is an operational concern).
type ConversationTurn struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
