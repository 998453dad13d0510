package database

import (
	"context"
	"fmt"

	"arc-framework/sherlock/pkg/models"
)

// InsertTurn appends a conversation turn to the ordered history log.
// created_at is assigned by the server (DEFAULT now()); history ordering is
// by created_at, not by request arrival.
func (c *Client) InsertTurn(ctx context.Context, id, userID string, role models.Role, content string) error {
	_, err := c.pool.Exec(ctx,
		`INSERT INTO sherlock.conversations (id, user_id, role, content) VALUES ($1, $2, $3, $4)`,
		id, userID, string(role), content,
	)
	if err != nil {
		return fmt.Errorf("inserting conversation turn: %w", err)
	}
	return nil
}

// RecentTurns returns the most recent turns for a user in reverse
// chronological order, capped at limit. Used by the dev endpoints and
// operational tooling; the reasoning path reads history through the vector
// index instead.
func (c *Client) RecentTurns(ctx context.Context, userID string, limit int) ([]models.ConversationTurn, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT id, user_id, role, content, created_at
		   FROM sherlock.conversations
		  WHERE user_id = $1
		  ORDER BY created_at DESC
		  LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying conversation history: %w", err)
	}
	defer rows.Close()

	var turns []models.ConversationTurn
	for rows.Next() {
		var t models.ConversationTurn
		var role string
		if err := rows.Scan(&t.ID, &t.UserID, &role, &t.Content, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning conversation turn: %w", err)
		}
		t.Role = models.Role(role)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversation history: %w", err)
	}

	return turns, nil
}
