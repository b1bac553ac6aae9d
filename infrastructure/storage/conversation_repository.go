package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"chat-relay/domain"
)

func (s *Store) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	query := `
		SELECT id, is_read_only, updated_at FROM conversations
		WHERE id = $1
	`
	var c domain.Conversation
	err := s.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.IsReadOnly, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// TouchConversation advances the conversation's last-activity timestamp.
// Sends and poll creations call this; edits never do.
func (s *Store) TouchConversation(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE conversations SET updated_at = $2
		WHERE id = $1
	`
	_, err := s.db.ExecContext(ctx, query, id, at)
	return err
}
