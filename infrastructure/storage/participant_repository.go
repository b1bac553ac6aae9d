package storage

import (
	"context"
	"time"
)

func (s *Store) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM participants
			WHERE conversation_id = $1 AND user_id = $2
		)
	`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, conversationID, userID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// ConversationsOf sources the user's room memberships. It is called once
// per connection at connect time and never re-polled afterward.
func (s *Store) ConversationsOf(ctx context.Context, userID string) ([]string, error) {
	query := `
		SELECT conversation_id FROM participants
		WHERE user_id = $1
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateLastRead advances the caller's own participant row. Zero rows
// touched means the caller is not a participant.
func (s *Store) UpdateLastRead(ctx context.Context, conversationID, userID string, at time.Time) (bool, error) {
	query := `
		UPDATE participants SET last_read_at = $3
		WHERE conversation_id = $1 AND user_id = $2
	`
	result, err := s.db.ExecContext(ctx, query, conversationID, userID, at)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
