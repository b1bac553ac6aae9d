package storage

import (
	"context"

	"chat-relay/domain"
)

// ListReactions returns the raw reaction rows for one message. The relay
// aggregates on demand and never caches the result.
func (s *Store) ListReactions(ctx context.Context, messageID string) ([]domain.Reaction, error) {
	query := `
		SELECT message_id, user_id, emoji FROM message_reactions
		WHERE message_id = $1
	`
	rows, err := s.db.QueryContext(ctx, query, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reactions []domain.Reaction
	for rows.Next() {
		var r domain.Reaction
		if err := rows.Scan(&r.MessageID, &r.UserID, &r.Emoji); err != nil {
			return nil, err
		}
		reactions = append(reactions, r)
	}
	return reactions, rows.Err()
}
