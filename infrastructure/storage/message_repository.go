package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"chat-relay/domain"
)

func (s *Store) InsertMessage(ctx context.Context, m domain.Message) error {
	query := `
		INSERT INTO messages (
			id, conversation_id, sender_id, text, type,
			file_url, file_name, reply_to_id, poll_id,
			edited, deleted_for_all, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), $10, $11, $12, $13)
	`
	_, err := s.db.ExecContext(ctx, query,
		m.ID, m.ConversationID, m.SenderID, m.Text, m.Type,
		m.FileURL, m.FileName, m.ReplyToID, m.PollID,
		m.Edited, m.DeletedForAll, m.CreatedAt, m.UpdatedAt,
	)
	return err
}

func (s *Store) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, text, type,
			COALESCE(file_url, ''), COALESCE(file_name, ''),
			COALESCE(reply_to_id, ''), COALESCE(poll_id, ''),
			edited, deleted_for_all, created_at, updated_at
		FROM messages
		WHERE id = $1
	`
	var m domain.Message
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&m.ID, &m.ConversationID, &m.SenderID, &m.Text, &m.Type,
		&m.FileURL, &m.FileName, &m.ReplyToID, &m.PollID,
		&m.Edited, &m.DeletedForAll, &m.CreatedAt, &m.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// UpdateMessageText rewrites the body and marks the message edited. Only
// the message's own timestamp moves.
func (s *Store) UpdateMessageText(ctx context.Context, id, text string, at time.Time) error {
	query := `
		UPDATE messages SET text = $2, edited = TRUE, updated_at = $3
		WHERE id = $1
	`
	_, err := s.db.ExecContext(ctx, query, id, text, at)
	return err
}
