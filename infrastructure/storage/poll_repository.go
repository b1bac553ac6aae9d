package storage

import (
	"context"
	"database/sql"
	"errors"

	"chat-relay/domain"
)

func (s *Store) InsertPoll(ctx context.Context, p domain.Poll) error {
	query := `
		INSERT INTO polls (id, conversation_id, created_by, question, allow_multiple)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.ConversationID, p.CreatedBy, p.Question, p.AllowMultiple)
	return err
}

func (s *Store) InsertPollOptions(ctx context.Context, options []domain.PollOption) error {
	query := `
		INSERT INTO poll_options (id, poll_id, text, order_index)
		VALUES ($1, $2, $3, $4)
	`
	for _, o := range options {
		if _, err := s.db.ExecContext(ctx, query, o.ID, o.PollID, o.Text, o.OrderIndex); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetPoll(ctx context.Context, id string) (*domain.Poll, error) {
	query := `
		SELECT id, conversation_id, created_by, question, allow_multiple
		FROM polls
		WHERE id = $1
	`
	var p domain.Poll
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.ConversationID, &p.CreatedBy, &p.Question, &p.AllowMultiple)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetPollOptions(ctx context.Context, pollID string) ([]domain.PollOption, error) {
	query := `
		SELECT id, poll_id, text, order_index FROM poll_options
		WHERE poll_id = $1
		ORDER BY order_index
	`
	rows, err := s.db.QueryContext(ctx, query, pollID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var options []domain.PollOption
	for rows.Next() {
		var o domain.PollOption
		if err := rows.Scan(&o.ID, &o.PollID, &o.Text, &o.OrderIndex); err != nil {
			return nil, err
		}
		options = append(options, o)
	}
	return options, rows.Err()
}

func (s *Store) ListVotes(ctx context.Context, pollID string) ([]domain.Vote, error) {
	query := `
		SELECT poll_id, option_id, user_id, created_at FROM poll_votes
		WHERE poll_id = $1
	`
	rows, err := s.db.QueryContext(ctx, query, pollID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var votes []domain.Vote
	for rows.Next() {
		var v domain.Vote
		if err := rows.Scan(&v.PollID, &v.OptionID, &v.UserID, &v.CreatedAt); err != nil {
			return nil, err
		}
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

// UpsertVote relies on the (poll_id, option_id, user_id) unique triple:
// re-casting an already-held vote is a data-level no-op.
func (s *Store) UpsertVote(ctx context.Context, v domain.Vote) error {
	query := `
		INSERT INTO poll_votes (poll_id, option_id, user_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (poll_id, option_id, user_id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query, v.PollID, v.OptionID, v.UserID, v.CreatedAt)
	return err
}

// DeleteOtherVotes clears the user's votes on every option of the poll
// except the kept one. Single-choice semantics only; deleting rows that
// don't exist is a no-op.
func (s *Store) DeleteOtherVotes(ctx context.Context, pollID, keepOptionID, userID string) error {
	query := `
		DELETE FROM poll_votes
		WHERE poll_id = $1 AND user_id = $2 AND option_id <> $3
	`
	_, err := s.db.ExecContext(ctx, query, pollID, userID, keepOptionID)
	return err
}
