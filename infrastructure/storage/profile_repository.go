package storage

import (
	"context"
	"database/sql"
	"errors"

	"chat-relay/domain"
)

// GetProfile returns nil without error when no profile row exists; the
// resolver then falls back to the lowest-privilege defaults.
func (s *Store) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	query := `
		SELECT user_id, COALESCE(display_name, ''), COALESCE(role, 'member')
		FROM profiles
		WHERE user_id = $1
	`
	var p domain.Profile
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&p.UserID, &p.DisplayName, &p.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
