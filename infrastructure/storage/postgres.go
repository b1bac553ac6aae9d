// Package storage implements the relational collaborator over PostgreSQL.
// Everything here is point queries and single-row writes; the relay never
// opens a multi-statement transaction, so every caller must tolerate
// partial sequences (see the poll creation path in services).
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	connectAttempts = 5
	connectBackoff  = 2 * time.Second
	pingTimeout     = 5 * time.Second
)

// Connect opens the store and verifies it with a ping, retrying a few
// times so the relay survives a database that is still booting.
func Connect(ctx context.Context, url string, log *slog.Logger) (*sql.DB, error) {
	var lastErr error

	for attempt := 1; attempt <= connectAttempts; attempt++ {
		db, err := sql.Open("pgx", url)
		if err != nil {
			return nil, fmt.Errorf("invalid store url: %w", err)
		}

		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err = db.PingContext(pingCtx)
		cancel()
		if err == nil {
			log.Info("Store connected", "attempt", attempt)
			return db, nil
		}

		lastErr = err
		_ = db.Close()
		log.Warn("Store unreachable, retrying",
			"attempt", attempt, "max", connectAttempts, "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(connectBackoff):
		}
	}

	return nil, fmt.Errorf("store unreachable after %d attempts: %w", connectAttempts, lastErr)
}

// Store implements contract.Store and contract.ProfileStore against one
// *sql.DB handle.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

func NewStore(db *sql.DB, log *slog.Logger) *Store {
	return &Store{db: db, log: log}
}
