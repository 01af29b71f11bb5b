package pgstore

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS tracking_history (
  id BIGSERIAL PRIMARY KEY,
  tracking_number TEXT NOT NULL,
  carrier TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL,
  location TEXT NULL,
  description TEXT NULL,
  observed_at TIMESTAMPTZ NOT NULL,
  user_id TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		// Append-only log: reads always key on (tracking_number, observed_at).
		`CREATE INDEX IF NOT EXISTS idx_tracking_history_number_observed_at ON tracking_history(tracking_number, observed_at DESC)`,
		`
CREATE TABLE IF NOT EXISTS saved_trackings (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  tracking_number TEXT NOT NULL,
  carrier TEXT NOT NULL,
  alias TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  UNIQUE (user_id, tracking_number)
)`,
		`
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
