package pgstore

import (
	"context"

	"github.com/BearBump/PackTrace/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

// ErrEmailExists сигнализирует нарушение UNIQUE(email) при регистрации.
var ErrEmailExists = errors.New("email already registered")

func (s *Storage) CreateUser(ctx context.Context, u models.User) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO users (id, email, password_hash, created_at)
VALUES ($1,$2,$3, now())
`, u.ID, u.Email, u.PasswordHash)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrEmailExists
		}
		return errors.Wrap(err, "insert user")
	}
	return nil
}

// UserByEmail returns (nil, nil) when no user has that email.
func (s *Storage) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(ctx, `
SELECT id, email, password_hash, created_at
FROM users
WHERE email = $1
`, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select user")
	}
	return &u, nil
}
