package pgstore

import (
	"context"
	"time"

	"github.com/BearBump/PackTrace/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// AppendHistory — безусловная вставка: журнал append-only, дедупликации нет,
// каждый успешный лукап даёт ровно одну запись.
func (s *Storage) AppendHistory(ctx context.Context, e models.HistoryEntry) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO tracking_history (
  tracking_number, carrier, status, location, description, observed_at, user_id, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7, now())
`, e.TrackingNumber, string(e.Carrier), e.Status, e.Location, e.Description, e.ObservedAt.UTC(), e.UserID)
	return errors.Wrap(err, "insert history entry")
}

// LatestHistory returns the entry with the maximum observed_at for the key.
// Entries may be appended out of timestamp order, so "latest" is decided by
// observed_at, never by insertion order. Returns (nil, nil) when the number
// has never been seen.
func (s *Storage) LatestHistory(ctx context.Context, trackingNumber string) (*models.HistoryEntry, error) {
	row := s.db.QueryRow(ctx, `
SELECT
  id, tracking_number, carrier, status, location, description,
  observed_at, user_id, created_at
FROM tracking_history
WHERE tracking_number = $1
ORDER BY observed_at DESC
LIMIT 1
`, trackingNumber)

	e, err := scanHistoryEntry(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select latest history")
	}
	return e, nil
}

// ListHistory returns all entries for the key ascending by observed_at.
// An empty slice is a normal answer; "never seen" and "zero entries" are
// indistinguishable here on purpose.
func (s *Storage) ListHistory(ctx context.Context, trackingNumber string) ([]*models.HistoryEntry, error) {
	rows, err := s.db.Query(ctx, `
SELECT
  id, tracking_number, carrier, status, location, description,
  observed_at, user_id, created_at
FROM tracking_history
WHERE tracking_number = $1
ORDER BY observed_at ASC
`, trackingNumber)
	if err != nil {
		return nil, errors.Wrap(err, "select history")
	}
	defer rows.Close()

	var out []*models.HistoryEntry
	for rows.Next() {
		e, err := scanHistoryEntry(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan history entry")
		}
		out = append(out, e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHistoryEntry(row rowScanner) (*models.HistoryEntry, error) {
	var e models.HistoryEntry
	var carrier string
	var location, description, userID *string
	var observedAt, createdAt time.Time
	if err := row.Scan(
		&e.ID, &e.TrackingNumber, &carrier, &e.Status, &location, &description,
		&observedAt, &userID, &createdAt,
	); err != nil {
		return nil, err
	}
	e.Carrier = models.Carrier(carrier)
	e.Location = location
	e.Description = description
	e.ObservedAt = observedAt
	e.UserID = userID
	e.CreatedAt = createdAt
	return &e, nil
}
