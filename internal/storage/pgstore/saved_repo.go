package pgstore

import (
	"context"
	"time"

	"github.com/BearBump/PackTrace/internal/models"
	"github.com/pkg/errors"
)

// UpsertSavedTracking creates the (user, tracking number) association or
// conditionally updates its alias, in one atomic statement. The update arm
// fires only when a non-empty alias was supplied AND it differs from the
// stored one: a lookup without an alias never clears an existing alias, and
// re-sending the same alias writes nothing. The UNIQUE constraint makes the
// check-then-act race under concurrent lookups a non-issue.
func (s *Storage) UpsertSavedTracking(ctx context.Context, st models.SavedTracking) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO saved_trackings (id, user_id, tracking_number, carrier, alias, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5, now(), now())
ON CONFLICT (user_id, tracking_number)
DO UPDATE SET alias = EXCLUDED.alias, updated_at = now()
WHERE EXCLUDED.alias IS NOT NULL
  AND EXCLUDED.alias <> ''
  AND saved_trackings.alias IS DISTINCT FROM EXCLUDED.alias
`, st.ID, st.UserID, st.TrackingNumber, string(st.Carrier), st.Alias)
	return errors.Wrap(err, "upsert saved tracking")
}

func (s *Storage) ListSavedTrackings(ctx context.Context, userID string) ([]*models.SavedTracking, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, user_id, tracking_number, carrier, alias, created_at, updated_at
FROM saved_trackings
WHERE user_id = $1
ORDER BY created_at DESC
`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "select saved trackings")
	}
	defer rows.Close()

	var out []*models.SavedTracking
	for rows.Next() {
		var st models.SavedTracking
		var carrier string
		var alias *string
		var createdAt, updatedAt time.Time
		if err := rows.Scan(&st.ID, &st.UserID, &st.TrackingNumber, &carrier, &alias, &createdAt, &updatedAt); err != nil {
			return nil, errors.Wrap(err, "scan saved tracking")
		}
		st.Carrier = models.Carrier(carrier)
		st.Alias = alias
		st.CreatedAt = createdAt
		st.UpdatedAt = updatedAt
		out = append(out, &st)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
