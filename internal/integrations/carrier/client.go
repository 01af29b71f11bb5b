package carrier

import (
	"context"

	"github.com/BearBump/PackTrace/internal/models"
)

// Client looks up a tracking number at an already-identified carrier.
//
// Two failure modes, deliberately distinct:
//   - the carrier authoritatively does not know the number: a normal
//     UnifiedTrackingInfo is returned with Error set, CurrentStatus
//     "Exception" and no events;
//   - transport problems (timeout, malformed response) surface as the
//     returned error and must never be folded into the first case.
//
// Calling with models.CarrierUnknown is a contract violation; the pipeline
// rejects unknown formats before it ever reaches a Client.
type Client interface {
	GetTracking(ctx context.Context, trackingNumber string, c models.Carrier) (models.UnifiedTrackingInfo, error)
}
