package sim

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BearBump/PackTrace/internal/integrations/carrier"
	"github.com/BearBump/PackTrace/internal/models"
	"github.com/pkg/errors"
)

// Client — симуляция источников данных перевозчиков (реальных интеграций нет).
// Ответы детерминированы по трек-номеру, чтобы сценарии были воспроизводимы:
// фиксированные "доставленные" номера, маркеры ERROR/INVALID для not-found.
type Client struct{}

func New() *Client { return &Client{} }

func (c *Client) GetTracking(ctx context.Context, trackingNumber string, carrierTag models.Carrier) (models.UnifiedTrackingInfo, error) {
	if err := ctx.Err(); err != nil {
		return models.UnifiedTrackingInfo{}, errors.Wrap(err, "sim lookup")
	}

	switch carrierTag {
	case models.CarrierUPS:
		return c.upsTracking(trackingNumber), nil
	case models.CarrierUSPS:
		return c.uspsTracking(trackingNumber), nil
	case models.CarrierFedEx, models.CarrierDHL, models.CarrierAmazonLogistics, models.CarrierOnTrac:
		return c.genericTracking(trackingNumber, carrierTag), nil
	default:
		return models.UnifiedTrackingInfo{}, errors.Errorf("no tracking source for carrier %q", carrierTag)
	}
}

func (c *Client) upsTracking(trackingNumber string) models.UnifiedTrackingInfo {
	now := time.Now().UTC()

	switch {
	case trackingNumber == "1Z9999999999999999":
		delivered := now.Add(-24 * time.Hour)
		return models.UnifiedTrackingInfo{
			TrackingNumber:    trackingNumber,
			Carrier:           models.CarrierUPS,
			CurrentStatus:     "Delivered",
			EstimatedDelivery: &delivered,
			TrackingEvents: []models.TrackingEvent{
				{Status: "Delivered", Location: ptr("Santo Domingo, DO"), Timestamp: now.Add(-24 * time.Hour), Description: ptr("Delivered to front door")},
				{Status: "Out for Delivery", Location: ptr("Santo Domingo, DO"), Timestamp: now.Add(-30 * time.Hour)},
				{Status: "In Transit", Location: ptr("Miami, FL"), Timestamp: now.Add(-48 * time.Hour), Description: ptr("Departed from UPS facility")},
				{Status: "Origin Scan", Location: ptr("Atlanta, GA"), Timestamp: now.Add(-72 * time.Hour)},
			},
			LastUpdated: now,
		}
	case trackingNumber == "1ZABCDEF1234567890":
		eta := now.Add(2 * 24 * time.Hour)
		return models.UnifiedTrackingInfo{
			TrackingNumber:    trackingNumber,
			Carrier:           models.CarrierUPS,
			CurrentStatus:     "In Transit",
			EstimatedDelivery: &eta,
			TrackingEvents: []models.TrackingEvent{
				{Status: "In Transit", Location: ptr("Dallas, TX"), Timestamp: now.Add(-12 * time.Hour), Description: ptr("Arrived at UPS facility")},
				{Status: "Origin Scan", Location: ptr("Los Angeles, CA"), Timestamp: now.Add(-36 * time.Hour)},
			},
			LastUpdated: now,
		}
	case strings.Contains(trackingNumber, "ERROR"):
		return notFound(trackingNumber, models.CarrierUPS, now)
	default:
		return models.UnifiedTrackingInfo{
			TrackingNumber: trackingNumber,
			Carrier:        models.CarrierUPS,
			CurrentStatus:  "Pre-Shipment",
			TrackingEvents: []models.TrackingEvent{
				{Status: "Label Created", Location: ptr("Sender Location"), Timestamp: now.Add(-24 * time.Hour)},
			},
			LastUpdated: now,
		}
	}
}

func (c *Client) uspsTracking(trackingNumber string) models.UnifiedTrackingInfo {
	now := time.Now().UTC()

	switch {
	case trackingNumber == "9400100000000000000000":
		delivered := now.Add(-48 * time.Hour)
		return models.UnifiedTrackingInfo{
			TrackingNumber:    trackingNumber,
			Carrier:           models.CarrierUSPS,
			CurrentStatus:     "Delivered",
			EstimatedDelivery: &delivered,
			TrackingEvents: []models.TrackingEvent{
				{Status: "Delivered", Location: ptr("New York, NY"), Timestamp: now.Add(-48 * time.Hour), Description: ptr("Delivered to mailbox")},
				{Status: "Out for Delivery", Location: ptr("New York, NY"), Timestamp: now.Add(-50 * time.Hour)},
				{Status: "In Transit", Location: ptr("Philadelphia, PA"), Timestamp: now.Add(-72 * time.Hour)},
			},
			LastUpdated: now,
		}
	case trackingNumber == "RR123456789US":
		eta := now.Add(3 * 24 * time.Hour)
		return models.UnifiedTrackingInfo{
			TrackingNumber:    trackingNumber,
			Carrier:           models.CarrierUSPS,
			CurrentStatus:     "In Transit",
			EstimatedDelivery: &eta,
			TrackingEvents: []models.TrackingEvent{
				{Status: "Arrived at USPS Facility", Location: ptr("Chicago, IL"), Timestamp: now.Add(-24 * time.Hour)},
				{Status: "Accepted at USPS Origin Facility", Location: ptr("San Francisco, CA"), Timestamp: now.Add(-48 * time.Hour)},
			},
			LastUpdated: now,
		}
	case strings.Contains(trackingNumber, "INVALID"):
		return notFound(trackingNumber, models.CarrierUSPS, now)
	default:
		return models.UnifiedTrackingInfo{
			TrackingNumber: trackingNumber,
			Carrier:        models.CarrierUSPS,
			CurrentStatus:  "Pre-Shipment",
			TrackingEvents: []models.TrackingEvent{
				{Status: "Shipping Label Created, USPS Awaiting Item", Location: ptr("Sender Location"), Timestamp: now.Add(-12 * time.Hour)},
			},
			LastUpdated: now,
		}
	}
}

func (c *Client) genericTracking(trackingNumber string, carrierTag models.Carrier) models.UnifiedTrackingInfo {
	now := time.Now().UTC()

	if strings.Contains(trackingNumber, "ERROR") {
		return notFound(trackingNumber, carrierTag, now)
	}

	eta := now.Add(5 * 24 * time.Hour)
	return models.UnifiedTrackingInfo{
		TrackingNumber:    trackingNumber,
		Carrier:           carrierTag,
		CurrentStatus:     "In Transit",
		EstimatedDelivery: &eta,
		TrackingEvents: []models.TrackingEvent{
			{Status: "Processing at Facility", Location: ptr("Major Hub"), Timestamp: now.Add(-24 * time.Hour)},
			{Status: "Shipment Information Received", Location: ptr("Origin"), Timestamp: now.Add(-48 * time.Hour)},
		},
		LastUpdated: now,
	}
}

// notFound is the domain-level answer, not an error return: the carrier
// responded, the number just does not exist there.
func notFound(trackingNumber string, carrierTag models.Carrier, now time.Time) models.UnifiedTrackingInfo {
	msg := fmt.Sprintf("Tracking number not found or invalid for %s.", carrierTag)
	return models.UnifiedTrackingInfo{
		TrackingNumber: trackingNumber,
		Carrier:        carrierTag,
		CurrentStatus:  "Exception",
		TrackingEvents: []models.TrackingEvent{},
		LastUpdated:    now,
		Error:          &msg,
	}
}

func ptr(s string) *string { return &s }

var _ carrier.Client = (*Client)(nil)
