package models

import "time"

// Carrier — закрытый набор перевозчиков, определяется только классификатором.
type Carrier string

const (
	CarrierUPS             Carrier = "UPS"
	CarrierFedEx           Carrier = "FedEx"
	CarrierUSPS            Carrier = "USPS"
	CarrierDHL             Carrier = "DHL"
	CarrierAmazonLogistics Carrier = "Amazon Logistics"
	CarrierOnTrac          Carrier = "OnTrac"
	CarrierUnknown         Carrier = "Unknown"
)

// TrackingEvent is a single scan/status point as the carrier reported it.
// Timestamps are not guaranteed to be monotonic relative to event order.
type TrackingEvent struct {
	Status      string    `json:"status"`
	Location    *string   `json:"location,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Description *string   `json:"description,omitempty"`
}

// UnifiedTrackingInfo is the canonical, carrier-agnostic tracking shape.
// Error is a domain-level "not found at carrier" signal; transport failures
// never end up here.
type UnifiedTrackingInfo struct {
	TrackingNumber    string          `json:"trackingNumber"`
	Carrier           Carrier         `json:"carrier"`
	CurrentStatus     string          `json:"currentStatus"`
	EstimatedDelivery *time.Time      `json:"estimatedDelivery,omitempty"`
	TrackingEvents    []TrackingEvent `json:"trackingEvents"`
	LastUpdated       time.Time       `json:"lastUpdated"`
	IsDelivered       bool            `json:"isDelivered"`
	Error             *string         `json:"error,omitempty"`
}

// HistoryEntry — одна запись append-only журнала наблюдений по трек-номеру.
// Записи никогда не изменяются и не удаляются.
type HistoryEntry struct {
	ID             uint64
	TrackingNumber string
	Carrier        Carrier
	Status         string
	Location       *string
	Description    *string
	ObservedAt     time.Time
	UserID         *string
	CreatedAt      time.Time
}

// SavedTracking is a per-user bookmark of a tracking number. At most one row
// exists per (UserID, TrackingNumber); only Alias is mutable.
type SavedTracking struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	TrackingNumber string    `json:"trackingNumber"`
	Carrier        Carrier   `json:"carrier"`
	Alias          *string   `json:"alias,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
