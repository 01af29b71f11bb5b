package messages

import "time"

// TrackingObserved публикуется после каждой успешной записи в журнал
// наблюдений. Консьюмеры (нотификатор и т.п.) не влияют на пайплайн.
type TrackingObserved struct {
	TrackingNumber string    `json:"tracking_number"`
	Carrier        string    `json:"carrier"`
	Status         string    `json:"status"`
	IsDelivered    bool      `json:"is_delivered"`
	ObservedAt     time.Time `json:"observed_at"`
	UserID         *string   `json:"user_id,omitempty"`
}
