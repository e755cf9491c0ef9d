package models

import "time"

// Event types
const (
	EventTypeMovementRecorded     = "MOVEMENT_RECORDED"
	EventTypeReservationScheduled = "RESERVATION_SCHEDULED"
	EventTypeReservationCancelled = "RESERVATION_CANCELLED"
	EventTypeReservationFailed    = "RESERVATION_FAILED"
	EventTypeStockDeleted         = "STOCK_DELETED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// MovementRecordedEvent published after a log record is persisted
type MovementRecordedEvent struct {
	BaseEvent
	StockID        string       `json:"stock_id"`
	Key            StockKey     `json:"key"`
	Seq            int64        `json:"seq"`
	Kind           MovementKind `json:"kind"`
	Quantity       int          `json:"quantity"`
	Actor          string       `json:"actor"`
	OnHand         int          `json:"on_hand"`
	AlertThreshold int          `json:"alert_threshold"`
	BelowAlert     bool         `json:"below_alert"`
}

// ReservationEvent published when a reservation is scheduled, cancelled or fails to apply
type ReservationEvent struct {
	BaseEvent
	ReservationID string    `json:"reservation_id"`
	StockID       string    `json:"stock_id"`
	Key           StockKey  `json:"key"`
	Quantity      int       `json:"quantity"`
	DueDate       time.Time `json:"due_date"`
	Reason        string    `json:"reason,omitempty"`
}

// StockDeletedEvent published when a ledger row is removed
type StockDeletedEvent struct {
	BaseEvent
	StockID string   `json:"stock_id"`
	Key     StockKey `json:"key"`
}
