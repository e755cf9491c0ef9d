package models

import (
	"fmt"
	"time"
)

// StockKey identifies one ledger row by product, size and location
type StockKey struct {
	Product  string `json:"product"`
	Size     string `json:"size"`
	Location string `json:"location"`
}

// String renders the key the way the analysis pages label items
func (k StockKey) String() string {
	return fmt.Sprintf("%s | %s | %s", k.Product, k.Size, k.Location)
}

// StockEntry is the current-state projection for one SKU
type StockEntry struct {
	ID             string    `json:"id"`
	Key            StockKey  `json:"key"`
	Vendor         string    `json:"vendor"`
	OnHand         int       `json:"on_hand"`
	AlertThreshold int       `json:"alert_threshold"`
	LastSeq        int64     `json:"last_seq"`
	LastUpdated    time.Time `json:"last_updated"`
}

// MovementKind classifies a log record
type MovementKind string

// Movement kinds
const (
	KindInbound              MovementKind = "inbound"
	KindOutbound             MovementKind = "outbound"
	KindReservationFulfilled MovementKind = "reservation-fulfilled"
	KindAdjustment           MovementKind = "adjustment"
	KindCreation             MovementKind = "creation"
	KindDeletion             MovementKind = "deletion"
	KindRelabel              MovementKind = "relabel"
)

// Valid reports whether k is one of the known kinds
func (k MovementKind) Valid() bool {
	switch k {
	case KindInbound, KindOutbound, KindReservationFulfilled, KindAdjustment,
		KindCreation, KindDeletion, KindRelabel:
		return true
	}
	return false
}

// IsShipment reports whether the kind takes goods out of stock
func (k MovementKind) IsShipment() bool {
	return k == KindOutbound || k == KindReservationFulfilled
}

// Movement is one immutable log record
type Movement struct {
	Seq       int64        `json:"seq"`
	Timestamp time.Time    `json:"timestamp"`
	StockID   string       `json:"stock_id"`
	Key       StockKey     `json:"key"`
	Kind      MovementKind `json:"kind"`
	Quantity  int          `json:"quantity"`
	Actor     string       `json:"actor"`
	Reference string       `json:"reference,omitempty"`
}

// Reservation statuses
const (
	ReservationStatusScheduled = "scheduled"
	ReservationStatusFailed    = "failed"
)

// Reservation is a scheduled outbound movement not yet applied to on-hand
type Reservation struct {
	ID        string    `json:"id"`
	Seq       int64     `json:"seq"`
	DueDate   time.Time `json:"due_date"`
	StockID   string    `json:"stock_id"`
	Key       StockKey  `json:"key"`
	Quantity  int       `json:"quantity"`
	Actor     string    `json:"actor"`
	Status    string    `json:"status"`
	Failure   string    `json:"failure,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Day truncates t to its civil date in t's location, returned as UTC midnight
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateLayout is the wire and storage format for civil dates
const DateLayout = "2006-01-02"
