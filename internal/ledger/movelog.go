package ledger

import (
	"fmt"
	"sort"

	"stock-ledger/internal/models"
)

// Order selects the sort direction of a log query
type Order int

const (
	// Descending is newest first, for display
	Descending Order = iota
	// Ascending is oldest first, for replay and audit
	Ascending
)

// MovementLog is the append-only sequence of movement records
type MovementLog struct {
	records []models.Movement
	nextSeq int64
}

// NewMovementLog wraps loaded records, ordering them by sequence
func NewMovementLog(records []models.Movement) *MovementLog {
	recs := make([]models.Movement, len(records))
	copy(recs, records)
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Seq < recs[j].Seq })

	var last int64
	if n := len(recs); n > 0 {
		last = recs[n-1].Seq
	}
	return &MovementLog{records: recs, nextSeq: last + 1}
}

// ReserveThrough keeps sequence numbers at or below seq from being handed out again
func (m *MovementLog) ReserveThrough(seq int64) {
	if seq >= m.nextSeq {
		m.nextSeq = seq + 1
	}
}

// Append assigns the next sequence number and stores the record
func (m *MovementLog) Append(rec models.Movement) (models.Movement, error) {
	if rec.StockID == "" {
		return models.Movement{}, fmt.Errorf("stock id is required: %w", ErrInvalidMovement)
	}
	if !rec.Kind.Valid() {
		return models.Movement{}, fmt.Errorf("unknown kind %q: %w", rec.Kind, ErrInvalidMovement)
	}
	if rec.Actor == "" {
		return models.Movement{}, fmt.Errorf("actor is required: %w", ErrInvalidMovement)
	}
	if rec.Timestamp.IsZero() {
		return models.Movement{}, fmt.Errorf("timestamp is required: %w", ErrInvalidMovement)
	}

	rec.Seq = m.nextSeq
	m.nextSeq++
	m.records = append(m.records, rec)
	return rec, nil
}

// Query returns the matching records in the requested order
func (m *MovementLog) Query(f MovementFilter, order Order) []models.Movement {
	out := make([]models.Movement, 0)
	for _, rec := range m.records {
		if f.Match(rec) {
			out = append(out, rec)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			if order == Ascending {
				return a.Timestamp.Before(b.Timestamp)
			}
			return a.Timestamp.After(b.Timestamp)
		}
		if order == Ascending {
			return a.Seq < b.Seq
		}
		return a.Seq > b.Seq
	})
	return out
}

// FulfillmentOf finds the reservation-fulfilled record referencing reservationID
func (m *MovementLog) FulfillmentOf(reservationID string) (models.Movement, bool) {
	for i := len(m.records) - 1; i >= 0; i-- {
		rec := m.records[i]
		if rec.Kind == models.KindReservationFulfilled && rec.Reference == reservationID {
			return rec, true
		}
	}
	return models.Movement{}, false
}

// DeleteLast removes the newest record. Manual correction only.
// Its sequence number is not handed out again by this log.
func (m *MovementLog) DeleteLast() (models.Movement, bool) {
	n := len(m.records)
	if n == 0 {
		return models.Movement{}, false
	}
	last := m.records[n-1]
	m.records = m.records[:n-1]
	return last, true
}

// Records returns all records in sequence order
func (m *MovementLog) Records() []models.Movement {
	out := make([]models.Movement, len(m.records))
	copy(out, m.records)
	return out
}

// Len returns the number of records
func (m *MovementLog) Len() int {
	return len(m.records)
}
