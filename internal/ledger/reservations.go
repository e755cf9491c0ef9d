package ledger

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"stock-ledger/internal/models"

	"github.com/google/uuid"
)

// ReservationQueue holds outbound movements until their due date arrives
type ReservationQueue struct {
	items   []models.Reservation
	nextSeq int64
}

// NewReservationQueue wraps loaded reservations, keeping insertion order
func NewReservationQueue(items []models.Reservation) *ReservationQueue {
	rs := make([]models.Reservation, len(items))
	copy(rs, items)
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].Seq < rs[j].Seq })

	var last int64
	if n := len(rs); n > 0 {
		last = rs[n-1].Seq
	}
	return &ReservationQueue{items: rs, nextSeq: last + 1}
}

// Schedule inserts a reservation against entry. Over-commitment is not checked.
func (q *ReservationQueue) Schedule(entry models.StockEntry, quantity int, dueDate time.Time, actor string, now time.Time) (models.Reservation, error) {
	if quantity <= 0 {
		return models.Reservation{}, fmt.Errorf("quantity must be positive, got %d: %w", quantity, ErrInvalidReservation)
	}
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return models.Reservation{}, fmt.Errorf("actor is required: %w", ErrInvalidReservation)
	}
	if dueDate.IsZero() {
		return models.Reservation{}, fmt.Errorf("due date is required: %w", ErrInvalidReservation)
	}

	r := models.Reservation{
		ID:        uuid.New().String(),
		Seq:       q.nextSeq,
		DueDate:   models.Day(dueDate),
		StockID:   entry.ID,
		Key:       entry.Key,
		Quantity:  quantity,
		Actor:     actor,
		Status:    models.ReservationStatusScheduled,
		CreatedAt: now,
	}
	q.nextSeq++
	q.items = append(q.items, r)

	return r, nil
}

// Cancel removes a reservation without touching the ledger
func (q *ReservationQueue) Cancel(id string) (models.Reservation, error) {
	r, ok := q.Get(id)
	if !ok {
		return models.Reservation{}, fmt.Errorf("reservation %s: %w", id, ErrUnknownReservation)
	}
	q.Remove(id)
	return r, nil
}

// Due returns scheduled reservations with due date on or before asOf,
// ordered by due date and then insertion order
func (q *ReservationQueue) Due(asOf time.Time) []models.Reservation {
	day := models.Day(asOf)
	out := make([]models.Reservation, 0)
	for _, r := range q.items {
		if r.Status == models.ReservationStatusScheduled && !r.DueDate.After(day) {
			out = append(out, r)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

// Outstanding sums the scheduled quantities for a stock entry
func (q *ReservationQueue) Outstanding(stockID string) int {
	total := 0
	for _, r := range q.items {
		if r.StockID == stockID && r.Status == models.ReservationStatusScheduled {
			total += r.Quantity
		}
	}
	return total
}

// Get returns the reservation with the given id
func (q *ReservationQueue) Get(id string) (models.Reservation, bool) {
	for _, r := range q.items {
		if r.ID == id {
			return r, true
		}
	}
	return models.Reservation{}, false
}

// Remove drops a reservation, reporting whether it was present
func (q *ReservationQueue) Remove(id string) bool {
	for i, r := range q.items {
		if r.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// Flag marks a reservation as failed and keeps it for inspection
func (q *ReservationQueue) Flag(id, reason string) bool {
	for i := range q.items {
		if q.items[i].ID == id {
			q.items[i].Status = models.ReservationStatusFailed
			q.items[i].Failure = reason
			return true
		}
	}
	return false
}

// Rekey refreshes the key snapshot of every reservation for stockID
func (q *ReservationQueue) Rekey(stockID string, key models.StockKey) int {
	n := 0
	for i := range q.items {
		if q.items[i].StockID == stockID {
			q.items[i].Key = key
			n++
		}
	}
	return n
}

// List returns every reservation in insertion order
func (q *ReservationQueue) List() []models.Reservation {
	out := make([]models.Reservation, len(q.items))
	copy(out, q.items)
	return out
}

// Len returns the number of reservations, failed ones included
func (q *ReservationQueue) Len() int {
	return len(q.items)
}
