package ledger

import (
	"fmt"
	"strings"
	"time"

	"stock-ledger/internal/models"

	"github.com/google/uuid"
)

// Ledger holds one StockEntry per SKU key, indexed by surrogate id and by key.
// It never writes to the movement log; callers log each mutation themselves.
type Ledger struct {
	entries map[string]*models.StockEntry
	index   map[models.StockKey]string
	order   []string
}

// NewLedger builds a ledger from loaded rows
func NewLedger(rows []models.StockEntry) (*Ledger, error) {
	l := &Ledger{
		entries: make(map[string]*models.StockEntry, len(rows)),
		index:   make(map[models.StockKey]string, len(rows)),
	}

	for i := range rows {
		row := rows[i]
		if _, ok := l.entries[row.ID]; ok {
			return nil, fmt.Errorf("duplicate stock id %s: %w", row.ID, ErrDuplicateSKU)
		}
		if _, ok := l.index[row.Key]; ok {
			return nil, fmt.Errorf("duplicate key %s: %w", row.Key, ErrDuplicateSKU)
		}
		l.put(&row)
	}

	return l, nil
}

func (l *Ledger) put(e *models.StockEntry) {
	l.entries[e.ID] = e
	l.index[e.Key] = e.ID
	l.order = append(l.order, e.ID)
}

// Create registers a new SKU
func (l *Ledger) Create(key models.StockKey, onHand, alertThreshold int, vendor string, now time.Time) (models.StockEntry, error) {
	key = normalizeKey(key)
	if key.Product == "" {
		return models.StockEntry{}, fmt.Errorf("product is required: %w", ErrInvalidEntry)
	}
	if _, ok := l.index[key]; ok {
		return models.StockEntry{}, fmt.Errorf("%s: %w", key, ErrDuplicateSKU)
	}

	e := &models.StockEntry{
		ID:             uuid.New().String(),
		Key:            key,
		Vendor:         strings.TrimSpace(vendor),
		OnHand:         onHand,
		AlertThreshold: alertThreshold,
		LastUpdated:    now,
	}
	l.put(e)

	return *e, nil
}

// Get returns the entry with the given id
func (l *Ledger) Get(id string) (models.StockEntry, bool) {
	e, ok := l.entries[id]
	if !ok {
		return models.StockEntry{}, false
	}
	return *e, true
}

// Find returns the entry registered under key
func (l *Ledger) Find(key models.StockKey) (models.StockEntry, bool) {
	id, ok := l.index[normalizeKey(key)]
	if !ok {
		return models.StockEntry{}, false
	}
	return l.Get(id)
}

// Adjust adds delta to on-hand and returns the new value. Negative results are allowed.
func (l *Ledger) Adjust(id string, delta int, now time.Time) (int, error) {
	e, ok := l.entries[id]
	if !ok {
		return 0, fmt.Errorf("stock %s: %w", id, ErrUnknownSKU)
	}

	e.OnHand += delta
	e.LastUpdated = now
	return e.OnHand, nil
}

// Stamp records the sequence of the last log record folded into the entry
func (l *Ledger) Stamp(id string, seq int64) {
	if e, ok := l.entries[id]; ok && seq > e.LastSeq {
		e.LastSeq = seq
	}
}

// HighWater returns the largest LastSeq across all entries
func (l *Ledger) HighWater() int64 {
	var max int64
	for _, e := range l.entries {
		if e.LastSeq > max {
			max = e.LastSeq
		}
	}
	return max
}

// Relabel moves an entry to a new size/location, keeping its id
func (l *Ledger) Relabel(id, size, location string, now time.Time) (models.StockKey, error) {
	e, ok := l.entries[id]
	if !ok {
		return models.StockKey{}, fmt.Errorf("stock %s: %w", id, ErrUnknownSKU)
	}

	old := e.Key
	next := normalizeKey(models.StockKey{Product: old.Product, Size: size, Location: location})
	if next == old {
		return old, nil
	}
	if _, taken := l.index[next]; taken {
		return old, fmt.Errorf("%s: %w", next, ErrDuplicateSKU)
	}

	delete(l.index, old)
	e.Key = next
	e.LastUpdated = now
	l.index[next] = id

	return old, nil
}

// Delete removes an entry and returns it
func (l *Ledger) Delete(id string) (models.StockEntry, error) {
	e, ok := l.entries[id]
	if !ok {
		return models.StockEntry{}, fmt.Errorf("stock %s: %w", id, ErrUnknownSKU)
	}

	delete(l.entries, id)
	delete(l.index, e.Key)
	for i, oid := range l.order {
		if oid == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}

	return *e, nil
}

// Entries returns every row in registration order
func (l *Ledger) Entries() []models.StockEntry {
	out := make([]models.StockEntry, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, *l.entries[id])
	}
	return out
}

// List returns the rows matching f in registration order
func (l *Ledger) List(f StockFilter) []models.StockEntry {
	out := make([]models.StockEntry, 0)
	for _, id := range l.order {
		e := l.entries[id]
		if f.Match(*e) {
			out = append(out, *e)
		}
	}
	return out
}

// Len returns the number of rows
func (l *Ledger) Len() int {
	return len(l.order)
}

// BelowAlert reports whether on-hand is strictly under the alert threshold
func BelowAlert(e models.StockEntry) bool {
	return e.OnHand < e.AlertThreshold
}

func normalizeKey(k models.StockKey) models.StockKey {
	return models.StockKey{
		Product:  strings.TrimSpace(k.Product),
		Size:     strings.TrimSpace(k.Size),
		Location: strings.TrimSpace(k.Location),
	}
}
