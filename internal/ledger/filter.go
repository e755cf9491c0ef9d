package ledger

import (
	"strings"
	"time"

	"stock-ledger/internal/models"
)

// StockFilter narrows the ledger view. Empty fields match everything.
// LocationContains takes precedence over Location.
type StockFilter struct {
	Product          string
	Size             string
	Location         string
	LocationContains string
	Vendor           string
	BelowAlertOnly   bool
}

// Match reports whether e passes the filter
func (f StockFilter) Match(e models.StockEntry) bool {
	if !matchKey(e.Key, f.Product, f.Size, f.Location, f.LocationContains) {
		return false
	}
	if f.Vendor != "" && e.Vendor != f.Vendor {
		return false
	}
	if f.BelowAlertOnly && !BelowAlert(e) {
		return false
	}
	return true
}

// MovementFilter narrows a log query. The date range is [From, To); zero bounds are open.
type MovementFilter struct {
	StockID          string
	Product          string
	Size             string
	Location         string
	LocationContains string
	Kinds            []models.MovementKind
	Actor            string
	From             time.Time
	To               time.Time
}

// Match reports whether m passes the filter
func (f MovementFilter) Match(m models.Movement) bool {
	if f.StockID != "" && m.StockID != f.StockID {
		return false
	}
	if !matchKey(m.Key, f.Product, f.Size, f.Location, f.LocationContains) {
		return false
	}
	if len(f.Kinds) > 0 {
		found := false
		for _, k := range f.Kinds {
			if m.Kind == k {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Actor != "" && m.Actor != f.Actor {
		return false
	}
	if !f.From.IsZero() && m.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !m.Timestamp.Before(f.To) {
		return false
	}
	return true
}

func matchKey(k models.StockKey, product, size, location, locationContains string) bool {
	if product != "" && k.Product != product {
		return false
	}
	if size != "" && k.Size != size {
		return false
	}
	if locationContains != "" {
		return strings.Contains(k.Location, locationContains)
	}
	if location != "" && k.Location != location {
		return false
	}
	return true
}
