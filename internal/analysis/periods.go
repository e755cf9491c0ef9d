package analysis

import (
	"sort"
	"time"

	"stock-ledger/internal/models"

	"github.com/shopspring/decimal"
)

// Period is the half-open interval [From, To)
type Period struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether t falls inside the period
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.From) && t.Before(p.To)
}

// Month returns the calendar month containing t, in t's location
func Month(t time.Time) Period {
	from := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return Period{From: from, To: from.AddDate(0, 1, 0)}
}

// MonthOverMonth returns the month containing t and the month before it
func MonthOverMonth(t time.Time) (current, previous Period) {
	current = Month(t)
	return current, Month(current.From.AddDate(0, -1, 0))
}

// YearOverYear returns the month containing t and the same month a year earlier
func YearOverYear(t time.Time) (current, previous Period) {
	current = Month(t)
	return current, Month(current.From.AddDate(-1, 0, 0))
}

// ComparisonRow is one item's totals in two periods
type ComparisonRow struct {
	Item          string           `json:"item"`
	Key           models.StockKey  `json:"key"`
	Current       int              `json:"current"`
	Previous      int              `json:"previous"`
	Diff          int              `json:"diff"`
	PercentChange *decimal.Decimal `json:"percent_change"`
}

// Compare totals each item in both periods. PercentChange is nil when the previous total is zero.
func Compare(movs []models.Movement, current, previous Period) []ComparisonRow {
	type pair struct{ cur, prev int }
	byKey := make(map[models.StockKey]*pair)

	for _, m := range movs {
		inCur := current.Contains(m.Timestamp)
		inPrev := previous.Contains(m.Timestamp)
		if !inCur && !inPrev {
			continue
		}
		p, ok := byKey[m.Key]
		if !ok {
			p = &pair{}
			byKey[m.Key] = p
		}
		if inCur {
			p.cur += magnitude(m.Quantity)
		}
		if inPrev {
			p.prev += magnitude(m.Quantity)
		}
	}

	out := make([]ComparisonRow, 0, len(byKey))
	for k, p := range byKey {
		row := ComparisonRow{
			Item:     k.String(),
			Key:      k,
			Current:  p.cur,
			Previous: p.prev,
			Diff:     p.cur - p.prev,
		}
		if p.prev != 0 {
			pct := decimal.NewFromInt(int64(row.Diff)).Mul(hundred).Div(decimal.NewFromInt(int64(p.prev))).Round(1)
			row.PercentChange = &pct
		}
		out = append(out, row)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Current != out[j].Current {
			return out[i].Current > out[j].Current
		}
		return out[i].Item < out[j].Item
	})
	return out
}

// DeadStockRow is a ledger row holding stock that has not shipped recently
type DeadStockRow struct {
	Entry        models.StockEntry `json:"entry"`
	LastShipment *time.Time        `json:"last_shipment,omitempty"`
	IdleDays     *int              `json:"idle_days,omitempty"`
}

// DeadStock lists entries with positive on-hand and no shipment in the idleDays before asOf.
// Entries that never shipped come first, then the longest idle.
func DeadStock(entries []models.StockEntry, movs []models.Movement, asOf time.Time, idleDays int) []DeadStockRow {
	last := make(map[string]time.Time)
	for _, m := range movs {
		if !m.Kind.IsShipment() {
			continue
		}
		if t, ok := last[m.StockID]; !ok || m.Timestamp.After(t) {
			last[m.StockID] = m.Timestamp
		}
	}

	cutoff := asOf.AddDate(0, 0, -idleDays)
	out := make([]DeadStockRow, 0)
	for _, e := range entries {
		if e.OnHand <= 0 {
			continue
		}
		t, shipped := last[e.ID]
		if shipped && t.After(cutoff) {
			continue
		}

		row := DeadStockRow{Entry: e}
		if shipped {
			ts := t
			days := int(asOf.Sub(t).Hours() / 24)
			row.LastShipment = &ts
			row.IdleDays = &days
		}
		out = append(out, row)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if (a.LastShipment == nil) != (b.LastShipment == nil) {
			return a.LastShipment == nil
		}
		if a.LastShipment != nil {
			return a.LastShipment.Before(*b.LastShipment)
		}
		return false
	})
	return out
}
