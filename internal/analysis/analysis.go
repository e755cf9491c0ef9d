// Package analysis aggregates shipment records from the movement log:
// rankings, ABC classes, safety-stock estimates, dead stock and period comparisons.
// Every function is pure; callers pick the records to feed in.
package analysis

import (
	"math"
	"sort"
	"time"

	"stock-ledger/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ItemTotal is the summed quantity of one SKU key
type ItemTotal struct {
	Item     string          `json:"item"`
	Key      models.StockKey `json:"key"`
	Quantity int             `json:"quantity"`
}

// Summary holds the headline figures of a record set
type Summary struct {
	TotalQuantity int             `json:"total_quantity"`
	DistinctItems int             `json:"distinct_items"`
	Records       int             `json:"records"`
	MeanPerRecord decimal.Decimal `json:"mean_per_record"`
}

func magnitude(q int) int {
	if q < 0 {
		return -q
	}
	return q
}

// Totals sums quantities per item, largest first
func Totals(movs []models.Movement) []ItemTotal {
	byKey := make(map[models.StockKey]int)
	for _, m := range movs {
		byKey[m.Key] += magnitude(m.Quantity)
	}

	out := make([]ItemTotal, 0, len(byKey))
	for k, q := range byKey {
		out = append(out, ItemTotal{Item: k.String(), Key: k, Quantity: q})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Quantity != out[j].Quantity {
			return out[i].Quantity > out[j].Quantity
		}
		return out[i].Item < out[j].Item
	})
	return out
}

// Ranking returns at most limit item totals, largest first. limit <= 0 means all.
func Ranking(movs []models.Movement, limit int) []ItemTotal {
	totals := Totals(movs)
	if limit > 0 && len(totals) > limit {
		totals = totals[:limit]
	}
	return totals
}

// Summarize computes the headline figures
func Summarize(movs []models.Movement) Summary {
	s := Summary{Records: len(movs), MeanPerRecord: decimal.Zero}
	items := make(map[models.StockKey]struct{})
	for _, m := range movs {
		s.TotalQuantity += magnitude(m.Quantity)
		items[m.Key] = struct{}{}
	}
	s.DistinctItems = len(items)
	if s.Records > 0 {
		s.MeanPerRecord = decimal.NewFromInt(int64(s.TotalQuantity)).
			Div(decimal.NewFromInt(int64(s.Records))).
			Round(1)
	}
	return s
}

// Share is one location's portion of the total
type Share struct {
	Location string          `json:"location"`
	Quantity int             `json:"quantity"`
	Percent  decimal.Decimal `json:"percent"`
}

// LocationShare splits the total by location, largest first
func LocationShare(movs []models.Movement) []Share {
	byLoc := make(map[string]int)
	total := 0
	for _, m := range movs {
		q := magnitude(m.Quantity)
		byLoc[m.Key.Location] += q
		total += q
	}

	out := make([]Share, 0, len(byLoc))
	for loc, q := range byLoc {
		pct := decimal.Zero
		if total > 0 {
			pct = decimal.NewFromInt(int64(q)).Mul(hundred).Div(decimal.NewFromInt(int64(total))).Round(2)
		}
		out = append(out, Share{Location: loc, Quantity: q, Percent: pct})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Quantity != out[j].Quantity {
			return out[i].Quantity > out[j].Quantity
		}
		return out[i].Location < out[j].Location
	})
	return out
}

// WeekdayTotal is the summed quantity for one day of the week
type WeekdayTotal struct {
	Weekday  string `json:"weekday"`
	Quantity int    `json:"quantity"`
}

var weekOrder = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// WeekdayTotals sums quantities per weekday, Monday first, with empty days included
func WeekdayTotals(movs []models.Movement, loc *time.Location) []WeekdayTotal {
	byDay := make(map[time.Weekday]int)
	for _, m := range movs {
		byDay[m.Timestamp.In(loc).Weekday()] += magnitude(m.Quantity)
	}

	out := make([]WeekdayTotal, 0, len(weekOrder))
	for _, d := range weekOrder {
		out = append(out, WeekdayTotal{Weekday: d.String(), Quantity: byDay[d]})
	}
	return out
}

// DailyTotal is the summed quantity for one civil date
type DailyTotal struct {
	Date     string `json:"date"`
	Quantity int    `json:"quantity"`
}

// DailyTrend sums quantities per civil date, oldest first
func DailyTrend(movs []models.Movement, loc *time.Location) []DailyTotal {
	byDate := make(map[string]int)
	for _, m := range movs {
		byDate[m.Timestamp.In(loc).Format(models.DateLayout)] += magnitude(m.Quantity)
	}

	out := make([]DailyTotal, 0, len(byDate))
	for d, q := range byDate {
		out = append(out, DailyTotal{Date: d, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// Rank is an ABC class
type Rank string

// ABC classes
const (
	RankA Rank = "A"
	RankB Rank = "B"
	RankC Rank = "C"
)

// ABCRow is one item of a Pareto ranking
type ABCRow struct {
	ItemTotal
	CumulativePercent decimal.Decimal `json:"cumulative_percent"`
	Rank              Rank            `json:"rank"`
}

// ABC classifies totals by cumulative share: A up to cutoffA percent, B up to cutoffB, C above.
// totals must already be sorted largest first, as Totals returns them.
func ABC(totals []ItemTotal, cutoffA, cutoffB decimal.Decimal) []ABCRow {
	sum := 0
	for _, t := range totals {
		sum += t.Quantity
	}

	out := make([]ABCRow, 0, len(totals))
	if sum == 0 {
		return out
	}

	total := decimal.NewFromInt(int64(sum))
	cum := 0
	for _, t := range totals {
		cum += t.Quantity
		pct := decimal.NewFromInt(int64(cum)).Mul(hundred).Div(total)

		rank := RankC
		switch {
		case pct.LessThanOrEqual(cutoffA):
			rank = RankA
		case pct.LessThanOrEqual(cutoffB):
			rank = RankB
		}

		out = append(out, ABCRow{ItemTotal: t, CumulativePercent: pct.Round(2), Rank: rank})
	}
	return out
}

// SafetyStockRow is the recommended buffer for one item
type SafetyStockRow struct {
	Item        string          `json:"item"`
	Key         models.StockKey `json:"key"`
	Records     int             `json:"records"`
	Mean        decimal.Decimal `json:"mean"`
	StdDev      decimal.Decimal `json:"std_dev"`
	Recommended int64           `json:"recommended"`
}

// SafetyStock estimates mean + 2*stdev of per-record quantity for each item.
// The sample standard deviation is used; items with one record get zero spread.
func SafetyStock(movs []models.Movement) []SafetyStockRow {
	byKey := make(map[models.StockKey][]float64)
	for _, m := range movs {
		byKey[m.Key] = append(byKey[m.Key], float64(magnitude(m.Quantity)))
	}

	out := make([]SafetyStockRow, 0, len(byKey))
	for k, qs := range byKey {
		mean, sd := meanStdDev(qs)
		rec := decimal.NewFromFloat(mean + 2*sd).RoundBank(0)
		out = append(out, SafetyStockRow{
			Item:        k.String(),
			Key:         k,
			Records:     len(qs),
			Mean:        decimal.NewFromFloat(mean).Round(2),
			StdDev:      decimal.NewFromFloat(sd).Round(2),
			Recommended: rec.IntPart(),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Recommended != out[j].Recommended {
			return out[i].Recommended > out[j].Recommended
		}
		return out[i].Item < out[j].Item
	})
	return out
}

func meanStdDev(xs []float64) (float64, float64) {
	n := float64(len(xs))
	if n == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	mean := sum / n
	if len(xs) < 2 {
		return mean, 0
	}
	ss := 0.0
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(ss / (n - 1))
}
