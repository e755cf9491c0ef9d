package store

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"stock-ledger/internal/models"
)

var (
	ledgerHeader = []string{"id", "product", "size", "location", "vendor", "on_hand", "alert_threshold", "last_seq", "last_updated"}
	logHeader    = []string{"seq", "timestamp", "stock_id", "product", "size", "location", "kind", "quantity", "actor", "reference"}
	queueHeader  = []string{"id", "seq", "due_date", "stock_id", "product", "size", "location", "quantity", "actor", "status", "failure", "created_at"}
)

func writeCSV(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func readCSV(body []byte, header []string) ([][]string, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = len(header)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}

	if !validateHeader(records[0], header) {
		return nil, fmt.Errorf("CSV header mismatch. Expected: %v, Got: %v", header, records[0])
	}
	return records[1:], nil
}

func validateHeader(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// EncodeLedger renders ledger rows as CSV
func EncodeLedger(entries []models.StockEntry) ([]byte, error) {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.ID, e.Key.Product, e.Key.Size, e.Key.Location, e.Vendor,
			strconv.Itoa(e.OnHand), strconv.Itoa(e.AlertThreshold),
			strconv.FormatInt(e.LastSeq, 10), formatTime(e.LastUpdated),
		})
	}
	return writeCSV(ledgerHeader, rows)
}

// DecodeLedger parses ledger CSV
func DecodeLedger(body []byte) ([]models.StockEntry, error) {
	records, err := readCSV(body, ledgerHeader)
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}

	out := make([]models.StockEntry, 0, len(records))
	for i, rec := range records {
		e := models.StockEntry{
			ID:     rec[0],
			Key:    models.StockKey{Product: rec[1], Size: rec[2], Location: rec[3]},
			Vendor: rec[4],
		}
		if e.OnHand, err = strconv.Atoi(rec[5]); err != nil {
			return nil, fmt.Errorf("ledger row %d: invalid on_hand: %w", i+2, err)
		}
		if e.AlertThreshold, err = strconv.Atoi(rec[6]); err != nil {
			return nil, fmt.Errorf("ledger row %d: invalid alert_threshold: %w", i+2, err)
		}
		if e.LastSeq, err = strconv.ParseInt(rec[7], 10, 64); err != nil {
			return nil, fmt.Errorf("ledger row %d: invalid last_seq: %w", i+2, err)
		}
		if e.LastUpdated, err = parseTime(rec[8]); err != nil {
			return nil, fmt.Errorf("ledger row %d: invalid last_updated: %w", i+2, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// EncodeLog renders movement records as CSV
func EncodeLog(movs []models.Movement) ([]byte, error) {
	rows := make([][]string, 0, len(movs))
	for _, m := range movs {
		rows = append(rows, []string{
			strconv.FormatInt(m.Seq, 10), formatTime(m.Timestamp), m.StockID,
			m.Key.Product, m.Key.Size, m.Key.Location, string(m.Kind),
			strconv.Itoa(m.Quantity), m.Actor, m.Reference,
		})
	}
	return writeCSV(logHeader, rows)
}

// DecodeLog parses movement CSV
func DecodeLog(body []byte) ([]models.Movement, error) {
	records, err := readCSV(body, logHeader)
	if err != nil {
		return nil, fmt.Errorf("log: %w", err)
	}

	out := make([]models.Movement, 0, len(records))
	for i, rec := range records {
		m := models.Movement{
			StockID:   rec[2],
			Key:       models.StockKey{Product: rec[3], Size: rec[4], Location: rec[5]},
			Kind:      models.MovementKind(rec[6]),
			Actor:     rec[8],
			Reference: rec[9],
		}
		if m.Seq, err = strconv.ParseInt(rec[0], 10, 64); err != nil {
			return nil, fmt.Errorf("log row %d: invalid seq: %w", i+2, err)
		}
		if m.Timestamp, err = parseTime(rec[1]); err != nil {
			return nil, fmt.Errorf("log row %d: invalid timestamp: %w", i+2, err)
		}
		if m.Quantity, err = strconv.Atoi(rec[7]); err != nil {
			return nil, fmt.Errorf("log row %d: invalid quantity: %w", i+2, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// EncodeReservations renders the reservation queue as CSV
func EncodeReservations(rs []models.Reservation) ([]byte, error) {
	rows := make([][]string, 0, len(rs))
	for _, r := range rs {
		rows = append(rows, []string{
			r.ID, strconv.FormatInt(r.Seq, 10), r.DueDate.Format(models.DateLayout), r.StockID,
			r.Key.Product, r.Key.Size, r.Key.Location, strconv.Itoa(r.Quantity),
			r.Actor, r.Status, r.Failure, formatTime(r.CreatedAt),
		})
	}
	return writeCSV(queueHeader, rows)
}

// DecodeReservations parses reservation CSV
func DecodeReservations(body []byte) ([]models.Reservation, error) {
	records, err := readCSV(body, queueHeader)
	if err != nil {
		return nil, fmt.Errorf("reservations: %w", err)
	}

	out := make([]models.Reservation, 0, len(records))
	for i, rec := range records {
		r := models.Reservation{
			ID:      rec[0],
			StockID: rec[3],
			Key:     models.StockKey{Product: rec[4], Size: rec[5], Location: rec[6]},
			Actor:   rec[8],
			Status:  rec[9],
			Failure: rec[10],
		}
		if r.Seq, err = strconv.ParseInt(rec[1], 10, 64); err != nil {
			return nil, fmt.Errorf("reservations row %d: invalid seq: %w", i+2, err)
		}
		if r.DueDate, err = time.Parse(models.DateLayout, rec[2]); err != nil {
			return nil, fmt.Errorf("reservations row %d: invalid due_date: %w", i+2, err)
		}
		if r.Quantity, err = strconv.Atoi(rec[7]); err != nil {
			return nil, fmt.Errorf("reservations row %d: invalid quantity: %w", i+2, err)
		}
		if r.CreatedAt, err = parseTime(rec[11]); err != nil {
			return nil, fmt.Errorf("reservations row %d: invalid created_at: %w", i+2, err)
		}
		if r.Status == "" {
			r.Status = models.ReservationStatusScheduled
		}
		out = append(out, r)
	}
	return out, nil
}
