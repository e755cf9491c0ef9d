package store

import (
	"context"
	"fmt"

	"stock-ledger/internal/ledger"
)

// Snapshot is the three tables as loaded, with the versions they were loaded at
type Snapshot struct {
	Ledger *ledger.Ledger
	Log    *ledger.MovementLog
	Queue  *ledger.ReservationQueue

	versions map[string]Version
}

// Version returns the version a table was loaded or last saved at
func (s *Snapshot) Version(table string) Version {
	return s.versions[table]
}

// Tables maps the ledger, log and reservation tables onto a DocumentStore
type Tables struct {
	docs DocumentStore
}

// NewTables creates a table repository over docs
func NewTables(docs DocumentStore) *Tables {
	return &Tables{docs: docs}
}

// Load reads all three tables
func (t *Tables) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{versions: make(map[string]Version, 3)}

	doc, err := t.docs.Load(ctx, TableLedger)
	if err != nil {
		return nil, err
	}
	entries, err := DecodeLedger(doc.Body)
	if err != nil {
		return nil, err
	}
	if snap.Ledger, err = ledger.NewLedger(entries); err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	snap.versions[TableLedger] = doc.Version

	doc, err = t.docs.Load(ctx, TableLog)
	if err != nil {
		return nil, err
	}
	movs, err := DecodeLog(doc.Body)
	if err != nil {
		return nil, err
	}
	snap.Log = ledger.NewMovementLog(movs)
	snap.Log.ReserveThrough(snap.Ledger.HighWater())
	snap.versions[TableLog] = doc.Version

	doc, err = t.docs.Load(ctx, TableReservations)
	if err != nil {
		return nil, err
	}
	rs, err := DecodeReservations(doc.Body)
	if err != nil {
		return nil, err
	}
	snap.Queue = ledger.NewReservationQueue(rs)
	snap.versions[TableReservations] = doc.Version

	return snap, nil
}

func (t *Tables) save(ctx context.Context, snap *Snapshot, table string, body []byte) error {
	v, err := t.docs.Save(ctx, table, body, snap.versions[table])
	if err != nil {
		return err
	}
	snap.versions[table] = v
	return nil
}

// SaveLedger persists the ledger table
func (t *Tables) SaveLedger(ctx context.Context, snap *Snapshot) error {
	body, err := EncodeLedger(snap.Ledger.Entries())
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}
	return t.save(ctx, snap, TableLedger, body)
}

// SaveLog persists the movement log table
func (t *Tables) SaveLog(ctx context.Context, snap *Snapshot) error {
	body, err := EncodeLog(snap.Log.Records())
	if err != nil {
		return fmt.Errorf("failed to encode log: %w", err)
	}
	return t.save(ctx, snap, TableLog, body)
}

// SaveReservations persists the reservation table
func (t *Tables) SaveReservations(ctx context.Context, snap *Snapshot) error {
	body, err := EncodeReservations(snap.Queue.List())
	if err != nil {
		return fmt.Errorf("failed to encode reservations: %w", err)
	}
	return t.save(ctx, snap, TableReservations, body)
}
