package ledger

import (
	"testing"
	"time"

	"stock-ledger/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	now   = time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)
	today = models.Day(now)
	keyX  = models.StockKey{Product: "Apple", Size: "L", Location: "Aomori"}
)

func newLedgerWithX(t *testing.T, onHand, threshold int) (*Ledger, models.StockEntry) {
	t.Helper()
	l, err := NewLedger(nil)
	require.NoError(t, err)
	e, err := l.Create(keyX, onHand, threshold, "Farm Co", now)
	require.NoError(t, err)
	return l, e
}

func TestLedgerAdjustSumsDeltas(t *testing.T) {
	l, e := newLedgerWithX(t, 7, 0)

	deltas := []int{5, -3, 12, -20, 1, 0, -4}
	sum := 0
	for _, d := range deltas {
		_, err := l.Adjust(e.ID, d, now)
		require.NoError(t, err)
		sum += d
	}

	got, _ := l.Get(e.ID)
	assert.Equal(t, 7+sum, got.OnHand)
}

func TestLedgerAdjustCrossesAlertThreshold(t *testing.T) {
	l, e := newLedgerWithX(t, 10, 5)
	assert.False(t, BelowAlert(e))

	onHand, err := l.Adjust(e.ID, -8, now)
	require.NoError(t, err)
	assert.Equal(t, 2, onHand)

	got, _ := l.Get(e.ID)
	assert.True(t, BelowAlert(got))
}

func TestBelowAlertIsStrict(t *testing.T) {
	assert.False(t, BelowAlert(models.StockEntry{OnHand: 5, AlertThreshold: 5}))
	assert.True(t, BelowAlert(models.StockEntry{OnHand: 4, AlertThreshold: 5}))
	assert.True(t, BelowAlert(models.StockEntry{OnHand: -1, AlertThreshold: 0}))
}

func TestLedgerCreateDuplicateLeavesLedgerUnchanged(t *testing.T) {
	l, e := newLedgerWithX(t, 10, 5)

	_, err := l.Create(models.StockKey{Product: " Apple", Size: "L ", Location: "Aomori"}, 99, 1, "Other", now)
	assert.ErrorIs(t, err, ErrDuplicateSKU)
	assert.Equal(t, 1, l.Len())

	got, _ := l.Get(e.ID)
	assert.Equal(t, e, got)
}

func TestLedgerCreateRequiresProduct(t *testing.T) {
	l, err := NewLedger(nil)
	require.NoError(t, err)

	_, err = l.Create(models.StockKey{Size: "M"}, 1, 1, "", now)
	assert.ErrorIs(t, err, ErrInvalidEntry)
}

func TestLedgerUnknownSKU(t *testing.T) {
	l, err := NewLedger(nil)
	require.NoError(t, err)

	_, err = l.Adjust("missing", 1, now)
	assert.ErrorIs(t, err, ErrUnknownSKU)

	_, err = l.Delete("missing")
	assert.ErrorIs(t, err, ErrUnknownSKU)

	_, err = l.Relabel("missing", "S", "Iwate", now)
	assert.ErrorIs(t, err, ErrUnknownSKU)
}

func TestLedgerRelabelReindexes(t *testing.T) {
	l, e := newLedgerWithX(t, 10, 5)

	old, err := l.Relabel(e.ID, "M", "Iwate", now)
	require.NoError(t, err)
	assert.Equal(t, keyX, old)

	_, ok := l.Find(keyX)
	assert.False(t, ok)

	moved, ok := l.Find(models.StockKey{Product: "Apple", Size: "M", Location: "Iwate"})
	require.True(t, ok)
	assert.Equal(t, e.ID, moved.ID)

	// the old key is free again
	_, err = l.Create(keyX, 1, 1, "", now)
	assert.NoError(t, err)
}

func TestLedgerRelabelOntoExistingKey(t *testing.T) {
	l, e := newLedgerWithX(t, 10, 5)
	_, err := l.Create(models.StockKey{Product: "Apple", Size: "M", Location: "Aomori"}, 1, 1, "", now)
	require.NoError(t, err)

	_, err = l.Relabel(e.ID, "M", "Aomori", now)
	assert.ErrorIs(t, err, ErrDuplicateSKU)

	got, _ := l.Get(e.ID)
	assert.Equal(t, keyX, got.Key)
}

func TestLedgerDeleteKeepsOrder(t *testing.T) {
	l, err := NewLedger(nil)
	require.NoError(t, err)
	a, _ := l.Create(models.StockKey{Product: "A"}, 1, 0, "", now)
	b, _ := l.Create(models.StockKey{Product: "B"}, 1, 0, "", now)
	c, _ := l.Create(models.StockKey{Product: "C"}, 1, 0, "", now)

	_, err = l.Delete(b.ID)
	require.NoError(t, err)

	entries := l.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, a.ID, entries[0].ID)
	assert.Equal(t, c.ID, entries[1].ID)
}

func TestNewLedgerRejectsDuplicateKeys(t *testing.T) {
	_, err := NewLedger([]models.StockEntry{
		{ID: "1", Key: keyX},
		{ID: "2", Key: keyX},
	})
	assert.ErrorIs(t, err, ErrDuplicateSKU)
}

func TestStockFilter(t *testing.T) {
	l, err := NewLedger(nil)
	require.NoError(t, err)
	_, _ = l.Create(models.StockKey{Product: "Apple", Size: "L", Location: "Aomori-North"}, 1, 5, "Farm", now)
	_, _ = l.Create(models.StockKey{Product: "Apple", Size: "M", Location: "Iwate"}, 10, 5, "Farm", now)
	_, _ = l.Create(models.StockKey{Product: "Pear", Size: "L", Location: "Aomori-South"}, 10, 5, "Orchard", now)

	assert.Len(t, l.List(StockFilter{Product: "Apple"}), 2)
	assert.Len(t, l.List(StockFilter{LocationContains: "Aomori"}), 2)
	assert.Len(t, l.List(StockFilter{Location: "Iwate", LocationContains: "Aomori"}), 2)
	assert.Len(t, l.List(StockFilter{Vendor: "Orchard"}), 1)
	assert.Len(t, l.List(StockFilter{BelowAlertOnly: true}), 1)
	assert.Empty(t, l.List(StockFilter{Product: "Apple", Size: "XL"}))
}

func TestMovementLogAppendAssignsSequence(t *testing.T) {
	log := NewMovementLog([]models.Movement{{Seq: 4, StockID: "x", Kind: models.KindInbound, Actor: "a", Timestamp: now}})

	rec, err := log.Append(models.Movement{StockID: "x", Kind: models.KindOutbound, Quantity: -1, Actor: "a", Timestamp: now})
	require.NoError(t, err)
	assert.Equal(t, int64(5), rec.Seq)
	assert.Equal(t, 2, log.Len())
}

func TestMovementLogAppendRequiresFields(t *testing.T) {
	log := NewMovementLog(nil)

	cases := []models.Movement{
		{Kind: models.KindInbound, Actor: "a", Timestamp: now},
		{StockID: "x", Kind: "teleport", Actor: "a", Timestamp: now},
		{StockID: "x", Kind: models.KindInbound, Timestamp: now},
		{StockID: "x", Kind: models.KindInbound, Actor: "a"},
	}
	for _, c := range cases {
		_, err := log.Append(c)
		assert.ErrorIs(t, err, ErrInvalidMovement)
	}
	assert.Zero(t, log.Len())
}

func TestMovementLogQueryOrderAndFilter(t *testing.T) {
	log := NewMovementLog(nil)
	mk := func(kind models.MovementKind, actor string, at time.Time) {
		_, err := log.Append(models.Movement{StockID: "x", Key: keyX, Kind: kind, Quantity: 1, Actor: actor, Timestamp: at})
		require.NoError(t, err)
	}
	mk(models.KindInbound, "sato", now.Add(-48*time.Hour))
	mk(models.KindOutbound, "suzuki", now.Add(-24*time.Hour))
	mk(models.KindOutbound, "sato", now)

	desc := log.Query(MovementFilter{}, Descending)
	require.Len(t, desc, 3)
	assert.Equal(t, int64(3), desc[0].Seq)

	asc := log.Query(MovementFilter{}, Ascending)
	assert.Equal(t, int64(1), asc[0].Seq)

	assert.Len(t, log.Query(MovementFilter{Kinds: []models.MovementKind{models.KindOutbound}}, Ascending), 2)
	assert.Len(t, log.Query(MovementFilter{Actor: "sato"}, Ascending), 2)
	assert.Len(t, log.Query(MovementFilter{From: now.Add(-24 * time.Hour), To: now}, Ascending), 1)
	assert.Len(t, log.Query(MovementFilter{LocationContains: "Aomo"}, Ascending), 3)
}

func TestMovementLogDeleteLast(t *testing.T) {
	log := NewMovementLog(nil)
	_, ok := log.DeleteLast()
	assert.False(t, ok)

	_, _ = log.Append(models.Movement{StockID: "x", Kind: models.KindInbound, Actor: "a", Timestamp: now})
	last, _ := log.Append(models.Movement{StockID: "x", Kind: models.KindOutbound, Actor: "a", Timestamp: now})

	removed, ok := log.DeleteLast()
	require.True(t, ok)
	assert.Equal(t, last.Seq, removed.Seq)
	assert.Equal(t, 1, log.Len())
}

func TestReservationQueueScheduleAndDue(t *testing.T) {
	q := NewReservationQueue(nil)
	e := models.StockEntry{ID: "x", Key: keyX}

	late, err := q.Schedule(e, 2, today.AddDate(0, 0, -1), "sato", now)
	require.NoError(t, err)
	early, err := q.Schedule(e, 3, today.AddDate(0, 0, -3), "sato", now)
	require.NoError(t, err)
	tie, err := q.Schedule(e, 4, today.AddDate(0, 0, -1), "sato", now)
	require.NoError(t, err)
	_, err = q.Schedule(e, 5, today.AddDate(0, 0, 1), "sato", now)
	require.NoError(t, err)

	due := q.Due(now)
	require.Len(t, due, 3)
	assert.Equal(t, early.ID, due[0].ID)
	assert.Equal(t, late.ID, due[1].ID)
	assert.Equal(t, tie.ID, due[2].ID)

	assert.Equal(t, 14, q.Outstanding("x"))
}

func TestReservationQueueRejectsInvalid(t *testing.T) {
	q := NewReservationQueue(nil)
	e := models.StockEntry{ID: "x", Key: keyX}

	_, err := q.Schedule(e, 0, today, "sato", now)
	assert.ErrorIs(t, err, ErrInvalidReservation)
	_, err = q.Schedule(e, 1, today, " ", now)
	assert.ErrorIs(t, err, ErrInvalidReservation)
	_, err = q.Schedule(e, 1, time.Time{}, "sato", now)
	assert.ErrorIs(t, err, ErrInvalidReservation)
}

func TestReservationQueueCancel(t *testing.T) {
	q := NewReservationQueue(nil)
	r, err := q.Schedule(models.StockEntry{ID: "x", Key: keyX}, 2, today, "sato", now)
	require.NoError(t, err)

	_, err = q.Cancel(r.ID)
	require.NoError(t, err)
	assert.Zero(t, q.Len())

	_, err = q.Cancel(r.ID)
	assert.ErrorIs(t, err, ErrUnknownReservation)
}

func TestReconcileAppliesDueReservation(t *testing.T) {
	l, e := newLedgerWithX(t, 2, 5)
	log := NewMovementLog(nil)
	q := NewReservationQueue(nil)
	r, err := q.Schedule(e, 3, today.AddDate(0, 0, -1), "sato", now)
	require.NoError(t, err)

	res := Reconcile(l, log, q, today, now)

	require.Len(t, res.Applied, 1)
	assert.Empty(t, res.Failed)
	assert.True(t, res.LedgerChanged)

	got, _ := l.Get(e.ID)
	assert.Equal(t, -1, got.OnHand)
	assert.Equal(t, res.Applied[0].Seq, got.LastSeq)

	recs := log.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, models.KindReservationFulfilled, recs[0].Kind)
	assert.Equal(t, -3, recs[0].Quantity)
	assert.Equal(t, r.ID, recs[0].Reference)
	assert.Equal(t, "sato", recs[0].Actor)

	assert.Zero(t, q.Len())
}

func TestReconcileIsIdempotent(t *testing.T) {
	l, e := newLedgerWithX(t, 20, 5)
	log := NewMovementLog(nil)
	q := NewReservationQueue(nil)
	_, _ = q.Schedule(e, 3, today, "sato", now)
	_, _ = q.Schedule(e, 4, today.AddDate(0, 0, 2), "sato", now)

	first := Reconcile(l, log, q, today, now)
	require.True(t, first.Changed())
	afterFirst, _ := l.Get(e.ID)

	second := Reconcile(l, log, q, today, now)
	assert.False(t, second.Changed())

	afterSecond, _ := l.Get(e.ID)
	assert.Equal(t, afterFirst, afterSecond)
	assert.Equal(t, 1, log.Len())
	assert.Equal(t, 1, q.Len())
}

func TestReconcileRetainsReservationForMissingSKU(t *testing.T) {
	l, e := newLedgerWithX(t, 20, 5)
	log := NewMovementLog(nil)
	q := NewReservationQueue(nil)

	orphan, _ := q.Schedule(models.StockEntry{ID: "gone", Key: models.StockKey{Product: "Ghost"}}, 1, today, "sato", now)
	good, _ := q.Schedule(e, 2, today, "sato", now)

	res := Reconcile(l, log, q, today, now)

	require.Len(t, res.Failed, 1)
	assert.Equal(t, orphan.ID, res.Failed[0].Reservation.ID)
	require.Len(t, res.Applied, 1)
	assert.Equal(t, good.ID, res.Applied[0].Reference)

	kept, ok := q.Get(orphan.ID)
	require.True(t, ok)
	assert.Equal(t, models.ReservationStatusFailed, kept.Status)
	assert.NotEmpty(t, kept.Failure)

	_, ok = q.Get(good.ID)
	assert.False(t, ok)

	// flagged reservations are not retried
	again := Reconcile(l, log, q, today, now)
	assert.False(t, again.Changed())
}

func TestReconcileEveryDueReservationIsRemovedOrFlagged(t *testing.T) {
	l, e := newLedgerWithX(t, 0, 0)
	log := NewMovementLog(nil)
	q := NewReservationQueue(nil)

	var due []models.Reservation
	for i := 1; i <= 5; i++ {
		target := e
		if i%2 == 0 {
			target = models.StockEntry{ID: "gone"}
		}
		r, err := q.Schedule(target, i, today.AddDate(0, 0, -i), "sato", now)
		require.NoError(t, err)
		due = append(due, r)
	}

	Reconcile(l, log, q, today, now)

	for _, r := range due {
		kept, present := q.Get(r.ID)
		if present {
			assert.Equal(t, models.ReservationStatusFailed, kept.Status, r.ID)
		} else {
			_, logged := log.FulfillmentOf(r.ID)
			assert.True(t, logged, r.ID)
		}
	}
}

func TestReconcileReplaysWithoutDoubleApplying(t *testing.T) {
	l, e := newLedgerWithX(t, 10, 0)
	log := NewMovementLog(nil)
	q := NewReservationQueue(nil)
	r, _ := q.Schedule(e, 3, today, "sato", now)

	// the log write landed but neither the ledger nor the queue did
	done, err := log.Append(models.Movement{
		Timestamp: now, StockID: e.ID, Key: e.Key, Kind: models.KindReservationFulfilled,
		Quantity: -3, Actor: "sato", Reference: r.ID,
	})
	require.NoError(t, err)

	res := Reconcile(l, log, q, today, now)
	assert.Len(t, res.Replayed, 1)
	assert.Empty(t, res.Applied)
	assert.True(t, res.LedgerChanged)

	got, _ := l.Get(e.ID)
	assert.Equal(t, 7, got.OnHand)
	assert.Equal(t, done.Seq, got.LastSeq)
	assert.Equal(t, 1, log.Len())
	assert.Zero(t, q.Len())
}

func TestReconcileReplaysWhenLedgerAlreadyCurrent(t *testing.T) {
	l, e := newLedgerWithX(t, 10, 0)
	log := NewMovementLog(nil)
	q := NewReservationQueue(nil)
	r, _ := q.Schedule(e, 3, today, "sato", now)

	// log and ledger written, queue write lost
	done, _ := log.Append(models.Movement{
		Timestamp: now, StockID: e.ID, Key: e.Key, Kind: models.KindReservationFulfilled,
		Quantity: -3, Actor: "sato", Reference: r.ID,
	})
	_, _ = l.Adjust(e.ID, -3, now)
	l.Stamp(e.ID, done.Seq)

	res := Reconcile(l, log, q, today, now)
	assert.Len(t, res.Replayed, 1)
	assert.False(t, res.LedgerChanged)

	got, _ := l.Get(e.ID)
	assert.Equal(t, 7, got.OnHand)
	assert.Zero(t, q.Len())
}

func TestReconcileReplaysAfterTailDeletion(t *testing.T) {
	l, e := newLedgerWithX(t, 10, 0)
	log := NewMovementLog(nil)
	created, err := log.Append(models.Movement{Timestamp: now, StockID: e.ID, Key: e.Key, Kind: models.KindCreation, Quantity: 10, Actor: "sato"})
	require.NoError(t, err)
	l.Stamp(e.ID, created.Seq)
	out, err := log.Append(models.Movement{Timestamp: now, StockID: e.ID, Key: e.Key, Kind: models.KindOutbound, Quantity: -1, Actor: "sato"})
	require.NoError(t, err)
	_, _ = l.Adjust(e.ID, -1, now)
	l.Stamp(e.ID, out.Seq)

	// the outbound record is removed by hand, the ledger keeps its effect
	_, ok := log.DeleteLast()
	require.True(t, ok)
	log = NewMovementLog(log.Records())

	q := NewReservationQueue(nil)
	r, err := q.Schedule(e, 3, today.AddDate(0, 0, -1), "sato", now)
	require.NoError(t, err)

	savedLedger := l.Entries()
	savedQueue := q.List()

	res := Reconcile(l, log, q, today, now)
	require.Len(t, res.Applied, 1)
	assert.Greater(t, res.Applied[0].Seq, out.Seq)

	// only the log write landed
	l, err = NewLedger(savedLedger)
	require.NoError(t, err)
	log = NewMovementLog(log.Records())
	q = NewReservationQueue(savedQueue)

	replay := Reconcile(l, log, q, today, now)
	require.Len(t, replay.Replayed, 1)
	assert.Equal(t, r.ID, replay.Replayed[0].ID)
	assert.True(t, replay.LedgerChanged)

	got, _ := l.Get(e.ID)
	assert.Equal(t, 6, got.OnHand)
	assert.Equal(t, res.Applied[0].Seq, got.LastSeq)
	assert.Zero(t, q.Len())
}

func TestMovementLogReserveThrough(t *testing.T) {
	log := NewMovementLog([]models.Movement{{Seq: 1, StockID: "x", Kind: models.KindInbound, Actor: "a", Timestamp: now}})
	log.ReserveThrough(4)
	log.ReserveThrough(2)

	rec, err := log.Append(models.Movement{StockID: "x", Kind: models.KindInbound, Actor: "a", Timestamp: now})
	require.NoError(t, err)
	assert.Equal(t, int64(5), rec.Seq)
}
