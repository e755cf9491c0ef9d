package ledger

import (
	"time"

	"stock-ledger/internal/models"
)

// ReconcileResult reports what a reconciliation pass changed
type ReconcileResult struct {
	// Applied holds the log records appended for fulfilled reservations
	Applied []models.Movement
	// Replayed holds reservations whose fulfillment was already in the log
	Replayed []models.Reservation
	Failed   []PartialReconciliationFailure

	LedgerChanged bool
}

// LogChanged reports whether the movement log needs persisting
func (r ReconcileResult) LogChanged() bool {
	return len(r.Applied) > 0
}

// QueueChanged reports whether the reservation queue needs persisting
func (r ReconcileResult) QueueChanged() bool {
	return len(r.Applied) > 0 || len(r.Replayed) > 0 || len(r.Failed) > 0
}

// Changed reports whether anything needs persisting
func (r ReconcileResult) Changed() bool {
	return r.LedgerChanged || r.LogChanged() || r.QueueChanged()
}

// Reconcile folds every reservation due on or before today into the ledger and log.
//
// A reservation already fulfilled in the log is not applied twice: the ledger is only
// brought forward when its entry's LastSeq is behind the fulfillment record, and the
// reservation is then dropped. A reservation whose SKU is gone is flagged and kept.
// Running Reconcile again with nothing new due changes nothing.
//
// Sequence numbers already folded into the ledger are never reused, even after the
// records carrying them were deleted from the log.
func Reconcile(l *Ledger, log *MovementLog, q *ReservationQueue, today, now time.Time) ReconcileResult {
	var res ReconcileResult
	log.ReserveThrough(l.HighWater())

	for _, r := range q.Due(today) {
		if done, ok := log.FulfillmentOf(r.ID); ok {
			if e, exists := l.Get(r.StockID); exists && e.LastSeq < done.Seq {
				if _, err := l.Adjust(r.StockID, done.Quantity, now); err == nil {
					l.Stamp(r.StockID, done.Seq)
					res.LedgerChanged = true
				}
			}
			q.Remove(r.ID)
			res.Replayed = append(res.Replayed, r)
			continue
		}

		e, ok := l.Get(r.StockID)
		if !ok {
			failure := PartialReconciliationFailure{Reservation: r, Reason: ErrUnknownSKU.Error()}
			q.Flag(r.ID, failure.Reason)
			failure.Reservation.Status = models.ReservationStatusFailed
			failure.Reservation.Failure = failure.Reason
			res.Failed = append(res.Failed, failure)
			continue
		}

		if _, err := l.Adjust(e.ID, -r.Quantity, now); err != nil {
			q.Flag(r.ID, err.Error())
			res.Failed = append(res.Failed, PartialReconciliationFailure{Reservation: r, Reason: err.Error()})
			continue
		}

		rec, err := log.Append(models.Movement{
			Timestamp: now,
			StockID:   e.ID,
			Key:       e.Key,
			Kind:      models.KindReservationFulfilled,
			Quantity:  -r.Quantity,
			Actor:     r.Actor,
			Reference: r.ID,
		})
		if err != nil {
			// roll the ledger back so the entry and the log stay in step
			_, _ = l.Adjust(e.ID, r.Quantity, now)
			q.Flag(r.ID, err.Error())
			res.Failed = append(res.Failed, PartialReconciliationFailure{Reservation: r, Reason: err.Error()})
			continue
		}

		l.Stamp(e.ID, rec.Seq)
		q.Remove(r.ID)
		res.Applied = append(res.Applied, rec)
		res.LedgerChanged = true
	}

	return res
}
