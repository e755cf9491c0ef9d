package ledger

import (
	"errors"
	"fmt"

	"stock-ledger/internal/models"
)

var (
	ErrDuplicateSKU       = errors.New("sku already exists")
	ErrUnknownSKU         = errors.New("sku not found")
	ErrUnknownReservation = errors.New("reservation not found")
	ErrInvalidEntry       = errors.New("invalid stock entry")
	ErrInvalidMovement    = errors.New("invalid movement")
	ErrInvalidReservation = errors.New("invalid reservation")
)

// PartialReconciliationFailure describes a due reservation that could not be applied.
// The reservation stays in the queue flagged as failed.
type PartialReconciliationFailure struct {
	Reservation models.Reservation
	Reason      string
}

func (f PartialReconciliationFailure) Error() string {
	return fmt.Sprintf("reservation %s for %s not applied: %s",
		f.Reservation.ID, f.Reservation.Key, f.Reason)
}
