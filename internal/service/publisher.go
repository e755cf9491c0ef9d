package service

import (
	"context"

	"stock-ledger/internal/models"
)

// Publisher emits stock events after a change is persisted
type Publisher interface {
	PublishMovementRecorded(ctx context.Context, event *models.MovementRecordedEvent) error
	PublishReservation(ctx context.Context, event *models.ReservationEvent) error
	PublishStockDeleted(ctx context.Context, event *models.StockDeletedEvent) error
}

// NopPublisher drops every event. Used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishMovementRecorded(context.Context, *models.MovementRecordedEvent) error {
	return nil
}

func (NopPublisher) PublishReservation(context.Context, *models.ReservationEvent) error {
	return nil
}

func (NopPublisher) PublishStockDeleted(context.Context, *models.StockDeletedEvent) error {
	return nil
}
