package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"stock-ledger/internal/models"
	"stock-ledger/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func stockKey(stockID string) string {
	return fmt.Sprintf("stock-%s", stockID)
}

// PublishMovementRecorded publishes MovementRecorded event
func (ep *EventPublisher) PublishMovementRecorded(ctx context.Context, event *models.MovementRecordedEvent) error {
	return ep.producer.PublishEvent(ctx, stockKey(event.StockID), event)
}

// PublishReservation publishes a reservation scheduled, cancelled or failed event
func (ep *EventPublisher) PublishReservation(ctx context.Context, event *models.ReservationEvent) error {
	return ep.producer.PublishEvent(ctx, stockKey(event.StockID), event)
}

// PublishStockDeleted publishes StockDeleted event
func (ep *EventPublisher) PublishStockDeleted(ctx context.Context, event *models.StockDeletedEvent) error {
	return ep.producer.PublishEvent(ctx, stockKey(event.StockID), event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onMovementRecorded  func(context.Context, *models.MovementRecordedEvent) error
	onStockDeleted      func(context.Context, *models.StockDeletedEvent) error
	onReservationFailed func(context.Context, *models.ReservationEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnMovementRecorded registers a handler for MovementRecorded events
func (eh *EventHandler) OnMovementRecorded(handler func(context.Context, *models.MovementRecordedEvent) error) {
	eh.onMovementRecorded = handler
}

// OnStockDeleted registers a handler for StockDeleted events
func (eh *EventHandler) OnStockDeleted(handler func(context.Context, *models.StockDeletedEvent) error) {
	eh.onStockDeleted = handler
}

// OnReservationFailed registers a handler for ReservationFailed events
func (eh *EventHandler) OnReservationFailed(handler func(context.Context, *models.ReservationEvent) error) {
	eh.onReservationFailed = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	logger := util.GetLogger()
	logger.Debug("Handling event", zap.String("type", baseEvent.EventType), zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeMovementRecorded:
		if eh.onMovementRecorded != nil {
			var event models.MovementRecordedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal MovementRecorded event: %w", err)
			}
			return eh.onMovementRecorded(ctx, &event)
		}

	case models.EventTypeStockDeleted:
		if eh.onStockDeleted != nil {
			var event models.StockDeletedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal StockDeleted event: %w", err)
			}
			return eh.onStockDeleted(ctx, &event)
		}

	case models.EventTypeReservationFailed:
		if eh.onReservationFailed != nil {
			var event models.ReservationEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ReservationFailed event: %w", err)
			}
			return eh.onReservationFailed(ctx, &event)
		}

	case models.EventTypeReservationScheduled, models.EventTypeReservationCancelled:
		// informational only

	default:
		logger.Warn("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
