package worker

import (
	"context"
	"fmt"

	"stock-ledger/internal/broker"
	"stock-ledger/internal/models"
	"stock-ledger/internal/util"

	"go.uber.org/zap"
)

// LowStockSet tracks which stock ids are below their alert threshold
type LowStockSet interface {
	MarkLowStock(ctx context.Context, stockID string) error
	ClearLowStock(ctx context.Context, stockID string) error
	LowStockCount(ctx context.Context) (int64, error)
}

// AlertWorker follows stock events and keeps the below-alert set current
type AlertWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	alerts       LowStockSet
	logger       *zap.Logger
}

// NewAlertWorker creates a new alert worker
func NewAlertWorker(consumer *broker.Consumer, alerts LowStockSet) *AlertWorker {
	w := &AlertWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		alerts:       alerts,
		logger:       util.GetLogger(),
	}

	w.eventHandler.OnMovementRecorded(w.HandleMovementRecorded)
	w.eventHandler.OnStockDeleted(w.HandleStockDeleted)
	w.eventHandler.OnReservationFailed(w.HandleReservationFailed)

	return w
}

// Start starts the worker
func (w *AlertWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting alert worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *AlertWorker) Stop() error {
	w.logger.Info("Stopping alert worker")
	return w.consumer.Close()
}

// HandleMovementRecorded adds or removes the stock id depending on its alert state
func (w *AlertWorker) HandleMovementRecorded(ctx context.Context, event *models.MovementRecordedEvent) error {
	var err error
	if event.BelowAlert {
		err = w.alerts.MarkLowStock(ctx, event.StockID)
	} else {
		err = w.alerts.ClearLowStock(ctx, event.StockID)
	}
	if err != nil {
		return fmt.Errorf("failed to update low stock set: %w", err)
	}

	if event.BelowAlert {
		w.logger.Info("Stock below alert threshold",
			zap.String("stock_id", event.StockID),
			zap.String("key", event.Key.String()),
			zap.Int("on_hand", event.OnHand),
			zap.Int("alert_threshold", event.AlertThreshold))
	}
	return w.refreshGauge(ctx)
}

// HandleStockDeleted drops a deleted stock id from the set
func (w *AlertWorker) HandleStockDeleted(ctx context.Context, event *models.StockDeletedEvent) error {
	if err := w.alerts.ClearLowStock(ctx, event.StockID); err != nil {
		return fmt.Errorf("failed to update low stock set: %w", err)
	}
	return w.refreshGauge(ctx)
}

// HandleReservationFailed reports a reservation that reconciliation could not apply
func (w *AlertWorker) HandleReservationFailed(_ context.Context, event *models.ReservationEvent) error {
	w.logger.Warn("Reservation needs manual inspection",
		zap.String("reservation_id", event.ReservationID),
		zap.String("stock_id", event.StockID),
		zap.String("key", event.Key.String()),
		zap.String("reason", event.Reason))
	return nil
}

func (w *AlertWorker) refreshGauge(ctx context.Context) error {
	n, err := w.alerts.LowStockCount(ctx)
	if err != nil {
		return fmt.Errorf("failed to count low stock: %w", err)
	}
	util.LowStockItems.Set(float64(n))
	return nil
}
