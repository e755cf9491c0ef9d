package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stock-ledger/internal/ledger"
	"stock-ledger/internal/models"
	"stock-ledger/internal/store"
	"stock-ledger/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ErrEmptyLog is returned when there is no movement left to delete
var ErrEmptyLog = errors.New("movement log is empty")

// StockService handles ledger, log and reservation business logic.
// Every call loads the tables, reconciles due reservations, applies its change
// and persists the touched tables in the order log, ledger, reservations.
type StockService struct {
	tables    *store.Tables
	publisher Publisher
	location  *time.Location
	now       func() time.Time
	logger    *zap.Logger
}

// NewStockService creates a new stock service. Civil dates are taken in location.
func NewStockService(tables *store.Tables, publisher Publisher, location *time.Location) *StockService {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if location == nil {
		location = time.UTC
	}
	return &StockService{
		tables:    tables,
		publisher: publisher,
		location:  location,
		now:       time.Now,
		logger:    util.GetLogger(),
	}
}

// StockView is a ledger entry with its reservation figures
type StockView struct {
	models.StockEntry
	Outstanding int  `json:"outstanding"`
	Available   int  `json:"available"`
	BelowAlert  bool `json:"below_alert"`
}

// RegisterRequest represents a request to register a SKU
type RegisterRequest struct {
	Product        string `json:"product" binding:"required"`
	Size           string `json:"size"`
	Location       string `json:"location"`
	Vendor         string `json:"vendor"`
	OnHand         int    `json:"on_hand"`
	AlertThreshold int    `json:"alert_threshold"`
	Actor          string `json:"actor" binding:"required"`
}

// MovementRequest represents an inbound, outbound or adjustment movement.
// Inbound and outbound take a positive magnitude; adjustment takes a signed delta.
type MovementRequest struct {
	Kind      models.MovementKind `json:"kind" binding:"required"`
	Quantity  int                 `json:"quantity"`
	Actor     string              `json:"actor" binding:"required"`
	Reference string              `json:"reference"`
}

// MovementResult is the entry after a movement and the record it produced
type MovementResult struct {
	Stock    StockView       `json:"stock"`
	Movement models.Movement `json:"movement"`
}

// RelabelRequest moves a SKU to a new size and location. An omitted field keeps its current value.
type RelabelRequest struct {
	Size     *string `json:"size"`
	Location *string `json:"location"`
	Actor    string  `json:"actor" binding:"required"`
}

// ReservationRequest schedules an outbound movement for a civil date (YYYY-MM-DD)
type ReservationRequest struct {
	Quantity int    `json:"quantity" binding:"required,min=1"`
	DueDate  string `json:"due_date" binding:"required"`
	Actor    string `json:"actor" binding:"required"`
}

// Today returns the current civil date in the business time zone
func (s *StockService) Today() time.Time {
	return models.Day(s.now().In(s.location))
}

// Location returns the business time zone
func (s *StockService) Location() *time.Location {
	return s.location
}

// Current loads and reconciles the tables
func (s *StockService) Current(ctx context.Context) (*store.Snapshot, error) {
	snap, _, err := s.snapshot(ctx)
	return snap, err
}

// Register creates a SKU and logs its initial on-hand
func (s *StockService) Register(ctx context.Context, req *RegisterRequest) (*StockView, error) {
	ctx, span := util.StartSpan(ctx, "StockService.Register")
	defer span.End()

	if err := requireActor(req.Actor); err != nil {
		return nil, err
	}

	snap, _, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	key := models.StockKey{Product: req.Product, Size: req.Size, Location: req.Location}
	entry, err := snap.Ledger.Create(key, req.OnHand, req.AlertThreshold, req.Vendor, now)
	if err != nil {
		return nil, fmt.Errorf("failed to register stock: %w", err)
	}

	rec, err := s.appendRecord(snap, entry, models.KindCreation, req.OnHand, req.Actor, "", now)
	if err != nil {
		return nil, err
	}

	if err := s.persist(ctx, snap, true, true, false); err != nil {
		return nil, err
	}

	s.logger.Info("Stock registered",
		zap.String("stock_id", entry.ID),
		zap.String("key", entry.Key.String()),
		zap.Int("on_hand", entry.OnHand))
	s.recorded(ctx, snap, rec)

	view := s.view(snap, entry.ID)
	return &view, nil
}

// RecordMovement applies an inbound, outbound or adjustment movement to a SKU
func (s *StockService) RecordMovement(ctx context.Context, stockID string, req *MovementRequest) (*MovementResult, error) {
	ctx, span := util.StartSpan(ctx, "StockService.RecordMovement")
	defer span.End()

	delta, err := movementDelta(req.Kind, req.Quantity)
	if err != nil {
		return nil, err
	}
	if err := requireActor(req.Actor); err != nil {
		return nil, err
	}

	snap, _, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if _, err := snap.Ledger.Adjust(stockID, delta, now); err != nil {
		return nil, fmt.Errorf("failed to record movement: %w", err)
	}
	entry, _ := snap.Ledger.Get(stockID)

	rec, err := s.appendRecord(snap, entry, req.Kind, delta, req.Actor, req.Reference, now)
	if err != nil {
		return nil, err
	}

	if err := s.persist(ctx, snap, true, true, false); err != nil {
		return nil, err
	}

	s.logger.Info("Movement recorded",
		zap.String("stock_id", stockID),
		zap.String("kind", string(req.Kind)),
		zap.Int("quantity", delta),
		zap.Int("on_hand", entry.OnHand))
	s.recorded(ctx, snap, rec)

	return &MovementResult{Stock: s.view(snap, stockID), Movement: rec}, nil
}

// Relabel moves a SKU to a new size and location, keeping its id
func (s *StockService) Relabel(ctx context.Context, stockID string, req *RelabelRequest) (*StockView, error) {
	ctx, span := util.StartSpan(ctx, "StockService.Relabel")
	defer span.End()

	if err := requireActor(req.Actor); err != nil {
		return nil, err
	}

	snap, _, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	size, location := req.Size, req.Location
	if current, ok := snap.Ledger.Get(stockID); ok {
		if size == nil {
			size = &current.Key.Size
		}
		if location == nil {
			location = &current.Key.Location
		}
	}
	if size == nil || location == nil {
		return nil, fmt.Errorf("failed to relabel stock: stock %s: %w", stockID, ledger.ErrUnknownSKU)
	}

	now := s.now()
	oldKey, err := snap.Ledger.Relabel(stockID, *size, *location, now)
	if err != nil {
		return nil, fmt.Errorf("failed to relabel stock: %w", err)
	}
	entry, _ := snap.Ledger.Get(stockID)
	if entry.Key == oldKey {
		view := s.view(snap, stockID)
		return &view, nil
	}

	rec, err := s.appendRecord(snap, entry, models.KindRelabel, 0, req.Actor, "from "+oldKey.String(), now)
	if err != nil {
		return nil, err
	}
	rekeyed := snap.Queue.Rekey(stockID, entry.Key)

	if err := s.persist(ctx, snap, true, true, rekeyed > 0); err != nil {
		return nil, err
	}

	s.logger.Info("Stock relabeled",
		zap.String("stock_id", stockID),
		zap.String("from", oldKey.String()),
		zap.String("to", entry.Key.String()),
		zap.Int("reservations", rekeyed))
	s.recorded(ctx, snap, rec)

	view := s.view(snap, stockID)
	return &view, nil
}

// Delete removes a SKU and logs its remaining on-hand going out
func (s *StockService) Delete(ctx context.Context, stockID, actor string) (*models.StockEntry, error) {
	ctx, span := util.StartSpan(ctx, "StockService.Delete")
	defer span.End()

	if err := requireActor(actor); err != nil {
		return nil, err
	}

	snap, _, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	entry, ok := snap.Ledger.Get(stockID)
	if !ok {
		return nil, fmt.Errorf("failed to delete stock %s: %w", stockID, ledger.ErrUnknownSKU)
	}

	now := s.now()
	rec, err := s.appendRecord(snap, entry, models.KindDeletion, -entry.OnHand, actor, "", now)
	if err != nil {
		return nil, err
	}
	if _, err := snap.Ledger.Delete(stockID); err != nil {
		return nil, fmt.Errorf("failed to delete stock: %w", err)
	}

	if err := s.persist(ctx, snap, true, true, false); err != nil {
		return nil, err
	}

	s.logger.Info("Stock deleted", zap.String("stock_id", stockID), zap.String("key", entry.Key.String()))
	if pending := snap.Queue.Outstanding(stockID); pending > 0 {
		s.logger.Warn("Deleted stock still has scheduled reservations",
			zap.String("stock_id", stockID),
			zap.Int("outstanding", pending))
	}
	s.recorded(ctx, snap, rec)

	event := &models.StockDeletedEvent{
		BaseEvent: newBaseEvent(models.EventTypeStockDeleted),
		StockID:   stockID,
		Key:       entry.Key,
	}
	if err := s.publisher.PublishStockDeleted(ctx, event); err != nil {
		s.logger.Error("Failed to publish StockDeleted event", zap.Error(err))
	}

	return &entry, nil
}

// ScheduleReservation queues an outbound movement for a future date.
// Availability is not checked.
func (s *StockService) ScheduleReservation(ctx context.Context, stockID string, req *ReservationRequest) (*models.Reservation, error) {
	ctx, span := util.StartSpan(ctx, "StockService.ScheduleReservation")
	defer span.End()

	due, err := time.Parse(models.DateLayout, strings.TrimSpace(req.DueDate))
	if err != nil {
		return nil, fmt.Errorf("invalid due date %q: %w", req.DueDate, ledger.ErrInvalidReservation)
	}

	snap, _, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	entry, ok := snap.Ledger.Get(stockID)
	if !ok {
		return nil, fmt.Errorf("failed to schedule reservation for %s: %w", stockID, ledger.ErrUnknownSKU)
	}

	r, err := snap.Queue.Schedule(entry, req.Quantity, due, req.Actor, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to schedule reservation: %w", err)
	}

	if err := s.persist(ctx, snap, false, false, true); err != nil {
		return nil, err
	}

	util.ReservationsScheduledTotal.Inc()
	s.logger.Info("Reservation scheduled",
		zap.String("reservation_id", r.ID),
		zap.String("stock_id", stockID),
		zap.Int("quantity", r.Quantity),
		zap.String("due_date", r.DueDate.Format(models.DateLayout)))
	s.publishReservation(ctx, models.EventTypeReservationScheduled, r, "")

	return &r, nil
}

// CancelReservation removes a reservation without touching the ledger
func (s *StockService) CancelReservation(ctx context.Context, reservationID string) (*models.Reservation, error) {
	ctx, span := util.StartSpan(ctx, "StockService.CancelReservation")
	defer span.End()

	snap, _, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	r, err := snap.Queue.Cancel(reservationID)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel reservation: %w", err)
	}

	if err := s.persist(ctx, snap, false, false, true); err != nil {
		return nil, err
	}

	util.ReservationsCancelledTotal.Inc()
	s.logger.Info("Reservation cancelled", zap.String("reservation_id", r.ID), zap.String("stock_id", r.StockID))
	s.publishReservation(ctx, models.EventTypeReservationCancelled, r, "")

	return &r, nil
}

// Reconcile runs a reconciliation pass and reports what it did
func (s *StockService) Reconcile(ctx context.Context) (*ledger.ReconcileResult, error) {
	ctx, span := util.StartSpan(ctx, "StockService.Reconcile")
	defer span.End()

	_, res, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ListStock returns the reconciled ledger rows matching filter
func (s *StockService) ListStock(ctx context.Context, filter ledger.StockFilter) ([]StockView, error) {
	ctx, span := util.StartSpan(ctx, "StockService.ListStock")
	defer span.End()

	snap, _, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	entries := snap.Ledger.List(filter)
	views := make([]StockView, 0, len(entries))
	for _, e := range entries {
		views = append(views, newStockView(e, snap.Queue))
	}
	return views, nil
}

// GetStock returns one reconciled ledger row
func (s *StockService) GetStock(ctx context.Context, stockID string) (*StockView, error) {
	ctx, span := util.StartSpan(ctx, "StockService.GetStock")
	defer span.End()

	snap, _, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	if _, ok := snap.Ledger.Get(stockID); !ok {
		return nil, fmt.Errorf("stock %s: %w", stockID, ledger.ErrUnknownSKU)
	}
	view := s.view(snap, stockID)
	return &view, nil
}

// ListMovements queries the movement log
func (s *StockService) ListMovements(ctx context.Context, filter ledger.MovementFilter, order ledger.Order) ([]models.Movement, error) {
	ctx, span := util.StartSpan(ctx, "StockService.ListMovements")
	defer span.End()

	snap, _, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Log.Query(filter, order), nil
}

// ListReservations returns queued reservations, optionally for one SKU
func (s *StockService) ListReservations(ctx context.Context, stockID string) ([]models.Reservation, error) {
	ctx, span := util.StartSpan(ctx, "StockService.ListReservations")
	defer span.End()

	snap, _, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	all := snap.Queue.List()
	if stockID == "" {
		return all, nil
	}
	out := make([]models.Reservation, 0, len(all))
	for _, r := range all {
		if r.StockID == stockID {
			out = append(out, r)
		}
	}
	return out, nil
}

// DeleteLastMovement removes the newest log record. The ledger is left as is.
func (s *StockService) DeleteLastMovement(ctx context.Context) (*models.Movement, error) {
	ctx, span := util.StartSpan(ctx, "StockService.DeleteLastMovement")
	defer span.End()

	snap, _, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	rec, ok := snap.Log.DeleteLast()
	if !ok {
		return nil, ErrEmptyLog
	}

	if err := s.persist(ctx, snap, true, false, false); err != nil {
		return nil, err
	}

	s.logger.Warn("Movement record deleted",
		zap.Int64("seq", rec.Seq),
		zap.String("stock_id", rec.StockID),
		zap.String("kind", string(rec.Kind)),
		zap.Int("quantity", rec.Quantity))

	return &rec, nil
}

// snapshot loads the tables and folds in due reservations, persisting any change
func (s *StockService) snapshot(ctx context.Context) (*store.Snapshot, ledger.ReconcileResult, error) {
	snap, err := s.tables.Load(ctx)
	if err != nil {
		return nil, ledger.ReconcileResult{}, fmt.Errorf("failed to load tables: %w", err)
	}

	start := time.Now()
	now := s.now()
	res := ledger.Reconcile(snap.Ledger, snap.Log, snap.Queue, models.Day(now.In(s.location)), now)
	util.ReconcileLatency.Observe(time.Since(start).Seconds())

	if !res.Changed() {
		return snap, res, nil
	}

	for _, f := range res.Failed {
		s.logger.Warn("Reservation not applied",
			zap.String("reservation_id", f.Reservation.ID),
			zap.String("stock_id", f.Reservation.StockID),
			zap.String("key", f.Reservation.Key.String()),
			zap.String("reason", f.Reason))
	}

	if err := s.persist(ctx, snap, res.LogChanged(), res.LedgerChanged, res.QueueChanged()); err != nil {
		return nil, res, fmt.Errorf("failed to persist reconciliation: %w", err)
	}

	util.ReservationsFulfilledTotal.Add(float64(len(res.Applied)))
	util.ReservationsFailedTotal.Add(float64(len(res.Failed)))
	s.logger.Info("Reconciliation applied",
		zap.Int("applied", len(res.Applied)),
		zap.Int("replayed", len(res.Replayed)),
		zap.Int("failed", len(res.Failed)))

	for _, rec := range res.Applied {
		s.recorded(ctx, snap, rec)
	}
	for _, f := range res.Failed {
		s.publishReservation(ctx, models.EventTypeReservationFailed, f.Reservation, f.Reason)
	}

	return snap, res, nil
}

// persist saves the touched tables in the order log, ledger, reservations and stops at the first failure
func (s *StockService) persist(ctx context.Context, snap *store.Snapshot, log, ledgerTable, queue bool) error {
	ctx, span := util.StartSpan(ctx, "StockService.persist",
		attribute.Bool("table.log", log),
		attribute.Bool("table.ledger", ledgerTable),
		attribute.Bool("table.reservations", queue))
	defer span.End()

	steps := []struct {
		table string
		dirty bool
		save  func(context.Context, *store.Snapshot) error
	}{
		{store.TableLog, log, s.tables.SaveLog},
		{store.TableLedger, ledgerTable, s.tables.SaveLedger},
		{store.TableReservations, queue, s.tables.SaveReservations},
	}

	for _, step := range steps {
		if !step.dirty {
			continue
		}
		if err := step.save(ctx, snap); err != nil {
			if errors.Is(err, store.ErrStaleWrite) {
				util.StaleWritesTotal.WithLabelValues(step.table).Inc()
			}
			s.logger.Error("Failed to save table", zap.String("table", step.table), zap.Error(err))
			return util.RecordSpanError(span, fmt.Errorf("failed to save %s: %w", step.table, err))
		}
	}
	return nil
}

func (s *StockService) appendRecord(snap *store.Snapshot, entry models.StockEntry, kind models.MovementKind, quantity int, actor, reference string, now time.Time) (models.Movement, error) {
	rec, err := snap.Log.Append(models.Movement{
		Timestamp: now,
		StockID:   entry.ID,
		Key:       entry.Key,
		Kind:      kind,
		Quantity:  quantity,
		Actor:     strings.TrimSpace(actor),
		Reference: reference,
	})
	if err != nil {
		return rec, fmt.Errorf("failed to append movement: %w", err)
	}
	snap.Ledger.Stamp(entry.ID, rec.Seq)
	return rec, nil
}

// recorded counts and publishes a persisted log record
func (s *StockService) recorded(ctx context.Context, snap *store.Snapshot, rec models.Movement) {
	util.MovementsRecordedTotal.WithLabelValues(string(rec.Kind)).Inc()

	event := &models.MovementRecordedEvent{
		BaseEvent: newBaseEvent(models.EventTypeMovementRecorded),
		StockID:   rec.StockID,
		Key:       rec.Key,
		Seq:       rec.Seq,
		Kind:      rec.Kind,
		Quantity:  rec.Quantity,
		Actor:     rec.Actor,
	}
	if e, ok := snap.Ledger.Get(rec.StockID); ok {
		event.OnHand = e.OnHand
		event.AlertThreshold = e.AlertThreshold
		event.BelowAlert = ledger.BelowAlert(e)
		if event.BelowAlert {
			s.logger.Warn("Stock below alert threshold",
				zap.String("stock_id", e.ID),
				zap.String("key", e.Key.String()),
				zap.Int("on_hand", e.OnHand),
				zap.Int("alert_threshold", e.AlertThreshold))
		}
	}

	if err := s.publisher.PublishMovementRecorded(ctx, event); err != nil {
		s.logger.Error("Failed to publish MovementRecorded event", zap.Error(err))
	}
}

func (s *StockService) publishReservation(ctx context.Context, eventType string, r models.Reservation, reason string) {
	event := &models.ReservationEvent{
		BaseEvent:     newBaseEvent(eventType),
		ReservationID: r.ID,
		StockID:       r.StockID,
		Key:           r.Key,
		Quantity:      r.Quantity,
		DueDate:       r.DueDate,
		Reason:        reason,
	}
	if err := s.publisher.PublishReservation(ctx, event); err != nil {
		s.logger.Error("Failed to publish reservation event", zap.String("type", eventType), zap.Error(err))
	}
}

func (s *StockService) view(snap *store.Snapshot, stockID string) StockView {
	e, _ := snap.Ledger.Get(stockID)
	return newStockView(e, snap.Queue)
}

func newStockView(e models.StockEntry, q *ledger.ReservationQueue) StockView {
	outstanding := q.Outstanding(e.ID)
	return StockView{
		StockEntry:  e,
		Outstanding: outstanding,
		Available:   e.OnHand - outstanding,
		BelowAlert:  ledger.BelowAlert(e),
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

func requireActor(actor string) error {
	if strings.TrimSpace(actor) == "" {
		return fmt.Errorf("actor is required: %w", ledger.ErrInvalidMovement)
	}
	return nil
}

// movementDelta turns a request quantity into the signed on-hand effect
func movementDelta(kind models.MovementKind, quantity int) (int, error) {
	switch kind {
	case models.KindInbound:
		if quantity <= 0 {
			return 0, fmt.Errorf("inbound quantity must be positive, got %d: %w", quantity, ledger.ErrInvalidMovement)
		}
		return quantity, nil
	case models.KindOutbound:
		if quantity <= 0 {
			return 0, fmt.Errorf("outbound quantity must be positive, got %d: %w", quantity, ledger.ErrInvalidMovement)
		}
		return -quantity, nil
	case models.KindAdjustment:
		if quantity == 0 {
			return 0, fmt.Errorf("adjustment must not be zero: %w", ledger.ErrInvalidMovement)
		}
		return quantity, nil
	default:
		return 0, fmt.Errorf("kind %q cannot be recorded directly: %w", kind, ledger.ErrInvalidMovement)
	}
}
