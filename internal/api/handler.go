package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"stock-ledger/internal/ledger"
	"stock-ledger/internal/models"
	"stock-ledger/internal/service"
	"stock-ledger/internal/store"
	"stock-ledger/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// AlertReader lists the stock ids currently below their alert threshold
type AlertReader interface {
	LowStock(ctx context.Context) ([]string, error)
}

// Handler contains HTTP handlers
type Handler struct {
	stockService    *service.StockService
	analysisService *service.AnalysisService
	alerts          AlertReader
	logger          *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(stockService *service.StockService, analysisService *service.AnalysisService) *Handler {
	return &Handler{
		stockService:    stockService,
		analysisService: analysisService,
		logger:          util.GetLogger(),
	}
}

// WithAlerts serves /alerts from the set kept by the alert worker instead of the ledger
func (h *Handler) WithAlerts(alerts AlertReader) *Handler {
	h.alerts = alerts
	return h
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/stock", h.listStock)
		v1.POST("/stock", h.registerStock)
		v1.GET("/stock/:id", h.getStock)
		v1.PATCH("/stock/:id", h.relabelStock)
		v1.DELETE("/stock/:id", h.deleteStock)
		v1.POST("/stock/:id/movements", h.recordMovement)
		v1.POST("/stock/:id/reservations", h.scheduleReservation)

		v1.GET("/movements", h.listMovements)
		v1.DELETE("/movements/last", h.deleteLastMovement)

		v1.GET("/reservations", h.listReservations)
		v1.DELETE("/reservations/:id", h.cancelReservation)

		v1.POST("/reconcile", h.reconcile)

		v1.GET("/alerts", h.listAlerts)

		analysis := v1.Group("/analysis")
		analysis.GET("/summary", h.analysisSummary)
		analysis.GET("/abc", h.analysisABC)
		analysis.GET("/safety-stock", h.analysisSafetyStock)
		analysis.GET("/dead-stock", h.analysisDeadStock)
		analysis.GET("/compare", h.analysisCompare)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck loads the tables once to prove the store is reachable
func (h *Handler) readinessCheck(c *gin.Context) {
	if _, err := h.stockService.Current(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unavailable",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) listStock(c *gin.Context) {
	filter := ledger.StockFilter{
		Product:          c.Query("product"),
		Size:             c.Query("size"),
		Location:         c.Query("location"),
		LocationContains: c.Query("location_contains"),
		Vendor:           c.Query("vendor"),
		BelowAlertOnly:   c.Query("below_alert") == "true",
	}

	stock, err := h.stockService.ListStock(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stock": stock})
}

func (h *Handler) listAlerts(c *gin.Context) {
	if h.alerts != nil {
		ids, err := h.alerts.LowStock(c.Request.Context())
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"stock_ids": ids, "source": "worker"})
		return
	}

	stock, err := h.stockService.ListStock(c.Request.Context(), ledger.StockFilter{BelowAlertOnly: true})
	if err != nil {
		h.writeError(c, err)
		return
	}
	ids := make([]string, 0, len(stock))
	for _, v := range stock {
		ids = append(ids, v.ID)
	}
	c.JSON(http.StatusOK, gin.H{"stock_ids": ids, "source": "ledger"})
}

func (h *Handler) registerStock(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	view, err := h.stockService.Register(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *Handler) getStock(c *gin.Context) {
	view, err := h.stockService.GetStock(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) relabelStock(c *gin.Context) {
	var req service.RelabelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	view, err := h.stockService.Relabel(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) deleteStock(c *gin.Context) {
	actor := c.Query("actor")
	if actor == "" {
		actor = c.GetHeader("X-Actor")
	}

	entry, err := h.stockService.Delete(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *Handler) recordMovement(c *gin.Context) {
	var req service.MovementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.stockService.RecordMovement(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) scheduleReservation(c *gin.Context) {
	var req service.ReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	r, err := h.stockService.ScheduleReservation(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (h *Handler) listMovements(c *gin.Context) {
	filter, err := h.movementFilter(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	order := ledger.Descending
	if c.Query("order") == "asc" {
		order = ledger.Ascending
	}

	movs, err := h.stockService.ListMovements(c.Request.Context(), filter, order)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"movements": movs})
}

func (h *Handler) deleteLastMovement(c *gin.Context) {
	rec, err := h.stockService.DeleteLastMovement(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) listReservations(c *gin.Context) {
	rs, err := h.stockService.ListReservations(c.Request.Context(), c.Query("stock_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reservations": rs})
}

func (h *Handler) cancelReservation(c *gin.Context) {
	r, err := h.stockService.CancelReservation(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handler) reconcile(c *gin.Context) {
	res, err := h.stockService.Reconcile(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	failed := make([]gin.H, 0, len(res.Failed))
	for _, f := range res.Failed {
		failed = append(failed, gin.H{"reservation": f.Reservation, "reason": f.Reason})
	}
	c.JSON(http.StatusOK, gin.H{
		"applied":  res.Applied,
		"replayed": res.Replayed,
		"failed":   failed,
	})
}

func (h *Handler) analysisSummary(c *gin.Context) {
	filter, err := h.movementFilter(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	report, err := h.analysisService.Report(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) analysisABC(c *gin.Context) {
	filter, err := h.movementFilter(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	rows, err := h.analysisService.ABC(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": rows})
}

func (h *Handler) analysisSafetyStock(c *gin.Context) {
	filter, err := h.movementFilter(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	rows, err := h.analysisService.SafetyStock(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": rows})
}

func (h *Handler) analysisDeadStock(c *gin.Context) {
	days := 0
	if s := c.Query("days"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			badRequest(c, fmt.Errorf("days must be a positive integer"))
			return
		}
		days = n
	}

	rows, err := h.analysisService.DeadStock(c.Request.Context(), days)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": rows})
}

func (h *Handler) analysisCompare(c *gin.Context) {
	filter, err := h.movementFilter(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	var month time.Time
	if s := c.Query("month"); s != "" {
		month, err = time.ParseInLocation("2006-01", s, h.stockService.Location())
		if err != nil {
			badRequest(c, fmt.Errorf("month must be YYYY-MM"))
			return
		}
	}

	cmp, err := h.analysisService.Compare(c.Request.Context(), filter, c.Query("mode"), month)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cmp)
}

// movementFilter reads the shared log query parameters. Dates are civil dates in the business time zone.
func (h *Handler) movementFilter(c *gin.Context) (ledger.MovementFilter, error) {
	filter := ledger.MovementFilter{
		StockID:          c.Query("stock_id"),
		Product:          c.Query("product"),
		Size:             c.Query("size"),
		Location:         c.Query("location"),
		LocationContains: c.Query("location_contains"),
		Actor:            c.Query("actor"),
	}

	for _, raw := range c.QueryArray("kind") {
		for _, k := range strings.Split(raw, ",") {
			kind := models.MovementKind(strings.TrimSpace(k))
			if !kind.Valid() {
				return filter, fmt.Errorf("unknown kind %q", k)
			}
			filter.Kinds = append(filter.Kinds, kind)
		}
	}

	loc := h.stockService.Location()
	if s := c.Query("from"); s != "" {
		t, err := time.ParseInLocation(models.DateLayout, s, loc)
		if err != nil {
			return filter, fmt.Errorf("from must be YYYY-MM-DD")
		}
		filter.From = t
	}
	if s := c.Query("to"); s != "" {
		t, err := time.ParseInLocation(models.DateLayout, s, loc)
		if err != nil {
			return filter, fmt.Errorf("to must be YYYY-MM-DD")
		}
		filter.To = t
	}

	return filter, nil
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request",
		"details": err.Error(),
	})
}

// writeError maps domain errors onto HTTP statuses
func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "Internal error"

	switch {
	case errors.Is(err, ledger.ErrInvalidEntry),
		errors.Is(err, ledger.ErrInvalidMovement),
		errors.Is(err, ledger.ErrInvalidReservation),
		errors.Is(err, service.ErrInvalidAnalysis):
		status, message = http.StatusBadRequest, "Invalid request"
	case errors.Is(err, ledger.ErrUnknownSKU):
		status, message = http.StatusNotFound, "Stock not found"
	case errors.Is(err, ledger.ErrUnknownReservation):
		status, message = http.StatusNotFound, "Reservation not found"
	case errors.Is(err, service.ErrEmptyLog):
		status, message = http.StatusNotFound, "No movement to delete"
	case errors.Is(err, ledger.ErrDuplicateSKU):
		status, message = http.StatusConflict, "Stock already exists"
	case errors.Is(err, store.ErrStaleWrite):
		status, message = http.StatusConflict, "Data changed since it was loaded, please retry"
	default:
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}

	c.JSON(status, gin.H{
		"error":   message,
		"details": err.Error(),
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
