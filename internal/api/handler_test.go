package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stock-ledger/internal/ledger"
	"stock-ledger/internal/service"
	"stock-ledger/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	stock := service.NewStockService(store.NewTables(store.NewMemoryStore()), nil, time.UTC)
	analysis := service.NewAnalysisService(stock, service.DefaultAnalysisConfig())

	router := gin.New()
	NewHandler(stock, analysis).SetupRoutes(router)
	return router
}

func do(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestStockLifecycle(t *testing.T) {
	router := newTestRouter(t)

	w := do(t, router, http.MethodPost, "/api/v1/stock", gin.H{
		"product": "Boots", "size": "42", "location": "A1",
		"on_hand": 10, "alert_threshold": 5, "actor": "ana",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode(t, w)["id"].(string)

	w = do(t, router, http.MethodPost, "/api/v1/stock", gin.H{
		"product": "Boots", "size": "42", "location": "A1", "actor": "bob",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, router, http.MethodPost, "/api/v1/stock/"+id+"/movements", gin.H{
		"kind": "outbound", "quantity": 8, "actor": "ana",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	res := decode(t, w)
	stock := res["stock"].(map[string]interface{})
	assert.Equal(t, float64(2), stock["on_hand"])
	assert.Equal(t, true, stock["below_alert"])

	w = do(t, router, http.MethodGet, "/api/v1/stock?below_alert=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["stock"], 1)

	w = do(t, router, http.MethodGet, "/api/v1/movements?kind=outbound,creation&order=asc", nil)
	require.Equal(t, http.StatusOK, w.Code)
	movs := decode(t, w)["movements"].([]interface{})
	require.Len(t, movs, 2)
	assert.Equal(t, "creation", movs[0].(map[string]interface{})["kind"])

	w = do(t, router, http.MethodPatch, "/api/v1/stock/"+id, gin.H{"size": "43", "location": "B2", "actor": "ana"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, router, http.MethodPatch, "/api/v1/stock/"+id, gin.H{"location": "C3", "actor": "ana"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	key := decode(t, w)["key"].(map[string]interface{})
	assert.Equal(t, "43", key["size"])
	assert.Equal(t, "C3", key["location"])

	w = do(t, router, http.MethodGet, "/api/v1/alerts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	alerts := decode(t, w)
	assert.Equal(t, "ledger", alerts["source"])
	assert.Equal(t, []interface{}{id}, alerts["stock_ids"])

	w = do(t, router, http.MethodDelete, "/api/v1/stock/"+id+"?actor=ana", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodGet, "/api/v1/stock/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type staticAlerts []string

func (a staticAlerts) LowStock(ctx context.Context) ([]string, error) {
	return a, nil
}

func TestAlertsFromWorkerSet(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stock := service.NewStockService(store.NewTables(store.NewMemoryStore()), nil, time.UTC)

	router := gin.New()
	NewHandler(stock, nil).WithAlerts(staticAlerts{"a", "b"}).SetupRoutes(router)

	w := do(t, router, http.MethodGet, "/api/v1/alerts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, "worker", out["source"])
	assert.Equal(t, []interface{}{"a", "b"}, out["stock_ids"])
}

func TestReservationEndpoints(t *testing.T) {
	router := newTestRouter(t)

	w := do(t, router, http.MethodPost, "/api/v1/stock", gin.H{"product": "Socks", "on_hand": 4, "actor": "ana"})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode(t, w)["id"].(string)

	future := time.Now().AddDate(0, 0, 7).Format("2006-01-02")
	w = do(t, router, http.MethodPost, "/api/v1/stock/"+id+"/reservations", gin.H{"quantity": 3, "due_date": future, "actor": "bob"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resID := decode(t, w)["id"].(string)

	w = do(t, router, http.MethodGet, "/api/v1/stock/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["available"])

	w = do(t, router, http.MethodGet, "/api/v1/reservations?stock_id="+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["reservations"], 1)

	w = do(t, router, http.MethodDelete, "/api/v1/reservations/"+resID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodDelete, "/api/v1/reservations/"+resID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, http.MethodPost, "/api/v1/stock/"+id+"/reservations", gin.H{"quantity": 3, "due_date": "tomorrow", "actor": "bob"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPost, "/api/v1/reconcile", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["failed"])
}

func TestBadRequests(t *testing.T) {
	router := newTestRouter(t)

	w := do(t, router, http.MethodPost, "/api/v1/stock", gin.H{"size": "42"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodGet, "/api/v1/movements?kind=teleport", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodGet, "/api/v1/movements?from=03/01/2024", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodGet, "/api/v1/analysis/compare?mode=weekly", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodGet, "/api/v1/analysis/dead-stock?days=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodDelete, "/api/v1/movements/last", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAnalysisEndpoints(t *testing.T) {
	router := newTestRouter(t)

	w := do(t, router, http.MethodPost, "/api/v1/stock", gin.H{"product": "Boots", "on_hand": 10, "actor": "ana"})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode(t, w)["id"].(string)

	w = do(t, router, http.MethodPost, "/api/v1/stock/"+id+"/movements", gin.H{"kind": "outbound", "quantity": 4, "actor": "ana"})
	require.Equal(t, http.StatusCreated, w.Code)

	for _, path := range []string{
		"/api/v1/analysis/summary",
		"/api/v1/analysis/abc",
		"/api/v1/analysis/safety-stock",
		"/api/v1/analysis/dead-stock?days=30",
		"/api/v1/analysis/compare?mode=yoy",
	} {
		w = do(t, router, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w = do(t, router, http.MethodGet, "/api/v1/analysis/summary", nil)
	summary := decode(t, w)["summary"].(map[string]interface{})
	assert.Equal(t, float64(4), summary["total_quantity"])
}

func TestWriteErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHandler(nil, nil)

	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("failed: %w", ledger.ErrInvalidMovement), http.StatusBadRequest},
		{fmt.Errorf("failed: %w", ledger.ErrUnknownSKU), http.StatusNotFound},
		{fmt.Errorf("failed: %w", ledger.ErrUnknownReservation), http.StatusNotFound},
		{fmt.Errorf("failed: %w", ledger.ErrDuplicateSKU), http.StatusConflict},
		{fmt.Errorf("failed to save log: %w", store.ErrStaleWrite), http.StatusConflict},
		{errors.New("connection refused"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		h.writeError(c, tc.err)
		assert.Equal(t, tc.status, w.Code, tc.err.Error())
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	h.writeError(c, store.ErrStaleWrite)
	assert.Contains(t, w.Body.String(), "please retry")
}
