package inventory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/tradewind-commerce/tradewind/internal/shared"
)

func newTestHandler(t *testing.T) (*chi.Mux, *testEnv) {
	t.Helper()
	env := newTestEnv(t, ServiceConfig{})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(logger, env.svc)

	router := chi.NewRouter()
	router.Route("/inventory", handler.MountRoutes)
	return router, env
}

func doJSON(t *testing.T, router http.Handler, method, path string, storeID int64, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if storeID > 0 {
		req = req.WithContext(shared.ContextWithStore(req.Context(), shared.StoreScope{StoreID: storeID, ActorID: 42}))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleAdjustSuccess(t *testing.T) {
	router, env := newTestHandler(t)
	env.repo.seed(testStore, UnitRef{ProductID: 10}, "SKU-A", 10, 5)

	rec := doJSON(t, router, http.MethodPost, "/inventory/adjustments", testStore, map[string]any{
		"product_id": 10, "quantity": 3, "type": "REMOVE", "reason": "manual_adjustment",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var unit StockUnit
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &unit))
	require.Equal(t, int64(7), unit.Quantity)
	require.Equal(t, StatusInStock, unit.Status)

	// Actor from scope lands on the ledger entry.
	entries := env.repo.ledgerFor(testStore, UnitRef{ProductID: 10})
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].ActorID)
	require.Equal(t, int64(42), *entries[0].ActorID)
}

func TestHandleAdjustStatusMapping(t *testing.T) {
	router, env := newTestHandler(t)
	env.repo.seed(testStore, UnitRef{ProductID: 10}, "SKU-A", 2, 5)

	cases := []struct {
		name string
		body map[string]any
		want int
	}{
		{"negative quantity", map[string]any{"product_id": 10, "quantity": -1, "type": "ADD", "reason": "restock"}, http.StatusBadRequest},
		{"unknown type", map[string]any{"product_id": 10, "quantity": 1, "type": "MERGE", "reason": "restock"}, http.StatusBadRequest},
		{"unknown reason", map[string]any{"product_id": 10, "quantity": 1, "type": "ADD", "reason": "gifted"}, http.StatusBadRequest},
		{"unknown unit", map[string]any{"product_id": 99, "quantity": 1, "type": "ADD", "reason": "restock"}, http.StatusNotFound},
		{"insufficient stock", map[string]any{"product_id": 10, "quantity": 50, "type": "REMOVE", "reason": "order_created"}, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/inventory/adjustments", testStore, tc.body)
			require.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestHandleAdjustMalformedBody(t *testing.T) {
	router, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/inventory/adjustments", bytes.NewBufferString("{not json"))
	req = req.WithContext(shared.ContextWithStore(req.Context(), shared.StoreScope{StoreID: testStore}))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleAdjustMissingScope(t *testing.T) {
	router, _ := newTestHandler(t)
	rec := doJSON(t, router, http.MethodPost, "/inventory/adjustments", 0, map[string]any{
		"product_id": 10, "quantity": 1, "type": "ADD", "reason": "restock",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleAdjustCrossTenant(t *testing.T) {
	router, env := newTestHandler(t)
	env.repo.seed(testStore, UnitRef{ProductID: 10}, "SKU-A", 10, 5)

	rec := doJSON(t, router, http.MethodPost, "/inventory/adjustments", 2, map[string]any{
		"product_id": 10, "quantity": 1, "type": "ADD", "reason": "restock",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleBulk(t *testing.T) {
	router, env := newTestHandler(t)
	refA := UnitRef{ProductID: 10}
	env.repo.seed(testStore, refA, "SKU-A", 10, 2)
	env.skus.refs["SKU-A"] = refA

	rec := doJSON(t, router, http.MethodPost, "/inventory/bulk", testStore, map[string]any{
		"items": []map[string]any{
			{"sku": "SKU-A", "quantity": 5, "type": "ADD", "reason": "restock"},
			{"sku": "SKU-X", "quantity": 5, "type": "ADD", "reason": "restock"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result BulkResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, 2, result.Total)
	require.Equal(t, 1, result.Succeeded)
	require.Equal(t, 1, result.Failed)
	require.Equal(t, 1, result.Errors[0].Index)
	require.Equal(t, "SKU-X", result.Errors[0].Item)
}

func TestHandleBulkRejectsOversizedBatch(t *testing.T) {
	router, _ := newTestHandler(t)
	items := make([]map[string]any, 1001)
	for i := range items {
		items[i] = map[string]any{"sku": fmt.Sprintf("SKU-%d", i), "quantity": 1, "type": "ADD", "reason": "restock"}
	}
	rec := doJSON(t, router, http.MethodPost, "/inventory/bulk", testStore, map[string]any{"items": items})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleExternalSync(t *testing.T) {
	router, env := newTestHandler(t)
	ref := UnitRef{ProductID: 10}
	env.repo.seed(testStore, ref, "SKU-A", 10, 2)
	env.skus.refs["SKU-A"] = ref

	body := map[string]any{
		"sync_event_id": "2b8ff7c4-51f7-4be5-9f0c-9a1c6a1a8f11",
		"sku":           "SKU-A",
		"quantity":      30,
	}
	rec := doJSON(t, router, http.MethodPost, "/inventory/external-sync", testStore, body)
	require.Equal(t, http.StatusOK, rec.Code)

	var unit StockUnit
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &unit))
	require.Equal(t, int64(30), unit.Quantity)

	// Redelivery reports already_processed instead of adjusting again.
	rec = doJSON(t, router, http.MethodPost, "/inventory/external-sync", testStore, body)
	require.Equal(t, http.StatusOK, rec.Code)
	var status map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Equal(t, "already_processed", status["status"])
	require.Len(t, env.repo.ledgerFor(testStore, ref), 1)
}

func TestHandleLevelsAndLowStock(t *testing.T) {
	router, env := newTestHandler(t)
	env.repo.seed(testStore, UnitRef{ProductID: 10}, "SKU-A", 10, 2)
	env.repo.seed(testStore, UnitRef{ProductID: 11}, "SKU-B", 1, 2)

	rec := doJSON(t, router, http.MethodGet, "/inventory/levels", testStore, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var levels struct {
		Items []StockUnit `json:"items"`
		Count int         `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &levels))
	require.Equal(t, 2, levels.Count)

	rec = doJSON(t, router, http.MethodGet, "/inventory/low-stock", testStore, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &levels))
	require.Equal(t, 1, levels.Count)
	require.Equal(t, "SKU-B", levels.Items[0].SKU)
}

func TestHandleLedger(t *testing.T) {
	router, env := newTestHandler(t)
	ref := UnitRef{ProductID: 10}
	env.repo.seed(testStore, ref, "SKU-A", 10, 2)

	rec := doJSON(t, router, http.MethodPost, "/inventory/adjustments", testStore, map[string]any{
		"product_id": 10, "quantity": 3, "type": "REMOVE", "reason": "damaged",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/inventory/ledger?product_id=10", testStore, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ledger struct {
		Items []LedgerEntry `json:"items"`
		Count int           `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ledger))
	require.Equal(t, 1, ledger.Count)
	require.Equal(t, ReasonDamaged, ledger.Items[0].Reason)

	rec = doJSON(t, router, http.MethodGet, "/inventory/ledger", testStore, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/inventory/ledger?product_id=10&from=bogus", testStore, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
