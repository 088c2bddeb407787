package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tradewind-commerce/tradewind/internal/platform/httpx"
	"github.com/tradewind-commerce/tradewind/internal/shared"
)

// Handler wires JSON admin endpoints for the inventory module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/adjustments", h.handleAdjust)
	r.Post("/bulk", h.handleBulk)
	r.Post("/external-sync", h.handleExternalSync)
	r.Get("/levels", h.handleLevels)
	r.Get("/low-stock", h.handleLowStock)
	r.Get("/ledger", h.handleLedger)
}

type adjustRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	VariantID *int64 `json:"variant_id,omitempty" validate:"omitempty,gt=0"`
	Quantity  int64  `json:"quantity" validate:"gte=0"`
	Type      string `json:"type" validate:"required,oneof=ADD REMOVE SET"`
	Reason    string `json:"reason" validate:"required"`
	Note      string `json:"note,omitempty" validate:"max=500"`
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.StoreFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown store")
		return
	}
	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	var actor *int64
	if scope.ActorID != 0 {
		actor = &scope.ActorID
	}
	unit, err := h.service.AdjustStock(r.Context(), scope.StoreID, AdjustmentRequest{
		Ref:      UnitRef{ProductID: req.ProductID, VariantID: req.VariantID},
		Quantity: req.Quantity,
		Type:     AdjustmentType(req.Type),
		Reason:   ReasonCode(req.Reason),
		Note:     req.Note,
		ActorID:  actor,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, unit)
}

type bulkItemRequest struct {
	SKU       string `json:"sku,omitempty"`
	ProductID int64  `json:"product_id,omitempty" validate:"omitempty,gt=0"`
	VariantID *int64 `json:"variant_id,omitempty" validate:"omitempty,gt=0"`
	Quantity  int64  `json:"quantity" validate:"gte=0"`
	Type      string `json:"type" validate:"required,oneof=ADD REMOVE SET"`
	Reason    string `json:"reason" validate:"required"`
	Note      string `json:"note,omitempty" validate:"max=500"`
}

type bulkRequest struct {
	Items []bulkItemRequest `json:"items" validate:"required,min=1,max=1000,dive"`
}

func (h *Handler) handleBulk(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.StoreFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown store")
		return
	}
	var req bulkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	items := make([]BulkItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = BulkItem{
			SKU:       item.SKU,
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			Type:      AdjustmentType(item.Type),
			Reason:    ReasonCode(item.Reason),
			Note:      item.Note,
		}
	}
	var actor *int64
	if scope.ActorID != 0 {
		actor = &scope.ActorID
	}
	result, err := h.service.BulkAdjust(r.Context(), scope.StoreID, items, actor)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

type externalSyncRequest struct {
	SyncEventID string `json:"sync_event_id" validate:"required,uuid4|uuid"`
	SKU         string `json:"sku,omitempty"`
	ProductID   int64  `json:"product_id,omitempty" validate:"omitempty,gt=0"`
	VariantID   *int64 `json:"variant_id,omitempty" validate:"omitempty,gt=0"`
	Quantity    int64  `json:"quantity" validate:"gte=0"`
	Note        string `json:"note,omitempty" validate:"max=500"`
}

func (h *Handler) handleExternalSync(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.StoreFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown store")
		return
	}
	var req externalSyncRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	unit, err := h.service.UpdateInventoryFromExternal(r.Context(), scope.StoreID, ExternalSyncRequest{
		SyncEventID: req.SyncEventID,
		SKU:         req.SKU,
		ProductID:   req.ProductID,
		VariantID:   req.VariantID,
		Quantity:    req.Quantity,
		Note:        req.Note,
	})
	if errors.Is(err, ErrSyncAlreadyProcessed) {
		httpx.JSON(w, http.StatusOK, map[string]any{"status": "already_processed"})
		return
	}
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, unit)
}

func (h *Handler) handleLevels(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.StoreFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown store")
		return
	}
	filter := LevelsFilter{
		LowStockOnly: r.URL.Query().Get("low_stock") == "true",
		Limit:        queryInt(r, "limit"),
		Offset:       queryInt(r, "offset"),
	}
	units, err := h.service.GetInventoryLevels(r.Context(), scope.StoreID, filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": units, "count": len(units)})
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.StoreFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown store")
		return
	}
	units, err := h.service.GetLowStockItems(r.Context(), scope.StoreID, queryInt(r, "limit"), queryInt(r, "offset"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": units, "count": len(units)})
}

func (h *Handler) handleLedger(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.StoreFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown store")
		return
	}
	productID, err := strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	if err != nil || productID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product_id is required")
		return
	}
	ref := UnitRef{ProductID: productID}
	if variantStr := r.URL.Query().Get("variant_id"); variantStr != "" {
		variantID, err := strconv.ParseInt(variantStr, 10, 64)
		if err != nil || variantID <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "variant_id is invalid")
			return
		}
		ref.VariantID = &variantID
	}
	filter := LedgerFilter{Limit: queryInt(r, "limit")}
	if from := r.URL.Query().Get("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from date is invalid")
			return
		}
		filter.From = t
	}
	if to := r.URL.Query().Get("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to date is invalid")
			return
		}
		filter.To = t.Add(24*time.Hour - time.Nanosecond)
	}

	entries, err := h.service.GetLedger(r.Context(), scope.StoreID, ref, filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": entries, "count": len(entries)})
}

// respondError maps inventory errors onto the admin API status contract:
// 400 invalid input, 404 missing unit or tenant mismatch, 409 concurrency
// conflict, 422 insufficient stock.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var insufficient *InsufficientStockError
	switch {
	case errors.Is(err, ErrInvalidInput):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrTransactionConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.As(err, &insufficient):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", insufficient.Error())
	default:
		h.logger.Error("inventory request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func queryInt(r *http.Request, name string) int {
	value, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return value
}
