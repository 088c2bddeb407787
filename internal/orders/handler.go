package orders

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tradewind-commerce/tradewind/internal/inventory"
	"github.com/tradewind-commerce/tradewind/internal/platform/httpx"
	"github.com/tradewind-commerce/tradewind/internal/shared"
)

// Handler wires JSON endpoints for order workflows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs order handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.StoreFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown store")
		return
	}
	var req CreateOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	order, err := h.service.Create(r.Context(), scope.StoreID, req, scope.ActorID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	scope, orderID, ok := h.scopeAndID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Get(r.Context(), scope.StoreID, orderID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	scope, orderID, ok := h.scopeAndID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Confirm(r.Context(), scope.StoreID, orderID, actor(scope))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	scope, orderID, ok := h.scopeAndID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Cancel(r.Context(), scope.StoreID, orderID, actor(scope))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	scope, orderID, ok := h.scopeAndID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Refund(r.Context(), scope.StoreID, orderID, actor(scope))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) scopeAndID(w http.ResponseWriter, r *http.Request) (shared.StoreScope, int64, bool) {
	scope, ok := shared.StoreFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown store")
		return shared.StoreScope{}, 0, false
	}
	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || orderID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "order id is invalid")
		return shared.StoreScope{}, 0, false
	}
	return scope, orderID, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var insufficient *inventory.InsufficientStockError
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, inventory.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidStatus), errors.Is(err, inventory.ErrInvalidInput):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.As(err, &insufficient):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", insufficient.Error())
	case errors.Is(err, inventory.ErrTransactionConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("order request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func actor(scope shared.StoreScope) *int64 {
	if scope.ActorID == 0 {
		return nil
	}
	id := scope.ActorID
	return &id
}
