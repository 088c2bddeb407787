package catalog

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tradewind-commerce/tradewind/internal/platform/httpx"
	"github.com/tradewind-commerce/tradewind/internal/shared"
)

// RepositoryPort abstracts catalog reads for the handler.
type RepositoryPort interface {
	GetProduct(ctx context.Context, storeID, productID int64) (Product, error)
	ListVariants(ctx context.Context, storeID, productID int64) ([]Variant, error)
}

// Handler wires JSON read endpoints for the catalog module.
type Handler struct {
	logger *slog.Logger
	repo   RepositoryPort
}

// NewHandler constructs catalog handler.
func NewHandler(logger *slog.Logger, repo RepositoryPort) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, repo: repo}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products/{id}", h.ShowProduct)
}

// ShowProduct returns one product with its live variants.
func (h *Handler) ShowProduct(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.StoreFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown store")
		return
	}
	productID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || productID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product id is invalid")
		return
	}

	product, err := h.repo.GetProduct(r.Context(), scope.StoreID, productID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	resp := map[string]any{"product": product}
	if product.TrackVariants {
		variants, err := h.repo.ListVariants(r.Context(), scope.StoreID, productID)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		resp["variants"] = variants
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		return
	}
	h.logger.Error("catalog request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
