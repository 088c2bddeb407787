package catalog

import (
	"context"
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

type memoryCatalog struct {
	products map[int64]Product
	variants map[int64][]Variant
}

func (m *memoryCatalog) GetProduct(ctx context.Context, storeID, productID int64) (Product, error) {
	p, ok := m.products[productID]
	if !ok || p.StoreID != storeID {
		return Product{}, fmt.Errorf("%w: product %d", ErrNotFound, productID)
	}
	return p, nil
}

func (m *memoryCatalog) ListVariants(ctx context.Context, storeID, productID int64) ([]Variant, error) {
	if _, err := m.GetProduct(ctx, storeID, productID); err != nil {
		return nil, err
	}
	return m.variants[productID], nil
}

func newCatalogRouter(t *testing.T) (*chi.Mux, *memoryCatalog) {
	t.Helper()
	repo := &memoryCatalog{products: map[int64]Product{}, variants: map[int64][]Variant{}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(logger, repo)

	router := chi.NewRouter()
	router.Route("/catalog", handler.MountRoutes)
	return router, repo
}

func getProduct(t *testing.T, router http.Handler, path string, storeID int64) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if storeID > 0 {
		req = req.WithContext(shared.ContextWithStore(req.Context(), shared.StoreScope{StoreID: storeID}))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestShowProduct(t *testing.T) {
	router, repo := newCatalogRouter(t)
	repo.products[10] = Product{ID: 10, StoreID: 1, SKU: "SKU-A", Name: "Anchor", Quantity: 7}

	rec := getProduct(t, router, "/catalog/products/10", 1)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Product  Product   `json:"product"`
		Variants []Variant `json:"variants"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "SKU-A", resp.Product.SKU)
	require.Nil(t, resp.Variants)
}

func TestShowProductWithVariants(t *testing.T) {
	router, repo := newCatalogRouter(t)
	repo.products[10] = Product{ID: 10, StoreID: 1, SKU: "SKU-A", Name: "Anchor", TrackVariants: true}
	repo.variants[10] = []Variant{
		{ID: 1, ProductID: 10, SKU: "SKU-A-S", Name: "Small", Quantity: 3},
		{ID: 2, ProductID: 10, SKU: "SKU-A-L", Name: "Large", Quantity: 5},
	}

	rec := getProduct(t, router, "/catalog/products/10", 1)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Product  Product   `json:"product"`
		Variants []Variant `json:"variants"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Product.TrackVariants)
	require.Len(t, resp.Variants, 2)
	require.Equal(t, "SKU-A-S", resp.Variants[0].SKU)
}

func TestShowProductNotFound(t *testing.T) {
	router, repo := newCatalogRouter(t)
	repo.products[10] = Product{ID: 10, StoreID: 1, SKU: "SKU-A"}

	// Missing and foreign products are indistinguishable.
	require.Equal(t, http.StatusNotFound, getProduct(t, router, "/catalog/products/99", 1).Code)
	require.Equal(t, http.StatusNotFound, getProduct(t, router, "/catalog/products/10", 2).Code)
}

func TestShowProductBadID(t *testing.T) {
	router, _ := newCatalogRouter(t)
	require.Equal(t, http.StatusBadRequest, getProduct(t, router, "/catalog/products/abc", 1).Code)
}

func TestShowProductMissingScope(t *testing.T) {
	router, _ := newCatalogRouter(t)
	require.Equal(t, http.StatusNotFound, getProduct(t, router, "/catalog/products/10", 0).Code)
}
