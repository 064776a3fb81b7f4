package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/caremart/checkout/internal/domain/product"
)

type productResponse struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	Price                string `json:"price"`
	Category             string `json:"category,omitempty"`
	RequiresPrescription bool   `json:"requires_prescription"`
}

func toProductResponse(p product.Product) productResponse {
	return productResponse{
		ID:                   p.ID,
		Name:                 p.Name,
		Price:                p.Price.StringFixed(2),
		Category:             p.Category,
		RequiresPrescription: p.RequiresPrescription,
	}
}

// GetProduct handles GET /products/{productID}.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "productID")

	p, err := h.products.GetByID(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, toProductResponse(*p))
	case errors.Is(err, product.ErrNotFound):
		writeError(w, http.StatusNotFound, "product not found")
	default:
		zctx.From(r.Context()).Error("get product", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// ListProducts handles GET /products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		zctx.From(r.Context()).Error("list products", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := make([]productResponse, len(products))
	for i, p := range products {
		resp[i] = toProductResponse(p)
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": resp})
}
