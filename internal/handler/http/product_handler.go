package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/farm-checkout/internal/cart"
)

// ProductLister serves the cached catalog.
type ProductLister interface {
	Products(ctx context.Context) ([]cart.Product, error)
}

type ProductHandler struct {
	catalog ProductLister
}

func NewProductHandler(catalog ProductLister) *ProductHandler {
	return &ProductHandler{catalog: catalog}
}

func (h *ProductHandler) RegisterRoutes(router chi.Router) {
	router.Get("/products", h.handleListProducts)
}

func (h *ProductHandler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.Products(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to load products")
		respondWithServiceError(w, err, nil)
		return
	}

	respondWithData(w, http.StatusOK, products, "")
}
