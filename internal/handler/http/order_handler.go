package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/farm-checkout/internal/order"
)

type SubmitReviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

type OrderHandler struct {
	service order.Service
}

func NewOrderHandler(service order.Service) *OrderHandler {
	return &OrderHandler{service: service}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Get("/orders", h.handleListOrders)
	router.Post("/orders/{id}/review", h.handleSubmitReview)
}

func (h *OrderHandler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	categoryParam := r.URL.Query().Get("category")
	category, ok := order.ParseCategory(categoryParam)
	if !ok {
		log.Warn().Str("category", categoryParam).Msg("Unknown order category requested")
		respondWithError(w, http.StatusBadRequest, "Unknown order category")
		return
	}

	result, err := h.service.ListOrders(r.Context(), category)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list orders via service")
		respondWithServiceError(w, err, nil)
		return
	}

	respondWithData(w, http.StatusOK, result, "")
}

func (h *OrderHandler) handleSubmitReview(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	var payload SubmitReviewRequest
	if !decodeJSON(w, r, &payload) {
		return
	}

	message, err := h.service.SubmitReview(r.Context(), order.Review{
		OrderID: orderID,
		Rating:  payload.Rating,
		Comment: payload.Comment,
	})
	if err != nil {
		log.Warn().Err(err).Str("order_id", orderID).Msg("Failed to submit review via service")
		respondWithServiceError(w, err, nil)
		return
	}

	respondWithData(w, http.StatusOK, nil, message)
}
