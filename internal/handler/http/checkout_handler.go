package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/vasiliy-maslov/farm-checkout/internal/cart"
	"github.com/vasiliy-maslov/farm-checkout/internal/checkout"
	"github.com/vasiliy-maslov/farm-checkout/internal/payment"
)

type StartCheckoutRequest struct {
	Items []cart.Line `json:"items"`
}

type SelectPaymentRequest struct {
	PaymentMethod string `json:"payment_method"`
}

type GoToStepRequest struct {
	Step int `json:"step"`
}

type GCashQRRequest struct {
	MobileNumber string `json:"mobile_number"`
}

type VerifyGCashRequest struct {
	VerificationCode string `json:"verification_code"`
}

// SessionResponse is the checkout view: the stored session plus the values
// derived from it.
type SessionResponse struct {
	*checkout.Session
	StepName      string          `json:"step_name"`
	Total         decimal.Decimal `json:"total"`
	ReadyToSubmit bool            `json:"ready_to_submit"`
}

type ReconcileResponse struct {
	Session     SessionResponse   `json:"session"`
	Adjustments []cart.Adjustment `json:"adjustments"`
}

func newSessionResponse(s *checkout.Session) *SessionResponse {
	if s == nil {
		return nil
	}
	return &SessionResponse{
		Session:       s,
		StepName:      s.Step.String(),
		Total:         s.Total(),
		ReadyToSubmit: checkout.ReadyForSubmission(*s) == nil,
	}
}

type CheckoutHandler struct {
	service checkout.Service
}

func NewCheckoutHandler(service checkout.Service) *CheckoutHandler {
	return &CheckoutHandler{service: service}
}

func (h *CheckoutHandler) RegisterRoutes(router chi.Router) {
	router.Route("/checkout", func(r chi.Router) {
		r.Post("/", h.handleStartCheckout)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleGetSession)
			r.Delete("/", h.handleCancel)
			r.Post("/reconcile", h.handleReconcile)
			r.Put("/shipping", h.handleSetShipping)
			r.Put("/payment", h.handleSelectPayment)
			r.Post("/step", h.handleGoToStep)
			r.Post("/gcash", h.handleRequestGCashQR)
			r.Post("/gcash/verify", h.handleVerifyGCash)
			r.Post("/bank-transfer", h.handleSubmitBankTransfer)
			r.Post("/submit", h.handleSubmitOrder)
		})
	})
}

func (h *CheckoutHandler) handleStartCheckout(w http.ResponseWriter, r *http.Request) {
	var payload StartCheckoutRequest
	if !decodeJSON(w, r, &payload) {
		return
	}

	session, err := h.service.StartCheckout(r.Context(), payload.Items)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to start checkout")
		respondWithServiceError(w, err, nil)
		return
	}

	respondWithData(w, http.StatusCreated, newSessionResponse(session), "")
}

func (h *CheckoutHandler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	session, err := h.service.GetSession(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, err, nil)
		return
	}

	respondWithData(w, http.StatusOK, newSessionResponse(session), "")
}

func (h *CheckoutHandler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	session, adjustments, err := h.service.ReconcileCart(r.Context(), id)
	if err != nil {
		log.Warn().Err(err).Stringer("session_id", id).Msg("Failed to reconcile cart")
		respondWithServiceError(w, err, nil)
		return
	}

	if adjustments == nil {
		adjustments = []cart.Adjustment{}
	}
	respondWithData(w, http.StatusOK, ReconcileResponse{
		Session:     *newSessionResponse(session),
		Adjustments: adjustments,
	}, "")
}

func (h *CheckoutHandler) handleSetShipping(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var payload checkout.Shipping
	if !decodeJSON(w, r, &payload) {
		return
	}

	session, err := h.service.SetShipping(r.Context(), id, payload)
	h.respondWithSession(w, session, err, "")
}

func (h *CheckoutHandler) handleSelectPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var payload SelectPaymentRequest
	if !decodeJSON(w, r, &payload) {
		return
	}

	session, err := h.service.SelectPayment(r.Context(), id, payment.Method(payload.PaymentMethod))
	h.respondWithSession(w, session, err, "")
}

func (h *CheckoutHandler) handleGoToStep(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var payload GoToStepRequest
	if !decodeJSON(w, r, &payload) {
		return
	}

	session, err := h.service.GoToStep(r.Context(), id, checkout.Step(payload.Step))
	h.respondWithSession(w, session, err, "")
}

func (h *CheckoutHandler) handleRequestGCashQR(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var payload GCashQRRequest
	if !decodeJSON(w, r, &payload) {
		return
	}

	session, err := h.service.RequestGCashQR(r.Context(), id, payload.MobileNumber)
	h.respondWithSession(w, session, err, "Scan the QR code with GCash, then enter the verification code.")
}

func (h *CheckoutHandler) handleVerifyGCash(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var payload VerifyGCashRequest
	if !decodeJSON(w, r, &payload) {
		return
	}

	session, err := h.service.VerifyGCash(r.Context(), id, payload.VerificationCode)
	h.respondWithSession(w, session, err, "Payment verified.")
}

func (h *CheckoutHandler) handleSubmitBankTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var payload payment.BankTransferDetails
	if !decodeJSON(w, r, &payload) {
		return
	}

	session, err := h.service.SubmitBankTransfer(r.Context(), id, payload)
	h.respondWithSession(w, session, err, "Bank transfer details submitted.")
}

func (h *CheckoutHandler) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	confirmation, err := h.service.SubmitOrder(r.Context(), id)
	if err != nil {
		log.Warn().Err(err).Stringer("session_id", id).Msg("Failed to submit order")
		respondWithServiceError(w, err, nil)
		return
	}

	respondWithData(w, http.StatusOK, confirmation, confirmation.Message)
}

func (h *CheckoutHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	if err := h.service.Cancel(r.Context(), id); err != nil {
		respondWithServiceError(w, err, nil)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// respondWithSession keeps returning the session alongside a rejected action,
// so a wrong verification code still shows the remaining attempts.
func (h *CheckoutHandler) respondWithSession(w http.ResponseWriter, session *checkout.Session, err error, message string) {
	if err != nil {
		if errors.Is(err, checkout.ErrVerificationRequired) {
			respondWithJSON(w, http.StatusOK, Envelope{
				Success: false,
				Data:    newSessionResponse(session),
				Message: clientMessage(err),
			})
			return
		}
		respondWithServiceError(w, err, newSessionResponse(session))
		return
	}
	respondWithData(w, http.StatusOK, newSessionResponse(session), message)
}

func sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idParam := chi.URLParam(r, "id")
	id, err := uuid.FromString(idParam)
	if err != nil {
		log.Warn().Err(err).Str("session_id", idParam).Msg("Failed to parse id parameter from URL")
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return uuid.Nil, false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		log.Warn().Err(err).Msg("Failed to decode request body")
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return false
	}
	return true
}
