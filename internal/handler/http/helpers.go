package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/farm-checkout/internal/cart"
	"github.com/vasiliy-maslov/farm-checkout/internal/checkout"
	"github.com/vasiliy-maslov/farm-checkout/internal/marketplace"
	"github.com/vasiliy-maslov/farm-checkout/internal/order"
	"github.com/vasiliy-maslov/farm-checkout/internal/payment"
	"github.com/vasiliy-maslov/farm-checkout/internal/validation"
)

// Envelope wraps every response body.
type Envelope struct {
	Success bool                    `json:"success"`
	Data    any                     `json:"data,omitempty"`
	Message string                  `json:"message,omitempty"`
	Errors  []validation.FieldError `json:"errors,omitempty"`
}

func respondWithData(w http.ResponseWriter, code int, data any, message string) {
	respondWithJSON(w, code, Envelope{Success: true, Data: data, Message: message})
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, Envelope{Success: false, Message: message})
}

// respondWithServiceError renders err with its status, message and field
// errors. data, when not nil, is the state the buyer should keep seeing.
func respondWithServiceError(w http.ResponseWriter, err error, data any) {
	respondWithJSON(w, mapErrorToStatusCode(err), Envelope{
		Success: false,
		Data:    data,
		Message: clientMessage(err),
		Errors:  validation.Fields(err),
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal JSON response")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"message":"Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func mapErrorToStatusCode(err error) int {
	var verr *validation.Error
	var remote *marketplace.RemoteError

	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, cart.ErrEmpty),
		errors.Is(err, checkout.ErrInvalidStep),
		errors.Is(err, order.ErrUnknownCategory):
		return http.StatusBadRequest
	case errors.Is(err, checkout.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, marketplace.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &remote):
		return http.StatusBadGateway
	case errors.Is(err, checkout.ErrRequestInFlight),
		errors.Is(err, checkout.ErrIncompleteShipping),
		errors.Is(err, checkout.ErrNoPaymentMethod),
		errors.Is(err, checkout.ErrVerificationRequired),
		errors.Is(err, checkout.ErrReviewLocked),
		errors.Is(err, checkout.ErrWrongStep),
		errors.Is(err, checkout.ErrPaymentLocked),
		errors.Is(err, checkout.ErrShippingLocked),
		errors.Is(err, checkout.ErrOrderAlreadyRecorded),
		errors.Is(err, payment.ErrWrongMethod),
		errors.Is(err, payment.ErrNotAsync),
		errors.Is(err, payment.ErrInvalidStateTransition),
		errors.Is(err, payment.ErrOrderRequired),
		errors.Is(err, payment.ErrNoTransaction),
		errors.Is(err, payment.ErrCodeMismatch),
		errors.Is(err, payment.ErrTooManyAttempts),
		errors.Is(err, payment.ErrVerificationUnavailable),
		errors.Is(err, order.ErrNotReviewable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// clientMessage is the buyer-facing text for err. Internal failures never
// leak their details.
func clientMessage(err error) string {
	var verr *validation.Error
	var remote *marketplace.RemoteError

	switch {
	case errors.As(err, &verr):
		return "Please correct the highlighted fields."
	case errors.As(err, &remote):
		return remote.UserMessage()
	case errors.Is(err, cart.ErrEmpty):
		return "Your cart is empty."
	case errors.Is(err, checkout.ErrSessionNotFound):
		return "Checkout session not found or expired."
	case errors.Is(err, checkout.ErrRequestInFlight):
		return "Your previous request is still being processed."
	case errors.Is(err, checkout.ErrIncompleteShipping):
		return "Please complete your shipping information."
	case errors.Is(err, checkout.ErrNoPaymentMethod):
		return "Please select a payment method."
	case errors.Is(err, checkout.ErrVerificationRequired):
		return "Please complete payment verification first."
	case errors.Is(err, payment.ErrCodeMismatch):
		return "Invalid verification code. Please try again."
	case errors.Is(err, payment.ErrTooManyAttempts):
		return "Too many invalid codes. Please request a new QR code."
	case mapErrorToStatusCode(err) == http.StatusInternalServerError:
		return "Something went wrong. Please try again."
	default:
		return capitalize(rootMessage(err))
	}
}

// rootMessage is the message of the sentinel at the bottom of err's chain.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b) + "."
}
