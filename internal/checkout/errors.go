package checkout

import (
	"errors"

	"github.com/vasiliy-maslov/farm-checkout/internal/cart"
)

var (
	ErrEmptyCart            = cart.ErrEmpty
	ErrInvalidStep          = errors.New("invalid checkout step")
	ErrIncompleteShipping   = errors.New("shipping information is incomplete")
	ErrNoPaymentMethod      = errors.New("no payment method selected")
	ErrVerificationRequired = errors.New("payment verification required")
	ErrReviewLocked         = errors.New("checkout is in review and can no longer be edited")
	ErrWrongStep            = errors.New("action not allowed on the current checkout step")
	ErrPaymentLocked        = errors.New("payment method cannot change after the order was created")
	ErrShippingLocked       = errors.New("shipping cannot change after the order was created")
	ErrSessionNotFound      = errors.New("checkout session not found")
	ErrRequestInFlight      = errors.New("request already in progress")
	ErrOrderAlreadyRecorded = errors.New("order already recorded for this session")
	ErrNotRecorded          = errors.New("no order recorded for this session")
)
