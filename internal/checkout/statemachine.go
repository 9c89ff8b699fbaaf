package checkout

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/farm-checkout/internal/cart"
	"github.com/vasiliy-maslov/farm-checkout/internal/payment"
)

// Transitions below are pure: they take a Session by value and return the
// next one. On error the returned session is the input, except where noted.

func StartCheckout(items []cart.Item, now time.Time) (Session, error) {
	if len(items) == 0 {
		return Session{}, ErrEmptyCart
	}

	id, err := uuid.NewV4()
	if err != nil {
		return Session{}, fmt.Errorf("checkout: generate session id: %w", err)
	}

	return Session{
		ID:        id,
		Items:     append([]cart.Item(nil), items...),
		Step:      StepCart,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// GoToStep moves freely backwards. Moving forwards checks the gate of every
// step being left. When the payment gate stops an async method, the returned
// session sits on StepPayment with its verification flow open, along with
// ErrVerificationRequired.
func GoToStep(s Session, target Step) (Session, error) {
	if !target.Valid() {
		return s, fmt.Errorf("%w: %d", ErrInvalidStep, int(target))
	}

	next := s.Clone()
	if target <= s.Step {
		next.Step = target
		return next, nil
	}

	for step := s.Step; step < target; step++ {
		switch step {
		case StepCart:
			if len(next.Items) == 0 {
				return s, ErrEmptyCart
			}
		case StepShipping:
			if err := next.Shipping.Validate(); err != nil {
				return s, fmt.Errorf("%w: %w", ErrIncompleteShipping, err)
			}
		case StepPayment:
			if next.Payment.Method == "" {
				return s, ErrNoPaymentMethod
			}
			if next.Payment.Method.IsAsync() && !next.Verification.Complete() {
				if err := openVerification(&next); err != nil {
					return s, err
				}
				next.Step = StepPayment
				return next, ErrVerificationRequired
			}
		}
	}

	next.Step = target
	return next, nil
}

func openVerification(s *Session) error {
	if s.Verification != nil && s.Verification.Method == s.Payment.Method {
		return nil
	}

	flow, err := payment.NewFlow(s.Payment.Method)
	if err != nil {
		return err
	}
	if s.HasOrder() {
		if err := flow.OrderCreated(s.PrimaryOrderID()); err != nil {
			return err
		}
	}
	s.Verification = flow
	return nil
}

// SetShipping stores a draft; fields are only enforced when leaving the step.
func SetShipping(s Session, shipping Shipping) (Session, error) {
	if s.Step == StepReview {
		return s, ErrReviewLocked
	}
	if s.Step != StepShipping {
		return s, fmt.Errorf("%w: shipping is edited on step %d, session is on step %d", ErrWrongStep, StepShipping, s.Step)
	}
	if s.HasOrder() {
		return s, ErrShippingLocked
	}

	next := s.Clone()
	next.Shipping = shipping.Normalize()
	return next, nil
}

func SelectPayment(s Session, method payment.Method) (Session, error) {
	if s.Step == StepReview {
		return s, ErrReviewLocked
	}
	if s.Step != StepPayment {
		return s, fmt.Errorf("%w: payment is chosen on step %d, session is on step %d", ErrWrongStep, StepPayment, s.Step)
	}
	if !method.Valid() {
		verr := &ValidationError{}
		verr.Add("paymentMethod", "oneof", "paymentMethod must be one of: ewallet, cash_on_delivery, gcash, bank_transfer")
		return s, verr
	}
	if s.Payment.Method == method {
		return s, nil
	}
	if s.HasOrder() {
		return s, ErrPaymentLocked
	}

	next := s.Clone()
	next.Payment = Payment{Method: method}
	next.Verification = nil
	if method.IsAsync() {
		if err := openVerification(&next); err != nil {
			return s, err
		}
	}
	return next, nil
}

// ReadyForSubmission reports the first rule that blocks SubmitOrder.
func ReadyForSubmission(s Session) error {
	if len(s.Items) == 0 {
		return ErrEmptyCart
	}
	if err := s.Shipping.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrIncompleteShipping, err)
	}
	if s.Payment.Method == "" {
		return ErrNoPaymentMethod
	}
	if s.Payment.Method.IsAsync() && !s.Verification.Complete() {
		return ErrVerificationRequired
	}
	return nil
}

// readyForOrder is the gate async payments pass before their order exists.
func readyForOrder(s Session, method payment.Method) error {
	if s.Step == StepReview {
		return ErrReviewLocked
	}
	if len(s.Items) == 0 {
		return ErrEmptyCart
	}
	if err := s.Shipping.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrIncompleteShipping, err)
	}
	if s.Payment.Method == "" {
		return ErrNoPaymentMethod
	}
	if s.Payment.Method != method {
		return fmt.Errorf("%w: session pays with %s", payment.ErrWrongMethod, s.Payment.Method)
	}
	return nil
}

// RecordOrder caches the collaborator's order ids on the session. It may
// succeed only once per session.
func RecordOrder(s Session, orderIDs []string) (Session, error) {
	if s.HasOrder() {
		return s, ErrOrderAlreadyRecorded
	}
	if len(orderIDs) == 0 {
		return s, errors.New("checkout: no order id to record")
	}

	next := s.Clone()
	next.OrderIDs = append([]string(nil), orderIDs...)
	if next.Payment.Method.IsAsync() {
		if err := openVerification(&next); err != nil {
			return s, err
		}
		if err := next.Verification.OrderCreated(next.PrimaryOrderID()); err != nil {
			return s, err
		}
	}
	return next, nil
}

func ApplyQR(s Session, tx payment.Transaction) (Session, error) {
	if s.Verification == nil {
		return s, payment.ErrOrderRequired
	}

	next := s.Clone()
	if err := next.Verification.QRIssued(tx); err != nil {
		return s, err
	}
	next.Payment.TransactionReference = tx.ID
	return next, nil
}

// CheckCode returns the session with its attempt counter updated even when
// the code is wrong, so callers persist it on ErrCodeMismatch and
// ErrTooManyAttempts too.
func CheckCode(s Session, code string) (Session, error) {
	if s.Verification == nil {
		return s, payment.ErrNoTransaction
	}

	next := s.Clone()
	err := next.Verification.MatchCode(code)
	if err != nil && !errors.Is(err, payment.ErrCodeMismatch) && !errors.Is(err, payment.ErrTooManyAttempts) {
		return s, err
	}
	if err != nil {
		log.Info().
			Stringer("session_id", s.ID).
			Int("attempts", next.Verification.Attempts).
			Msg("checkout: verification code mismatch")
	}
	return next, err
}

// ConfirmVerification marks a matched GCash payment verified and moves the
// session straight to review.
func ConfirmVerification(s Session) (Session, error) {
	if s.Verification == nil {
		return s, payment.ErrNoTransaction
	}

	next := s.Clone()
	if err := next.Verification.Verify(); err != nil {
		return s, err
	}
	next.Step = StepReview
	return next, nil
}

// ApplyBankTransfer records submitted transfer proof. The payment stays
// pending review but checkout may proceed.
func ApplyBankTransfer(s Session, tx payment.Transaction, bank payment.MerchantBankDetails) (Session, error) {
	if s.Verification == nil {
		return s, payment.ErrOrderRequired
	}

	next := s.Clone()
	if err := next.Verification.TransferSubmitted(tx, bank); err != nil {
		return s, err
	}
	next.Payment.TransactionReference = tx.Reference
	next.Step = StepReview
	return next, nil
}
