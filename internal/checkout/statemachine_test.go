package checkout_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/farm-checkout/internal/cart"
	"github.com/vasiliy-maslov/farm-checkout/internal/checkout"
	"github.com/vasiliy-maslov/farm-checkout/internal/payment"
	"github.com/vasiliy-maslov/farm-checkout/internal/validation"
)

var decimalEqual = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

func riceItems() []cart.Item {
	return []cart.Item{{
		ProductID: 1,
		Name:      "Rice",
		Unit:      cart.UnitPiece,
		UnitPrice: decimal.RequireFromString("50.00"),
		Quantity:  2,
		Stock:     10,
	}}
}

func completeShipping() checkout.Shipping {
	return checkout.Shipping{
		FullName:        "Ana Santos",
		ContactNumber:   "09171234567",
		DeliveryAddress: "Purok 3, Brgy. San Isidro, Tarlac",
		DeliveryMethod:  "standard",
	}
}

func newSession(t *testing.T) checkout.Session {
	t.Helper()
	s, err := checkout.StartCheckout(riceItems(), time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return s
}

// sessionOnPayment walks a fresh session to step 3 with complete shipping.
func sessionOnPayment(t *testing.T) checkout.Session {
	t.Helper()
	s := newSession(t)

	s, err := checkout.GoToStep(s, checkout.StepShipping)
	require.NoError(t, err)
	s, err = checkout.SetShipping(s, completeShipping())
	require.NoError(t, err)
	s, err = checkout.GoToStep(s, checkout.StepPayment)
	require.NoError(t, err)
	return s
}

func TestStartCheckout(t *testing.T) {
	s := newSession(t)

	assert.Equal(t, checkout.StepCart, s.Step)
	assert.NotEmpty(t, s.ID.String())
	assert.True(t, s.Total().Equal(decimal.RequireFromString("100.00")))

	_, err := checkout.StartCheckout(nil, time.Now())
	assert.ErrorIs(t, err, checkout.ErrEmptyCart)
}

func TestGoToStep_ShippingGate(t *testing.T) {
	tests := []struct {
		name       string
		shipping   checkout.Shipping
		wantFields []string
	}{
		{
			name:     "complete",
			shipping: completeShipping(),
		},
		{
			name: "empty_contact_number",
			shipping: checkout.Shipping{
				FullName:        "Ana Santos",
				DeliveryAddress: "Purok 3",
				DeliveryMethod:  "standard",
			},
			wantFields: []string{"contactNumber"},
		},
		{
			name: "whitespace_only_fields",
			shipping: checkout.Shipping{
				FullName:        "  ",
				ContactNumber:   "0917",
				DeliveryAddress: "\t",
				DeliveryMethod:  "pickup",
			},
			wantFields: []string{"fullName", "deliveryAddress"},
		},
		{
			name:       "all_empty",
			shipping:   checkout.Shipping{},
			wantFields: []string{"fullName", "contactNumber", "deliveryAddress", "deliveryMethod"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := checkout.GoToStep(newSession(t), checkout.StepShipping)
			require.NoError(t, err)
			s, err = checkout.SetShipping(s, tt.shipping)
			require.NoError(t, err)

			next, err := checkout.GoToStep(s, checkout.StepPayment)
			if len(tt.wantFields) == 0 {
				require.NoError(t, err)
				assert.Equal(t, checkout.StepPayment, next.Step)
				return
			}

			require.ErrorIs(t, err, checkout.ErrIncompleteShipping)
			assert.Equal(t, checkout.StepShipping, next.Step)

			var verr *checkout.ValidationError
			require.True(t, errors.As(err, &verr))
			var got []string
			for _, f := range verr.Fields {
				got = append(got, f.Field)
			}
			assert.ElementsMatch(t, tt.wantFields, got)
		})
	}
}

func TestGoToStep_BackwardKeepsData(t *testing.T) {
	s := sessionOnPayment(t)
	s, err := checkout.SelectPayment(s, payment.MethodCashOnDelivery)
	require.NoError(t, err)

	back, err := checkout.GoToStep(s, checkout.StepCart)
	require.NoError(t, err)

	assert.Equal(t, checkout.StepCart, back.Step)
	assert.Equal(t, s.Shipping, back.Shipping)
	assert.Equal(t, s.Payment, back.Payment)
	assert.True(t, back.Total().Equal(s.Total()))
}

func TestGoToStep_MultiStepJump(t *testing.T) {
	s := newSession(t)

	_, err := checkout.GoToStep(s, checkout.StepReview)
	assert.ErrorIs(t, err, checkout.ErrIncompleteShipping)

	s = sessionOnPayment(t)
	s, err = checkout.SelectPayment(s, payment.MethodEWallet)
	require.NoError(t, err)
	s, err = checkout.GoToStep(s, checkout.StepCart)
	require.NoError(t, err)

	s, err = checkout.GoToStep(s, checkout.StepReview)
	require.NoError(t, err)
	assert.Equal(t, checkout.StepReview, s.Step)
}

func TestGoToStep_PaymentGate(t *testing.T) {
	s := sessionOnPayment(t)

	_, err := checkout.GoToStep(s, checkout.StepReview)
	assert.ErrorIs(t, err, checkout.ErrNoPaymentMethod)

	for _, method := range []payment.Method{payment.MethodGCash, payment.MethodBankTransfer} {
		t.Run(method.String(), func(t *testing.T) {
			selected, err := checkout.SelectPayment(s, method)
			require.NoError(t, err)

			next, err := checkout.GoToStep(selected, checkout.StepReview)
			require.ErrorIs(t, err, checkout.ErrVerificationRequired)
			assert.Equal(t, checkout.StepPayment, next.Step)
			require.NotNil(t, next.Verification)
			assert.Equal(t, payment.StateAwaitingOrderCreation, next.Verification.State)
		})
	}
}

func TestGoToStep_InvalidTarget(t *testing.T) {
	_, err := checkout.GoToStep(newSession(t), checkout.Step(7))
	assert.ErrorIs(t, err, checkout.ErrInvalidStep)
}

func TestSetShipping_StepRules(t *testing.T) {
	_, err := checkout.SetShipping(newSession(t), completeShipping())
	assert.ErrorIs(t, err, checkout.ErrWrongStep)

	s := sessionOnPayment(t)
	s, err = checkout.SelectPayment(s, payment.MethodCashOnDelivery)
	require.NoError(t, err)
	s, err = checkout.GoToStep(s, checkout.StepReview)
	require.NoError(t, err)

	_, err = checkout.SetShipping(s, completeShipping())
	assert.ErrorIs(t, err, checkout.ErrReviewLocked)
	_, err = checkout.SelectPayment(s, payment.MethodEWallet)
	assert.ErrorIs(t, err, checkout.ErrReviewLocked)
}

func TestSetShipping_Normalizes(t *testing.T) {
	s, err := checkout.GoToStep(newSession(t), checkout.StepShipping)
	require.NoError(t, err)

	s, err = checkout.SetShipping(s, checkout.Shipping{FullName: "  Ana  ", ContactNumber: " 0917 "})
	require.NoError(t, err)
	assert.Equal(t, "Ana", s.Shipping.FullName)
	assert.Equal(t, "0917", s.Shipping.ContactNumber)
}

func TestSelectPayment(t *testing.T) {
	s := sessionOnPayment(t)

	_, err := checkout.SelectPayment(s, payment.Method("crypto"))
	require.Error(t, err)
	assert.Equal(t, "paymentMethod", validation.Fields(err)[0].Field)

	gcash, err := checkout.SelectPayment(s, payment.MethodGCash)
	require.NoError(t, err)
	require.NotNil(t, gcash.Verification)

	cod, err := checkout.SelectPayment(gcash, payment.MethodCashOnDelivery)
	require.NoError(t, err)
	assert.Nil(t, cod.Verification)

	// input untouched
	assert.Equal(t, payment.MethodGCash, gcash.Payment.Method)
}

func TestSelectPayment_LockedAfterOrder(t *testing.T) {
	s := sessionOnPayment(t)
	s, err := checkout.SelectPayment(s, payment.MethodBankTransfer)
	require.NoError(t, err)
	s, err = checkout.RecordOrder(s, []string{"101"})
	require.NoError(t, err)

	_, err = checkout.SelectPayment(s, payment.MethodGCash)
	assert.ErrorIs(t, err, checkout.ErrPaymentLocked)

	same, err := checkout.SelectPayment(s, payment.MethodBankTransfer)
	assert.NoError(t, err)
	assert.Equal(t, payment.StateAwaitingProofSubmission, same.Verification.State)
}

func TestSetShipping_LockedAfterOrder(t *testing.T) {
	s := sessionOnPayment(t)
	s, err := checkout.SelectPayment(s, payment.MethodBankTransfer)
	require.NoError(t, err)
	s, err = checkout.RecordOrder(s, []string{"101"})
	require.NoError(t, err)

	s, err = checkout.GoToStep(s, checkout.StepShipping)
	require.NoError(t, err)

	moved := completeShipping()
	moved.DeliveryAddress = "Somewhere else entirely"
	_, err = checkout.SetShipping(s, moved)
	assert.ErrorIs(t, err, checkout.ErrShippingLocked)
	assert.Equal(t, completeShipping().DeliveryAddress, s.Shipping.DeliveryAddress)
}

func TestRecordOrder_Once(t *testing.T) {
	s := sessionOnPayment(t)
	s, err := checkout.RecordOrder(s, []string{"101", "102"})
	require.NoError(t, err)
	assert.Equal(t, "101", s.PrimaryOrderID())

	_, err = checkout.RecordOrder(s, []string{"103"})
	assert.ErrorIs(t, err, checkout.ErrOrderAlreadyRecorded)
}

func TestGCashVerification(t *testing.T) {
	s := sessionOnPayment(t)
	s, err := checkout.SelectPayment(s, payment.MethodGCash)
	require.NoError(t, err)

	_, err = checkout.ApplyQR(s, payment.Transaction{ID: "TX-1", VerificationCode: "AB12CD34"})
	assert.ErrorIs(t, err, payment.ErrOrderRequired)

	s, err = checkout.RecordOrder(s, []string{"101"})
	require.NoError(t, err)
	s, err = checkout.ApplyQR(s, payment.Transaction{ID: "TX-1", VerificationCode: "ab12cd34"})
	require.NoError(t, err)
	assert.Equal(t, "TX-1", s.Payment.TransactionReference)

	mismatched, err := checkout.CheckCode(s, "ZZZZ9999")
	require.ErrorIs(t, err, payment.ErrCodeMismatch)
	assert.Equal(t, payment.StateAwaitingVerification, mismatched.Verification.State)
	assert.Equal(t, 1, mismatched.Verification.Attempts)
	assert.Equal(t, 0, s.Verification.Attempts)

	_, err = checkout.GoToStep(mismatched, checkout.StepReview)
	assert.ErrorIs(t, err, checkout.ErrVerificationRequired)

	matched, err := checkout.CheckCode(mismatched, "Ab12Cd34")
	require.NoError(t, err)

	verified, err := checkout.ConfirmVerification(matched)
	require.NoError(t, err)
	assert.Equal(t, checkout.StepReview, verified.Step)
	assert.Equal(t, payment.StateVerified, verified.Verification.State)
	assert.NoError(t, checkout.ReadyForSubmission(verified))
}

func TestBankTransferReachesReview(t *testing.T) {
	s := sessionOnPayment(t)
	s, err := checkout.SelectPayment(s, payment.MethodBankTransfer)
	require.NoError(t, err)
	s, err = checkout.RecordOrder(s, []string{"101"})
	require.NoError(t, err)

	assert.ErrorIs(t, checkout.ReadyForSubmission(s), checkout.ErrVerificationRequired)

	s, err = checkout.ApplyBankTransfer(s,
		payment.Transaction{ID: "BT-1", Reference: "BT-REF"},
		payment.MerchantBankDetails{BankName: "Land Bank"},
	)
	require.NoError(t, err)
	assert.Equal(t, checkout.StepReview, s.Step)
	assert.Equal(t, payment.StatePendingReview, s.Verification.State)
	assert.Equal(t, "BT-REF", s.Payment.TransactionReference)
	assert.NoError(t, checkout.ReadyForSubmission(s))
}

func TestTotalInvariantAcrossTransitions(t *testing.T) {
	s := newSession(t)
	want := decimal.RequireFromString("100.00")

	steps := []checkout.Step{checkout.StepShipping, checkout.StepCart, checkout.StepShipping}
	for _, step := range steps {
		var err error
		s, err = checkout.GoToStep(s, step)
		require.NoError(t, err)
		assert.True(t, s.Total().Equal(want), "total at step %s", s.Step)
	}
}

func TestSessionClone(t *testing.T) {
	s := sessionOnPayment(t)
	s, err := checkout.SelectPayment(s, payment.MethodGCash)
	require.NoError(t, err)

	c := s.Clone()
	c.Items[0].Quantity = 99
	c.Verification.Attempts = 3

	assert.Equal(t, 2, s.Items[0].Quantity)
	assert.Equal(t, 0, s.Verification.Attempts)

	if diff := cmp.Diff(s.Shipping, c.Shipping); diff != "" {
		t.Errorf("Clone() shipping mismatch (-want +got):\n%s", diff)
	}
}

func TestShipping_FormatAddress(t *testing.T) {
	got := checkout.Shipping{
		FullName:        " Ana Santos ",
		ContactNumber:   "09171234567",
		DeliveryAddress: "Purok 3, Tarlac",
		DeliveryMethod:  "standard",
	}.FormatAddress()
	assert.Equal(t, "Ana Santos, 09171234567, Purok 3, Tarlac (standard)", got)
}
