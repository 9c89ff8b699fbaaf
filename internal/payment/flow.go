// Package payment holds the payment methods accepted at checkout and the
// verification sub-flow that GCash and bank transfers go through before an
// order can be reviewed.
package payment

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/farm-checkout/internal/validation"
)

type State string

const (
	StateAwaitingOrderCreation   State = "awaiting_order_creation"
	StateAwaitingProofSubmission State = "awaiting_proof_submission"
	StateAwaitingVerification    State = "awaiting_verification"
	StateVerified                State = "verified"
	StateFailed                  State = "failed"
	// StatePendingReview is terminal for bank transfers: a back office confirms them later.
	StatePendingReview State = "pending_review"
)

func (s State) String() string {
	return string(s)
}

// MaxVerificationAttempts is how many wrong codes a GCash transaction tolerates.
const MaxVerificationAttempts = 5

var allowedTransitions = map[State]map[State]bool{
	StateAwaitingOrderCreation: {
		StateAwaitingProofSubmission: true,
	},
	StateAwaitingProofSubmission: {
		StateAwaitingVerification: true,
		StatePendingReview:        true,
	},
	StateAwaitingVerification: {
		StateAwaitingVerification: true, // new QR for the same order
		StateVerified:             true,
		StateFailed:               true,
	},
	StateFailed: {
		StateAwaitingVerification: true,
	},
	StateVerified:      {},
	StatePendingReview: {},
}

var (
	ErrNotAsync                = errors.New("payment method does not need verification")
	ErrWrongMethod             = errors.New("operation not supported for this payment method")
	ErrInvalidStateTransition  = errors.New("invalid payment verification transition")
	ErrOrderRequired           = errors.New("order must be created before payment")
	ErrNoTransaction           = errors.New("no payment transaction issued")
	ErrCodeMismatch            = errors.New("verification code does not match")
	ErrTooManyAttempts         = errors.New("too many invalid verification codes, request a new QR code")
	ErrVerificationUnavailable = errors.New("verification already completed")
)

// Flow tracks one session's asynchronous payment from order creation to
// verification (GCash) or manual review (bank transfer).
type Flow struct {
	Method       Method               `json:"method"`
	State        State                `json:"state"`
	OrderID      string               `json:"order_id,omitempty"`
	Transaction  *Transaction         `json:"transaction,omitempty"`
	MerchantBank *MerchantBankDetails `json:"merchant_bank,omitempty"`
	Attempts     int                  `json:"attempts"`
}

func NewFlow(method Method) (*Flow, error) {
	if !method.IsAsync() {
		return nil, fmt.Errorf("%w: %s", ErrNotAsync, method)
	}
	return &Flow{Method: method, State: StateAwaitingOrderCreation}, nil
}

func (f *Flow) Clone() *Flow {
	if f == nil {
		return nil
	}
	c := *f
	if f.Transaction != nil {
		tx := *f.Transaction
		c.Transaction = &tx
	}
	if f.MerchantBank != nil {
		bank := *f.MerchantBank
		c.MerchantBank = &bank
	}
	return &c
}

// Complete reports whether checkout may proceed to review.
func (f *Flow) Complete() bool {
	if f == nil {
		return false
	}
	return f.State == StateVerified || f.State == StatePendingReview
}

func (f *Flow) CanTransitionTo(to State) bool {
	return allowedTransitions[f.State][to]
}

func (f *Flow) transition(to State) error {
	if !f.CanTransitionTo(to) {
		log.Warn().
			Stringer("method", f.Method).
			Stringer("current_state", f.State).
			Stringer("new_state", to).
			Msg("payment: invalid verification transition attempt")
		return fmt.Errorf("%w: from %s to %s", ErrInvalidStateTransition, f.State, to)
	}
	f.State = to
	return nil
}

// OrderCreated attaches the collaborator order the payment is for.
func (f *Flow) OrderCreated(orderID string) error {
	if orderID == "" {
		return ErrOrderRequired
	}
	if f.State != StateAwaitingOrderCreation {
		if f.OrderID == orderID {
			return nil
		}
		return fmt.Errorf("%w: order already attached", ErrInvalidStateTransition)
	}
	if err := f.transition(StateAwaitingProofSubmission); err != nil {
		return err
	}
	f.OrderID = orderID
	return nil
}

// QRIssued stores a freshly generated GCash transaction. Any previous
// transaction and attempt count are discarded.
func (f *Flow) QRIssued(tx Transaction) error {
	if f.Method != MethodGCash {
		return fmt.Errorf("%w: %s", ErrWrongMethod, f.Method)
	}
	if f.OrderID == "" {
		return ErrOrderRequired
	}
	if err := f.transition(StateAwaitingVerification); err != nil {
		return err
	}

	tx.VerificationCode = NormalizeCode(tx.VerificationCode)
	tx.Status = TransactionPending
	f.Transaction = &tx
	f.Attempts = 0
	return nil
}

// MatchCode compares a submitted code with the issued one. A mismatch leaves
// the flow awaiting verification until MaxVerificationAttempts is reached,
// after which the transaction fails.
func (f *Flow) MatchCode(code string) error {
	if f.Method != MethodGCash {
		return fmt.Errorf("%w: %s", ErrWrongMethod, f.Method)
	}
	if f.State == StateVerified {
		return ErrVerificationUnavailable
	}
	if f.State == StateFailed {
		return ErrTooManyAttempts
	}
	if f.State != StateAwaitingVerification || f.Transaction == nil {
		return ErrNoTransaction
	}

	if NormalizeCode(code) == f.Transaction.VerificationCode {
		return nil
	}

	f.Attempts++
	if f.Attempts >= MaxVerificationAttempts {
		if err := f.transition(StateFailed); err != nil {
			return err
		}
		f.Transaction.Status = TransactionFailed
		f.Transaction.UpdatedAt = time.Now().UTC()
		return ErrTooManyAttempts
	}
	return ErrCodeMismatch
}

// Verify marks the GCash transaction as paid.
func (f *Flow) Verify() error {
	if f.Method != MethodGCash {
		return fmt.Errorf("%w: %s", ErrWrongMethod, f.Method)
	}
	if f.Transaction == nil {
		return ErrNoTransaction
	}
	if err := f.transition(StateVerified); err != nil {
		return err
	}
	f.Transaction.Status = TransactionVerified
	f.Transaction.UpdatedAt = time.Now().UTC()
	return nil
}

// TransferSubmitted records bank transfer proof. The transaction stays pending
// until reconciled out of band.
func (f *Flow) TransferSubmitted(tx Transaction, bank MerchantBankDetails) error {
	if f.Method != MethodBankTransfer {
		return fmt.Errorf("%w: %s", ErrWrongMethod, f.Method)
	}
	if f.OrderID == "" {
		return ErrOrderRequired
	}
	if err := f.transition(StatePendingReview); err != nil {
		return err
	}
	tx.Status = TransactionPending
	f.Transaction = &tx
	f.MerchantBank = &bank
	return nil
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateCode checks the shape of a submitted code after normalisation.
func ValidateCode(code string) error {
	return validation.Struct(VerificationRequest{Code: NormalizeCode(code)})
}

func ValidateMobileNumber(mobile string) error {
	return validation.Struct(GCashRequest{MobileNumber: strings.TrimSpace(mobile)})
}

func (d BankTransferDetails) Normalize() BankTransferDetails {
	return BankTransferDetails{
		BankName:          strings.TrimSpace(d.BankName),
		AccountNumber:     strings.TrimSpace(d.AccountNumber),
		AccountName:       strings.TrimSpace(d.AccountName),
		TransferReference: strings.TrimSpace(d.TransferReference),
		TransferDate:      strings.TrimSpace(d.TransferDate),
	}
}

func (d BankTransferDetails) Validate() error {
	return validation.Struct(d.Normalize())
}
