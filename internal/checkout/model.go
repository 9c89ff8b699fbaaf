package checkout

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"

	"github.com/vasiliy-maslov/farm-checkout/internal/cart"
	"github.com/vasiliy-maslov/farm-checkout/internal/payment"
	"github.com/vasiliy-maslov/farm-checkout/internal/validation"
)

type Step int

const (
	StepCart     Step = 1
	StepShipping Step = 2
	StepPayment  Step = 3
	StepReview   Step = 4
)

func (s Step) Valid() bool {
	return s >= StepCart && s <= StepReview
}

func (s Step) String() string {
	switch s {
	case StepCart:
		return "cart"
	case StepShipping:
		return "shipping"
	case StepPayment:
		return "payment"
	case StepReview:
		return "review"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// ValidationError carries one entry per invalid input field.
type ValidationError = validation.Error

type Shipping struct {
	FullName        string `json:"full_name" field:"fullName" validate:"required"`
	ContactNumber   string `json:"contact_number" field:"contactNumber" validate:"required"`
	DeliveryAddress string `json:"delivery_address" field:"deliveryAddress" validate:"required"`
	DeliveryMethod  string `json:"delivery_method" field:"deliveryMethod" validate:"required"`
}

func (s Shipping) Normalize() Shipping {
	return Shipping{
		FullName:        strings.TrimSpace(s.FullName),
		ContactNumber:   strings.TrimSpace(s.ContactNumber),
		DeliveryAddress: strings.TrimSpace(s.DeliveryAddress),
		DeliveryMethod:  strings.TrimSpace(s.DeliveryMethod),
	}
}

// Validate reports every empty field, not just the first.
func (s Shipping) Validate() error {
	return validation.Struct(s.Normalize())
}

// FormatAddress renders shipping the way the order collaborator stores it.
func (s Shipping) FormatAddress() string {
	n := s.Normalize()
	return fmt.Sprintf("%s, %s, %s (%s)", n.FullName, n.ContactNumber, n.DeliveryAddress, n.DeliveryMethod)
}

type Payment struct {
	Method payment.Method `json:"method,omitempty"`
	// TransactionReference is set for gcash and bank_transfer once the
	// collaborator issues a transaction.
	TransactionReference string `json:"transaction_reference,omitempty"`
}

// Session is one buyer's in-progress checkout.
type Session struct {
	ID           uuid.UUID     `json:"id"`
	Items        []cart.Item   `json:"cart_items"`
	Shipping     Shipping      `json:"shipping"`
	Payment      Payment       `json:"payment"`
	Step         Step          `json:"step"`
	OrderIDs     []string      `json:"order_ids,omitempty"`
	Verification *payment.Flow `json:"verification,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Total is derived from the items on every call and never stored.
func (s Session) Total() decimal.Decimal {
	return cart.Total(s.Items)
}

func (s Session) HasOrder() bool {
	return len(s.OrderIDs) > 0
}

func (s Session) PrimaryOrderID() string {
	if len(s.OrderIDs) == 0 {
		return ""
	}
	return s.OrderIDs[0]
}

// Clone copies every slice and pointer so transitions never mutate their input.
func (s Session) Clone() Session {
	c := s
	if s.Items != nil {
		c.Items = append([]cart.Item(nil), s.Items...)
	}
	if s.OrderIDs != nil {
		c.OrderIDs = append([]string(nil), s.OrderIDs...)
	}
	c.Verification = s.Verification.Clone()
	return c
}

// Confirmation is what the buyer sees after a successful submission.
type Confirmation struct {
	OrderID              string                       `json:"order_id"`
	OrderIDs             []string                     `json:"order_ids"`
	Total                decimal.Decimal              `json:"total"`
	PaymentMethod        payment.Method               `json:"payment_method"`
	PaymentStatus        payment.State                `json:"payment_status,omitempty"`
	TransactionReference string                       `json:"transaction_reference,omitempty"`
	MerchantBank         *payment.MerchantBankDetails `json:"merchant_bank,omitempty"`
	Message              string                       `json:"message"`
}

// PlacedOrder is the ledger's record of a session's create_order result.
type PlacedOrder struct {
	SessionID       uuid.UUID
	OrderIDs        []string
	PaymentMethod   payment.Method
	Total           decimal.Decimal
	DeliveryAddress string
	Items           []cart.Item
	CreatedAt       time.Time
}
