package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

type Method string

const (
	MethodEWallet        Method = "ewallet"
	MethodCashOnDelivery Method = "cash_on_delivery"
	MethodGCash          Method = "gcash"
	MethodBankTransfer   Method = "bank_transfer"
)

func (m Method) String() string {
	return string(m)
}

func (m Method) Valid() bool {
	switch m {
	case MethodEWallet, MethodCashOnDelivery, MethodGCash, MethodBankTransfer:
		return true
	default:
		return false
	}
}

// IsAsync reports whether the method settles outside the checkout request and
// therefore needs the verification sub-flow before review.
func (m Method) IsAsync() bool {
	return m == MethodGCash || m == MethodBankTransfer
}

type TransactionStatus string

const (
	TransactionPending  TransactionStatus = "pending"
	TransactionVerified TransactionStatus = "verified"
	TransactionFailed   TransactionStatus = "failed"
)

func (s TransactionStatus) String() string {
	return string(s)
}

// Transaction is a GCash or bank-transfer payment attempt issued by the payment collaborator.
type Transaction struct {
	ID               string            `json:"transaction_id"`
	Reference        string            `json:"reference,omitempty"`
	VerificationCode string            `json:"verification_code,omitempty"`
	QRCodeURL        string            `json:"qr_code_url,omitempty"`
	Amount           decimal.Decimal   `json:"amount"`
	Status           TransactionStatus `json:"status"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// MerchantBankDetails is where the buyer sends a bank transfer.
type MerchantBankDetails struct {
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	SwiftCode     string `json:"swift_code,omitempty"`
}

type GCashRequest struct {
	MobileNumber string `field:"mobileNumber" validate:"required,min=10"`
}

type VerificationRequest struct {
	Code string `field:"verificationCode" validate:"required,len=8,alphanum"`
}

type BankTransferDetails struct {
	BankName          string `json:"bank_name" field:"bankName" validate:"required"`
	AccountNumber     string `json:"account_number" field:"accountNumber" validate:"required"`
	AccountName       string `json:"account_name" field:"accountName" validate:"required"`
	TransferReference string `json:"transfer_reference" field:"transferReference" validate:"required"`
	TransferDate      string `json:"transfer_date" field:"transferDate" validate:"required,datetime=2006-01-02"`
}
