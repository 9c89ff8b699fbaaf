package marketplace

import (
	"encoding/json"
	"strings"
)

// Collaborator endpoint names.
const (
	EndpointGetAllProducts     = "get_all_products"
	EndpointCreateOrder        = "create_order"
	EndpointGenerateGCashQR    = "generate_gcash_qr"
	EndpointVerifyGCashPayment = "verify_gcash_payment"
	EndpointCreateBankTransfer = "create_bank_transfer"
	EndpointGetOrders          = "get_orders"
	EndpointSubmitReview       = "submit_review"
)

// Status is the envelope every collaborator response carries.
type Status struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s Status) status() Status { return s }

// Text is the collaborator's own explanation, if it sent one.
func (s Status) Text() string {
	if m := strings.TrimSpace(s.Message); m != "" {
		return m
	}
	return strings.TrimSpace(s.Error)
}

type enveloped interface {
	status() Status
}

type Product struct {
	ID        FlexInt     `json:"id"`
	Name      string      `json:"name"`
	Price     FlexDecimal `json:"price"`
	PriceKg   FlexDecimal `json:"price_kg"`
	PriceGram FlexDecimal `json:"price_gram"`
	Stock     FlexInt     `json:"stock"`
	ImageURL  string      `json:"image_url"`
	Farmer    FlexString  `json:"farmer"`
}

type productsResponse struct {
	Status
	Products []Product `json:"products"`
}

type OrderItem struct {
	ProductID int64   `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type CreateOrderRequest struct {
	CartItems       []OrderItem `json:"cart_items"`
	DeliveryAddress string      `json:"delivery_address"`
	PaymentMethod   string      `json:"payment_method"`
}

type CreatedOrder struct {
	OrderID FlexString `json:"order_id"`
}

type CreateOrderResponse struct {
	Status
	Orders []CreatedOrder `json:"orders"`
	// Single-seller deployments answer with a bare order_id.
	OrderID FlexString `json:"order_id,omitempty"`
}

// OrderIDs lists every created order, primary first.
func (r CreateOrderResponse) OrderIDs() []string {
	ids := make([]string, 0, len(r.Orders)+1)
	for _, o := range r.Orders {
		if id := strings.TrimSpace(o.OrderID.String()); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		if id := strings.TrimSpace(r.OrderID.String()); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

type GCashQRRequest struct {
	OrderID      string  `json:"order_id"`
	Amount       float64 `json:"amount"`
	MobileNumber string  `json:"mobile_number"`
}

type GCashQRResponse struct {
	Status
	TransactionID    FlexString `json:"transaction_id" field:"transaction_id" validate:"required"`
	QRCodeURL        string     `json:"qr_code_url"`
	VerificationCode string     `json:"verification_code" field:"verification_code" validate:"required,len=8,alphanum"`
}

type VerifyGCashRequest struct {
	TransactionID    string `json:"transaction_id"`
	VerificationCode string `json:"verification_code"`
}

type statusResponse struct {
	Status
}

type BankTransferRequest struct {
	OrderID           string  `json:"order_id"`
	Amount            float64 `json:"amount"`
	BankName          string  `json:"bank_name"`
	BankAccountNumber string  `json:"bank_account_number"`
	BankAccountName   string  `json:"bank_account_name"`
	TransferReference string  `json:"transfer_reference"`
	TransferDate      string  `json:"transfer_date"`
}

type MerchantBankDetails struct {
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	SwiftCode     string `json:"swift_code"`
}

type BankTransferResponse struct {
	Status
	TransactionID        FlexString          `json:"transaction_id"`
	TransactionReference string              `json:"transaction_reference"`
	MerchantBankDetails  MerchantBankDetails `json:"merchant_bank_details"`
}

type ordersResponse struct {
	Status
	Orders []json.RawMessage `json:"orders"`
}

type ReviewRequest struct {
	OrderID string `json:"order_id"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}
