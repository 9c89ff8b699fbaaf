// Package order reads the buyer's orders from the marketplace and sorts them
// into the status tabs shown on order lists.
package order

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vasiliy-maslov/farm-checkout/internal/marketplace"
)

type Schema string

const (
	// SchemaEnhanced records carry payment_status and shipping_status.
	SchemaEnhanced Schema = "enhanced"
	// SchemaLegacy records carry a single status.
	SchemaLegacy Schema = "legacy"
)

func (s Schema) String() string {
	return string(s)
}

// Enhanced holds the two independent statuses of newer orders.
type Enhanced struct {
	PaymentStatus  string `json:"payment_status"`
	ShippingStatus string `json:"shipping_status"`
	// Status only ever says "cancelled" on enhanced records.
	Status string `json:"status,omitempty"`
}

type Legacy struct {
	Status string `json:"status"`
}

// Order is decoded once at ingestion; exactly one of Enhanced and Legacy is set.
type Order struct {
	ID            string          `json:"order_id"`
	Schema        Schema          `json:"schema"`
	Enhanced      *Enhanced       `json:"enhanced,omitempty"`
	Legacy        *Legacy         `json:"legacy,omitempty"`
	Total         decimal.Decimal `json:"total_amount"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	ReviewRating  int             `json:"review_rating,omitempty"`
	CreatedAt     string          `json:"created_at,omitempty"`
	Raw           json.RawMessage `json:"raw,omitempty"`
}

func (o Order) Reviewed() bool {
	return o.ReviewRating > 0
}

type record struct {
	OrderID        marketplace.FlexString  `json:"order_id"`
	ID             marketplace.FlexString  `json:"id"`
	Status         *string                 `json:"status"`
	PaymentStatus  *string                 `json:"payment_status"`
	ShippingStatus *string                 `json:"shipping_status"`
	PaymentMethod  string                  `json:"payment_method"`
	Total          marketplace.FlexDecimal `json:"total_amount"`
	ReviewRating   json.RawMessage         `json:"review_rating"`
	CreatedAt      string                  `json:"created_at"`
}

var ErrUnrecognized = errors.New("order record has neither status nor payment/shipping status")

// Decode resolves a raw marketplace order into its schema variant. Status
// values are lower-cased.
func Decode(raw json.RawMessage) (Order, error) {
	var r record
	if err := json.Unmarshal(raw, &r); err != nil {
		return Order{}, fmt.Errorf("order: decode record: %w", err)
	}

	id := strings.TrimSpace(r.OrderID.String())
	if id == "" {
		id = strings.TrimSpace(r.ID.String())
	}

	rating, err := parseRating(r.ReviewRating)
	if err != nil {
		return Order{}, fmt.Errorf("order %s: %w", id, err)
	}

	o := Order{
		ID:            id,
		Total:         r.Total.Decimal,
		PaymentMethod: r.PaymentMethod,
		ReviewRating:  rating,
		CreatedAt:     r.CreatedAt,
		Raw:           raw,
	}

	switch {
	case r.PaymentStatus != nil && r.ShippingStatus != nil:
		o.Schema = SchemaEnhanced
		o.Enhanced = &Enhanced{
			PaymentStatus:  normalize(*r.PaymentStatus),
			ShippingStatus: normalize(*r.ShippingStatus),
		}
		if r.Status != nil {
			o.Enhanced.Status = normalize(*r.Status)
		}
	case r.Status != nil:
		o.Schema = SchemaLegacy
		o.Legacy = &Legacy{Status: normalize(*r.Status)}
	default:
		return Order{}, fmt.Errorf("order %s: %w", id, ErrUnrecognized)
	}

	return o, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// parseRating accepts a number, a numeric string, "", null or absent. Zero
// means not reviewed.
func parseRating(raw json.RawMessage) (int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, nil
	}

	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("invalid review_rating: %w", err)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, nil
		}
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid review_rating %q: %w", s, err)
	}
	return int(f), nil
}

// Review is what a buyer submits for a delivered order.
type Review struct {
	OrderID string `json:"order_id" field:"orderId" validate:"required"`
	Rating  int    `json:"rating" field:"rating" validate:"gte=1,lte=5"`
	Comment string `json:"comment" field:"comment" validate:"max=1000"`
}

// ListResult is one tab of the order list.
type ListResult struct {
	Category Category  `json:"category"`
	Orders   []Order   `json:"orders"`
	Counts   Counts    `json:"counts"`
	Skipped  int       `json:"skipped,omitempty"`
	Fetched  time.Time `json:"fetched_at"`
}
