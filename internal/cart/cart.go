// Package cart resolves buyer cart lines against the marketplace catalog.
package cart

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vasiliy-maslov/farm-checkout/internal/validation"
)

type Unit string

const (
	UnitPiece Unit = "piece"
	UnitKg    Unit = "kg"
	UnitGram  Unit = "gram"
)

func (u Unit) String() string {
	return string(u)
}

// ParseUnit accepts an empty string as UnitPiece.
func ParseUnit(s string) (Unit, bool) {
	switch Unit(strings.ToLower(strings.TrimSpace(s))) {
	case "", UnitPiece:
		return UnitPiece, true
	case UnitKg:
		return UnitKg, true
	case UnitGram:
		return UnitGram, true
	default:
		return "", false
	}
}

var ErrEmpty = errors.New("cart is empty")

// Product is the catalog view the cart needs.
type Product struct {
	ID        int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	PriceKg   decimal.Decimal `json:"price_kg"`
	PriceGram decimal.Decimal `json:"price_gram"`
	Stock     int             `json:"stock"`
	ImageURL  string          `json:"image_url,omitempty"`
	Farmer    string          `json:"farmer,omitempty"`
}

func (p Product) PriceFor(u Unit) decimal.Decimal {
	switch u {
	case UnitKg:
		return p.PriceKg
	case UnitGram:
		return p.PriceGram
	default:
		return p.Price
	}
}

// Item is a priced cart line.
type Item struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Unit      Unit            `json:"unit"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	// Stock is what the catalog reported when the line was priced.
	Stock int `json:"stock"`
}

func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Total is the sum of unit price times quantity over items.
func Total(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// Line is what the buyer asks for.
type Line struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Unit      string `json:"unit,omitempty"`
}

type lineKey struct {
	productID int64
	unit      Unit
}

// Build prices lines against products. Lines for the same product and unit are
// merged. Every bad line is reported under items[i].
func Build(lines []Line, products map[int64]Product) ([]Item, error) {
	if len(lines) == 0 {
		return nil, ErrEmpty
	}

	verr := &validation.Error{}
	items := make([]Item, 0, len(lines))
	index := make(map[lineKey]int, len(lines))

	for i, l := range lines {
		prefix := fmt.Sprintf("items[%d]", i)

		unit, ok := ParseUnit(l.Unit)
		if !ok {
			verr.Add(prefix+".unit", "oneof", fmt.Sprintf("unit must be one of: %s, %s, %s", UnitPiece, UnitKg, UnitGram))
			continue
		}
		if l.ProductID <= 0 {
			verr.Add(prefix+".productId", "required", "productId must be a positive integer")
			continue
		}
		p, ok := products[l.ProductID]
		if !ok {
			verr.Add(prefix+".productId", "not_found", fmt.Sprintf("product %d is no longer available", l.ProductID))
			continue
		}
		if l.Quantity <= 0 {
			verr.Add(prefix+".quantity", "gte", "quantity must be at least 1")
			continue
		}
		price := p.PriceFor(unit)
		if !price.IsPositive() {
			verr.Add(prefix+".unit", "unavailable", fmt.Sprintf("%s is not sold per %s", p.Name, unit))
			continue
		}

		key := lineKey{productID: p.ID, unit: unit}
		if at, seen := index[key]; seen {
			merged := items[at].Quantity + l.Quantity
			if merged > p.Stock {
				verr.Add(prefix+".quantity", "max", fmt.Sprintf("only %d of %s in stock", p.Stock, p.Name))
				continue
			}
			items[at].Quantity = merged
			continue
		}

		if l.Quantity > p.Stock {
			verr.Add(prefix+".quantity", "max", fmt.Sprintf("only %d of %s in stock", p.Stock, p.Name))
			continue
		}

		index[key] = len(items)
		items = append(items, Item{
			ProductID: p.ID,
			Name:      p.Name,
			Unit:      unit,
			UnitPrice: price,
			Quantity:  l.Quantity,
			Stock:     p.Stock,
		})
	}

	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	return items, nil
}

type AdjustmentReason string

const (
	ReasonRemoved      AdjustmentReason = "removed"
	ReasonQuantityCut  AdjustmentReason = "quantity_reduced"
	ReasonPriceChanged AdjustmentReason = "price_changed"
)

// Adjustment records one change Reconcile made to the cart.
type Adjustment struct {
	ProductID   int64            `json:"product_id"`
	Name        string           `json:"name"`
	Reason      AdjustmentReason `json:"reason"`
	OldQuantity int              `json:"old_quantity,omitempty"`
	NewQuantity int              `json:"new_quantity,omitempty"`
	OldPrice    *decimal.Decimal `json:"old_price,omitempty"`
	NewPrice    *decimal.Decimal `json:"new_price,omitempty"`
}

// Reconcile re-applies fresh catalog data to existing items: lines whose
// product vanished or sold out are dropped, quantities above stock are cut
// and prices follow the catalog.
func Reconcile(items []Item, products map[int64]Product) ([]Item, []Adjustment) {
	out := make([]Item, 0, len(items))
	var adjustments []Adjustment

	for _, it := range items {
		p, ok := products[it.ProductID]
		if !ok || p.Stock <= 0 || !p.PriceFor(it.Unit).IsPositive() {
			adjustments = append(adjustments, Adjustment{
				ProductID:   it.ProductID,
				Name:        it.Name,
				Reason:      ReasonRemoved,
				OldQuantity: it.Quantity,
			})
			continue
		}

		if it.Quantity > p.Stock {
			adjustments = append(adjustments, Adjustment{
				ProductID:   it.ProductID,
				Name:        p.Name,
				Reason:      ReasonQuantityCut,
				OldQuantity: it.Quantity,
				NewQuantity: p.Stock,
			})
			it.Quantity = p.Stock
		}

		if price := p.PriceFor(it.Unit); !price.Equal(it.UnitPrice) {
			oldPrice := it.UnitPrice
			adjustments = append(adjustments, Adjustment{
				ProductID: it.ProductID,
				Name:      p.Name,
				Reason:    ReasonPriceChanged,
				OldPrice:  &oldPrice,
				NewPrice:  &price,
			})
			it.UnitPrice = price
		}

		it.Name = p.Name
		it.Stock = p.Stock
		out = append(out, it)
	}

	return out, adjustments
}

// Index keys products by id.
func Index(products []Product) map[int64]Product {
	m := make(map[int64]Product, len(products))
	for _, p := range products {
		m[p.ID] = p
	}
	return m
}
