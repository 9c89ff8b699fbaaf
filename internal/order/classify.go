package order

type Category string

const (
	CategoryAll      Category = "all"
	CategoryUnpaid   Category = "unpaid"
	CategoryToShip   Category = "to_ship"
	CategoryShipped  Category = "shipped"
	CategoryToReview Category = "to_review"
	CategoryReturns  Category = "returns"
	CategoryNone     Category = "none"
)

func (c Category) String() string {
	return string(c)
}

// ParseCategory accepts "" as CategoryAll.
func ParseCategory(s string) (Category, bool) {
	switch c := Category(normalize(s)); c {
	case "":
		return CategoryAll, true
	case CategoryAll, CategoryUnpaid, CategoryToShip, CategoryShipped, CategoryToReview, CategoryReturns:
		return c, true
	default:
		return "", false
	}
}

// precedence orders the tabs from most to least specific.
var precedence = []Category{
	CategoryReturns,
	CategoryToReview,
	CategoryShipped,
	CategoryToShip,
	CategoryUnpaid,
}

// Categories lists every tab o appears under. A completed legacy order
// without a review is both shipped and to_review.
func Categories(o Order) []Category {
	matched := make(map[Category]bool, 2)

	switch o.Schema {
	case SchemaEnhanced:
		e := o.Enhanced
		if e == nil {
			break
		}
		if e.PaymentStatus == "unpaid" {
			matched[CategoryUnpaid] = true
		}
		if e.PaymentStatus == "paid" && e.ShippingStatus == "to_ship" {
			matched[CategoryToShip] = true
		}
		if e.ShippingStatus == "shipped" {
			matched[CategoryShipped] = true
		}
		if e.ShippingStatus == "delivered" && !o.Reviewed() {
			matched[CategoryToReview] = true
		}
		if e.Status == "cancelled" || e.ShippingStatus == "returned" {
			matched[CategoryReturns] = true
		}
	case SchemaLegacy:
		if o.Legacy == nil {
			break
		}
		switch o.Legacy.Status {
		case "pending":
			matched[CategoryUnpaid] = true
		case "confirmed":
			matched[CategoryToShip] = true
		case "shipped":
			matched[CategoryShipped] = true
		case "completed":
			matched[CategoryShipped] = true
			if !o.Reviewed() {
				matched[CategoryToReview] = true
			}
		case "cancelled":
			matched[CategoryReturns] = true
		}
	}

	out := make([]Category, 0, len(matched))
	for _, c := range precedence {
		if matched[c] {
			out = append(out, c)
		}
	}
	return out
}

// Classify returns the single most specific tab for o, or CategoryNone.
func Classify(o Order) Category {
	if cats := Categories(o); len(cats) > 0 {
		return cats[0]
	}
	return CategoryNone
}

// Matches reports whether o belongs on tab c.
func Matches(o Order, c Category) bool {
	if c == CategoryAll {
		return true
	}
	for _, got := range Categories(o) {
		if got == c {
			return true
		}
	}
	return false
}

// Filter keeps the orders shown on tab c, preserving order.
func Filter(orders []Order, c Category) []Order {
	out := make([]Order, 0, len(orders))
	for _, o := range orders {
		if Matches(o, c) {
			out = append(out, o)
		}
	}
	return out
}

// Counts is the badge number for each tab.
type Counts map[Category]int

func Count(orders []Order) Counts {
	counts := Counts{CategoryAll: len(orders)}
	for _, c := range precedence {
		counts[c] = 0
	}
	for _, o := range orders {
		for _, c := range Categories(o) {
			counts[c]++
		}
	}
	return counts
}
