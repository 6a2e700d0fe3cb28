// Package model defines the canonical cart types shared by the storefront
// sync engine: cart items, the ordered cart itself, and the error taxonomy
// used across the local store, the remote client, and the sync service.
package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ProductID is the canonical product identifier.
//
// Backend payloads and catalog data mix numeric and string ids for the same
// product ("5" vs 5). All comparisons in the engine happen on this normalized
// form, so ids are coerced exactly once at the boundary and never again.
type ProductID string

// NormalizeID coerces any id representation the catalog or backend may
// produce into the canonical string form. Floats that are whole numbers
// normalize to their integer form so 5.0, 5 and "5" all compare equal.
func NormalizeID(v any) ProductID {
	switch id := v.(type) {
	case string:
		return ProductID(strings.TrimSpace(id))
	case int:
		return ProductID(strconv.Itoa(id))
	case int64:
		return ProductID(strconv.FormatInt(id, 10))
	case float64:
		if id == float64(int64(id)) {
			return ProductID(strconv.FormatInt(int64(id), 10))
		}
		return ProductID(strconv.FormatFloat(id, 'f', -1, 64))
	case json.Number:
		return ProductID(id.String())
	case fmt.Stringer:
		return ProductID(strings.TrimSpace(id.String()))
	default:
		return ProductID(strings.TrimSpace(fmt.Sprint(v)))
	}
}

// UnmarshalJSON accepts both string and numeric ids.
func (p *ProductID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = NormalizeID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("product id must be string or number: %w", err)
	}
	*p = NormalizeID(n)
	return nil
}

// Item is a single line in the cart.
// Price is in major currency units; money math uses decimal arithmetic
// so subtotals never accumulate float drift.
type Item struct {
	ID       ProductID       `json:"id"`
	Title    string          `json:"title"`
	Price    decimal.Decimal `json:"price"`
	Image    string          `json:"image,omitempty"`
	Quantity int             `json:"quantity"`
}

// Subtotal returns price times quantity for this line.
func (it Item) Subtotal() decimal.Decimal {
	return it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// Cart is an ordered sequence of items. Order is insertion order and is
// preserved across local mutations; remote replacements adopt the server's
// order wholesale.
//
// Invariant: no two items share the same normalized product id.
type Cart []Item

// Find returns the index of the item with the given id, or -1.
func (c Cart) Find(id ProductID) int {
	for i, it := range c {
		if it.ID == id {
			return i
		}
	}
	return -1
}

// ItemCount is the sum of all line quantities. Derived, never stored.
func (c Cart) ItemCount() int {
	var n int
	for _, it := range c {
		n += it.Quantity
	}
	return n
}

// Subtotal is the sum of price x quantity over all lines. Derived, never stored.
func (c Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c {
		total = total.Add(it.Subtotal())
	}
	return total
}

// Clone returns a deep-enough copy for atomic replacement. Items are value
// types, so copying the backing array is sufficient.
func (c Cart) Clone() Cart {
	if c == nil {
		return nil
	}
	out := make(Cart, len(c))
	copy(out, c)
	return out
}

// IsEmpty reports whether the cart has no lines.
func (c Cart) IsEmpty() bool {
	return len(c) == 0
}
