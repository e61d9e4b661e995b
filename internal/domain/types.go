package domain

import (
	"encoding/json"
	"strings"
)

// MaxQuantity is the largest quantity a single line item may hold.
const MaxQuantity = 999

// ClampQuantity raises q to one and caps it at MaxQuantity.
func ClampQuantity(q int) int {
	switch {
	case q < 1:
		return 1
	case q > MaxQuantity:
		return MaxQuantity
	default:
		return q
	}
}

// AddQuantity adds n to current and saturates at MaxQuantity.
func AddQuantity(current, n int) int {
	current, n = ClampQuantity(current), ClampQuantity(n)
	if n > MaxQuantity-current {
		return MaxQuantity
	}
	return current + n
}

// LineItem is one distinct product's entry in a cart. Name, price and image are
// captured when the product is added and are not refreshed afterwards.
type LineItem struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"price"`
	ImageRef  string  `json:"image"`
	Quantity  int     `json:"quantity"`
}

// ProductRef carries the display and price data captured at add time.
type ProductRef struct {
	ID        string
	Name      string
	UnitPrice float64
	ImageRef  string
}

// Cart is an ordered list of line items; insertion order is display order.
// It serialises as a bare JSON array.
type Cart struct {
	Items []LineItem
}

// NewCart returns an empty cart.
func NewCart() Cart {
	return Cart{Items: []LineItem{}}
}

// IsEmpty reports whether the cart has no line items.
func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Len returns the number of distinct line items.
func (c Cart) Len() int {
	return len(c.Items)
}

// ItemCount sums quantities across all line items.
func (c Cart) ItemCount() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// Index returns the position of the line item with the given id, or -1.
func (c Cart) Index(id string) int {
	for i := range c.Items {
		if c.Items[i].ID == id {
			return i
		}
	}
	return -1
}

// Item looks up a line item by id.
func (c Cart) Item(id string) (LineItem, bool) {
	if idx := c.Index(id); idx >= 0 {
		return c.Items[idx], true
	}
	return LineItem{}, false
}

// Clone returns a deep copy of the cart.
func (c Cart) Clone() Cart {
	items := make([]LineItem, len(c.Items))
	copy(items, c.Items)
	return Cart{Items: items}
}

// MarshalJSON encodes the cart as a JSON array of line items.
func (c Cart) MarshalJSON() ([]byte, error) {
	items := c.Items
	if items == nil {
		items = []LineItem{}
	}
	return json.Marshal(items)
}

// UnmarshalJSON decodes a JSON array of line items.
func (c *Cart) UnmarshalJSON(data []byte) error {
	var items []LineItem
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	if items == nil {
		items = []LineItem{}
	}
	c.Items = items
	return nil
}

// Normalize enforces the cart invariants on data read back from storage:
// entries with a blank id are dropped, duplicate ids are merged into the first
// occurrence and quantities are clamped into [1, MaxQuantity]. Ids are opaque and
// kept exactly as stored.
func (c Cart) Normalize() Cart {
	out := Cart{Items: make([]LineItem, 0, len(c.Items))}
	for _, item := range c.Items {
		if IsBlankID(item.ID) {
			continue
		}
		item.Quantity = ClampQuantity(item.Quantity)
		if item.UnitPrice < 0 {
			item.UnitPrice = 0
		}
		if idx := out.Index(item.ID); idx >= 0 {
			out.Items[idx].Quantity = AddQuantity(out.Items[idx].Quantity, item.Quantity)
			continue
		}
		out.Items = append(out.Items, item)
	}
	return out
}

// IsBlankID reports whether id carries no usable characters.
func IsBlankID(id string) bool {
	return strings.TrimSpace(id) == ""
}
