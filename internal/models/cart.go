package models

import "github.com/shopspring/decimal"

func init() {
	// The remote service speaks plain JSON numbers for prices and totals.
	decimal.MarshalJSONWithoutQuotes = true
}

// UnknownProductName is used for remote cart lines that carry no food name.
const UnknownProductName = "Unknown Product"

// CartLine is one item of the cart, unique by ID.
type CartLine struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Image string          `json:"image"`
	Count int             `json:"count"`

	// RestaurantID is the restaurant the food is ordered from, when known.
	RestaurantID string `json:"restaurantId,omitempty"`
}

// Subtotal returns price * count.
func (l CartLine) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Count)))
}

// CartState is the full cart snapshot. TotalItems and TotalAmount are
// derived from Items and always recomputed over the whole collection.
type CartState struct {
	Items       []CartLine      `json:"items"`
	TotalItems  int             `json:"totalItems"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Status      Status          `json:"-"`
}

// Recompute refreshes the derived totals from Items.
func (c *CartState) Recompute() {
	c.TotalItems = 0
	c.TotalAmount = decimal.Zero
	for _, l := range c.Items {
		c.TotalItems += l.Count
		c.TotalAmount = c.TotalAmount.Add(l.Subtotal())
	}
}

// Index returns the position of the line with the given id or -1.
func (c CartState) Index(id string) int {
	for i, l := range c.Items {
		if l.ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy safe to hand out to readers.
func (c CartState) Clone() CartState {
	out := c
	out.Items = append([]CartLine(nil), c.Items...)
	if out.Items == nil {
		out.Items = []CartLine{}
	}
	return out
}

// RemoteFood is the nested food record of a remote cart line.
type RemoteFood struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Image string          `json:"image"`
}

// RemoteCartLine is the service's representation of a cart line.
type RemoteCartLine struct {
	FoodID string      `json:"foodId"`
	Food   *RemoteFood `json:"food"`
	Count  int         `json:"count"`
}

// ToCartLine maps a remote line into a local one, defaulting a missing name
// to UnknownProductName, a missing price to 0 and a missing count to 1.
func (r RemoteCartLine) ToCartLine() CartLine {
	line := CartLine{ID: r.FoodID, Name: UnknownProductName, Count: r.Count}
	if r.Food != nil {
		if r.Food.Name != "" {
			line.Name = r.Food.Name
		}
		line.Price = r.Food.Price
		line.Image = r.Food.Image
	}
	if line.Count <= 0 {
		line.Count = 1
	}
	return line
}
