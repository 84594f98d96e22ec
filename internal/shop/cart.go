package shop

import (
	"time"

	"github.com/shopspring/decimal"
)

type CartLine struct {
	SKU         string          `json:"sku"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	CanShip     bool            `json:"can_ship"`
	URL         string          `json:"url,omitempty"`
	ImageID     string          `json:"image_id,omitempty"`
}

func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is owned by a single session. Totals are only trustworthy after
// Recalculate, which every mutator calls.
type Cart struct {
	Lines         []CartLine      `json:"lines"`
	DiscountCode  string          `json:"discount_code,omitempty"`
	DiscountTotal decimal.Decimal `json:"discount_total"`
	FreeShipping  bool            `json:"free_shipping"`
	ShippingType  string          `json:"shipping_type,omitempty"`
	ShippingTotal decimal.Decimal `json:"shipping_total"`
	TaxType       string          `json:"tax_type,omitempty"`
	TaxTotal      decimal.Decimal `json:"tax_total"`
	ItemTotal     decimal.Decimal `json:"item_total"`
	Total         decimal.Decimal `json:"total"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func NewCart() *Cart { return &Cart{} }

// AddItem merges qty into the line for the variation, creating it if needed.
func (c *Cart) AddItem(v Variation, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if !v.HasPrice() {
		return ErrNoPrice
	}
	idx := c.index(v.SKU)
	want := qty
	if idx >= 0 {
		want += c.Lines[idx].Quantity
	}
	if v.NumInStock != nil && want > *v.NumInStock {
		return &StockError{SKU: v.SKU, Required: want, Available: *v.NumInStock}
	}
	if idx >= 0 {
		c.Lines[idx].Quantity = want
		c.Lines[idx].UnitPrice = v.Price()
	} else {
		c.Lines = append(c.Lines, CartLine{
			SKU:         v.SKU,
			Description: v.Description(),
			Quantity:    qty,
			UnitPrice:   v.Price(),
			CanShip:     v.CanShip,
			URL:         "/shop/product/" + v.ProductSlug,
			ImageID:     v.ImageID,
		})
	}
	c.Recalculate()
	return nil
}

// SetQuantity replaces a line's quantity; zero removes the line.
// available is the variation's stock, nil when untracked.
func (c *Cart) SetQuantity(sku string, qty int, available *int) error {
	if qty < 0 {
		return ErrInvalidQuantity
	}
	idx := c.index(sku)
	if idx < 0 {
		return ErrNotFound
	}
	if qty == 0 {
		c.RemoveItem(sku)
		return nil
	}
	if available != nil && qty > *available {
		return &StockError{SKU: sku, Required: qty, Available: *available}
	}
	c.Lines[idx].Quantity = qty
	c.Recalculate()
	return nil
}

func (c *Cart) RemoveItem(sku string) {
	if idx := c.index(sku); idx >= 0 {
		c.Lines = append(c.Lines[:idx], c.Lines[idx+1:]...)
	}
	c.Recalculate()
}

func (c *Cart) Clear() {
	*c = Cart{UpdatedAt: time.Now().UTC()}
}

func (c *Cart) HasItems() bool { return len(c.Lines) > 0 }

func (c *Cart) NeedsShipping() bool {
	for _, l := range c.Lines {
		if l.CanShip {
			return true
		}
	}
	return false
}

func (c *Cart) TotalQuantity() int {
	n := 0
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

func (c *Cart) SetShipping(label string, amount decimal.Decimal) {
	c.ShippingType = label
	c.ShippingTotal = amount
	c.Recalculate()
}

func (c *Cart) SetTax(label string, amount decimal.Decimal) {
	c.TaxType = label
	c.TaxTotal = amount
	c.Recalculate()
}

// Recalculate derives the item, discount and grand totals from the lines
// and the adjustments recorded on the cart.
func (c *Cart) Recalculate() {
	items := decimal.Zero
	for _, l := range c.Lines {
		items = items.Add(l.Subtotal())
	}
	c.ItemTotal = items
	if c.DiscountTotal.IsNegative() {
		c.DiscountTotal = decimal.Zero
	}
	if c.DiscountTotal.GreaterThan(items) {
		c.DiscountTotal = items
	}
	if c.FreeShipping {
		c.ShippingTotal = decimal.Zero
	}
	if c.ShippingTotal.IsNegative() {
		c.ShippingTotal = decimal.Zero
	}
	if c.TaxTotal.IsNegative() {
		c.TaxTotal = decimal.Zero
	}
	total := items.Sub(c.DiscountTotal).Add(c.ShippingTotal).Add(c.TaxTotal)
	if total.IsNegative() {
		total = decimal.Zero
	}
	c.Total = total
	c.UpdatedAt = time.Now().UTC()
}

func (c *Cart) index(sku string) int {
	for i, l := range c.Lines {
		if l.SKU == sku {
			return i
		}
	}
	return -1
}
