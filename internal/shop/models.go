package shop

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          int64
	Slug        string
	Title       string
	Description string
	Published   bool
	CreatedAt   time.Time
}

// Variation is a purchasable combination of option values with its own SKU.
// NumInStock nil means stock is not tracked.
type Variation struct {
	ID           int64            `json:"id"`
	ProductID    int64            `json:"product_id"`
	ProductTitle string           `json:"product_title"`
	ProductSlug  string           `json:"product_slug"`
	SKU          string           `json:"sku"`
	Option1      string           `json:"option1,omitempty"`
	Option2      string           `json:"option2,omitempty"`
	Option3      string           `json:"option3,omitempty"`
	UnitPrice    *decimal.Decimal `json:"unit_price,omitempty"`
	SalePrice    *decimal.Decimal `json:"sale_price,omitempty"`
	NumInStock   *int             `json:"num_in_stock,omitempty"`
	CanShip      bool             `json:"can_ship"`
	IsDefault    bool             `json:"default"`
	ImageID      string           `json:"image_id,omitempty"`
}

func (v Variation) HasPrice() bool { return v.UnitPrice != nil }

// Price is the sale price when one is set, otherwise the unit price.
func (v Variation) Price() decimal.Decimal {
	if v.SalePrice != nil {
		return *v.SalePrice
	}
	if v.UnitPrice != nil {
		return *v.UnitPrice
	}
	return decimal.Zero
}

func (v Variation) Options() [3]string {
	return [3]string{v.Option1, v.Option2, v.Option3}
}

func (v Variation) Description() string {
	desc := v.ProductTitle
	for _, o := range v.Options() {
		if o != "" {
			desc += " - " + o
		}
	}
	return desc
}

type DiscountKind string

const (
	DiscountPercentage   DiscountKind = "percentage"
	DiscountFixed        DiscountKind = "fixed"
	DiscountFreeShipping DiscountKind = "free_shipping"
)

type DiscountCode struct {
	ID           int64
	Code         string
	Kind         DiscountKind
	Percent      decimal.Decimal
	Deduct       decimal.Decimal
	FreeShipping bool
	MinPurchase  *decimal.Decimal
	ValidFrom    *time.Time
	ValidTo      *time.Time
	MaxUses      *int
	Active       bool
	SKUs         []string
}

// Address is one billing or shipping detail block.
type Address struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Business  string `json:"business,omitempty"`
	Street    string `json:"street,omitempty"`
	City      string `json:"city,omitempty"`
	State     string `json:"state,omitempty"`
	Postcode  string `json:"postcode,omitempty"`
	Country   string `json:"country,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
}

// OrderData is the in-progress checkout form state kept between steps.
// It deliberately has no card fields; see CardDetails.
type OrderData struct {
	Billing                Address `json:"billing"`
	Shipping               Address `json:"shipping"`
	SameBillingShipping    bool    `json:"same_billing_shipping"`
	AdditionalInstructions string  `json:"additional_instructions,omitempty"`
	DiscountCode           string  `json:"discount_code,omitempty"`
	Remember               bool    `json:"remember,omitempty"`
}

// ShippingAddress resolves the address goods are sent to.
func (d OrderData) ShippingAddress() Address {
	if d.SameBillingShipping {
		a := d.Billing
		a.Email = ""
		return a
	}
	return d.Shipping
}

// CardDetails only ever lives for the duration of a request.
type CardDetails struct {
	Name        string `json:"-"`
	Type        string `json:"-"`
	Number      string `json:"-"`
	ExpiryMonth int    `json:"-"`
	ExpiryYear  int    `json:"-"`
	CCV         string `json:"-"`
}

func (c CardDetails) Empty() bool { return c == CardDetails{} }

type Order struct {
	ID                     int64           `json:"id"`
	Key                    string          `json:"key"`
	SessionID              string          `json:"-"`
	UserID                 string          `json:"user_id,omitempty"`
	Status                 Status          `json:"status"`
	Express                bool            `json:"express"`
	Billing                Address         `json:"billing_detail"`
	Shipping               Address         `json:"shipping_detail"`
	AdditionalInstructions string          `json:"additional_instructions,omitempty"`
	Items                  []OrderItem     `json:"items"`
	ItemTotal              decimal.Decimal `json:"item_total"`
	DiscountCode           string          `json:"discount_code,omitempty"`
	DiscountTotal          decimal.Decimal `json:"discount_total"`
	ShippingType           string          `json:"shipping_type,omitempty"`
	ShippingTotal          decimal.Decimal `json:"shipping_total"`
	TaxType                string          `json:"tax_type,omitempty"`
	TaxTotal               decimal.Decimal `json:"tax_total"`
	Total                  decimal.Decimal `json:"total"`
	TransactionID          string          `json:"transaction_id,omitempty"`
	CreatedAt              time.Time       `json:"time"`
}

type OrderItem struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	SKU         string          `json:"sku"`
	Description string          `json:"description"`
	Name        string          `json:"name,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

// OrderSummary is one row of a customer's order history.
type OrderSummary struct {
	ID            int64           `json:"id"`
	Key           string          `json:"key"`
	Status        Status          `json:"status"`
	Total         decimal.Decimal `json:"total"`
	QuantityTotal int             `json:"quantity_total"`
	CreatedAt     time.Time       `json:"time"`
}

// Money is stored as integer cents, the same way the order tables do.
func Cents(d decimal.Decimal) int64 { return d.Shift(2).Round(0).IntPart() }

func FromCents(c int64) decimal.Decimal { return decimal.New(c, -2) }
