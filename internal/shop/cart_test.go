package shop

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func variation(sku string, price string, stock *int, canShip bool) Variation {
	p := decimal.RequireFromString(price)
	return Variation{SKU: sku, ProductTitle: "Print", ProductSlug: "print", UnitPrice: &p, NumInStock: stock, CanShip: canShip}
}

func intPtr(n int) *int { return &n }

// total must always equal items - discount + shipping + tax
func assertTotals(t *testing.T, c *Cart) {
	t.Helper()
	sum := decimal.Zero
	for _, l := range c.Lines {
		sum = sum.Add(l.Subtotal())
	}
	assert.True(t, c.ItemTotal.Equal(sum), "item total %s != %s", c.ItemTotal, sum)
	want := sum.Sub(c.DiscountTotal).Add(c.ShippingTotal).Add(c.TaxTotal)
	if want.IsNegative() {
		want = decimal.Zero
	}
	assert.True(t, c.Total.Equal(want), "total %s != %s", c.Total, want)
	assert.False(t, c.Total.IsNegative())
}

func TestAddItem_MergesLinesBySKU(t *testing.T) {
	c := NewCart()
	v := variation("A", "10", nil, true)

	require.NoError(t, c.AddItem(v, 1))
	require.NoError(t, c.AddItem(v, 2))

	require.Len(t, c.Lines, 1)
	assert.Equal(t, 3, c.Lines[0].Quantity)
	assert.True(t, c.Total.Equal(decimal.NewFromInt(30)))
	assertTotals(t, c)
}

func TestAddItem_OutOfStock(t *testing.T) {
	c := NewCart()
	v := variation("A", "10", intPtr(2), true)

	require.NoError(t, c.AddItem(v, 2))
	err := c.AddItem(v, 1)

	assert.ErrorIs(t, err, ErrOutOfStock)
	var se *StockError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 3, se.Required)
	assert.Equal(t, 2, se.Available)
	assert.Equal(t, 2, c.Lines[0].Quantity)
}

func TestAddItem_RejectsUnpricedAndNonPositive(t *testing.T) {
	c := NewCart()
	assert.ErrorIs(t, c.AddItem(Variation{SKU: "X"}, 1), ErrNoPrice)
	assert.ErrorIs(t, c.AddItem(variation("A", "1", nil, false), 0), ErrInvalidQuantity)
	assert.False(t, c.HasItems())
}

func TestSetQuantity_ZeroRemovesLine(t *testing.T) {
	c := NewCart()
	require.NoError(t, c.AddItem(variation("A", "10", nil, true), 2))
	require.NoError(t, c.AddItem(variation("B", "4.50", nil, false), 1))

	require.NoError(t, c.SetQuantity("A", 0, nil))

	require.Len(t, c.Lines, 1)
	assert.Equal(t, "B", c.Lines[0].SKU)
	assert.False(t, c.NeedsShipping())
	assertTotals(t, c)
}

func TestSetQuantity_ChecksStock(t *testing.T) {
	c := NewCart()
	require.NoError(t, c.AddItem(variation("A", "10", intPtr(5), true), 1))

	assert.ErrorIs(t, c.SetQuantity("A", 6, intPtr(5)), ErrOutOfStock)
	assert.ErrorIs(t, c.SetQuantity("missing", 1, nil), ErrNotFound)
	require.NoError(t, c.SetQuantity("A", 5, intPtr(5)))
	assert.Equal(t, 5, c.TotalQuantity())
}

func TestRecalculate_TotalsAfterEveryMutation(t *testing.T) {
	c := NewCart()
	require.NoError(t, c.AddItem(variation("A", "10", nil, true), 2))
	assertTotals(t, c)

	c.SetShipping("Flat rate", decimal.RequireFromString("5.00"))
	assertTotals(t, c)

	c.DiscountTotal = decimal.RequireFromString("2.50")
	c.SetTax("GST", decimal.RequireFromString("1.75"))
	assertTotals(t, c)
	assert.True(t, c.Total.Equal(decimal.RequireFromString("24.25")))

	c.RemoveItem("A")
	assertTotals(t, c)
	assert.True(t, c.DiscountTotal.IsZero())
}

func TestRecalculate_NeverNegative(t *testing.T) {
	c := NewCart()
	require.NoError(t, c.AddItem(variation("A", "3", nil, false), 1))
	c.DiscountTotal = decimal.NewFromInt(50)
	c.Recalculate()

	assert.True(t, c.DiscountTotal.Equal(decimal.NewFromInt(3)))
	assert.True(t, c.Total.IsZero())
	assertTotals(t, c)
}

func TestFreeShippingZeroesShipping(t *testing.T) {
	c := NewCart()
	require.NoError(t, c.AddItem(variation("A", "10", nil, true), 1))
	c.FreeShipping = true
	c.SetShipping("Flat rate", decimal.NewFromInt(7))

	assert.True(t, c.ShippingTotal.IsZero())
	assert.True(t, c.Total.Equal(decimal.NewFromInt(10)))
}

func TestVariationDescriptionAndPrice(t *testing.T) {
	unit := decimal.NewFromInt(20)
	sale := decimal.NewFromInt(15)
	v := Variation{ProductTitle: "Poster", Option1: "A3", Option3: "Matte", UnitPrice: &unit, SalePrice: &sale}

	assert.Equal(t, "Poster - A3 - Matte", v.Description())
	assert.True(t, v.Price().Equal(sale))
}

func TestCentsRoundTrip(t *testing.T) {
	d := decimal.RequireFromString("18.05")
	assert.Equal(t, int64(1805), Cents(d))
	assert.True(t, FromCents(1805).Equal(d))
}
