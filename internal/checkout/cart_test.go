package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/ariefcatur/go-shop-checkout/internal/session"
	"github.com/ariefcatur/go-shop-checkout/internal/shop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyCartDiscount(t *testing.T) {
	h := newHarness(t)
	h.core.Discounts = shop.NewDiscountEngine(fakeCodes{
		"TEN": {Code: "TEN", Kind: shop.DiscountPercentage, Percent: decimal.NewFromInt(10), Active: true},
	})
	ctx := context.Background()
	sess := h.cartSession(t, "s1", "A", "10", 2, true)

	err := h.core.ApplyCartDiscount(ctx, sess, "NOPE")
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "The discount code entered is invalid.", ve.Fields["discount_code"])
	assert.Equal(t, "20.00", h.reload(t, "s1").Cart.Total.StringFixed(2))

	require.NoError(t, h.core.ApplyCartDiscount(ctx, sess, " TEN "))
	after := h.reload(t, "s1")
	assert.Equal(t, "TEN", after.Cart.DiscountCode)
	assert.Equal(t, "18.00", after.Cart.Total.StringFixed(2))
}

func TestRecalculateCart_ShippingOnlyOnceCheckoutStarted(t *testing.T) {
	h := newHarness(t)
	h.core.Pipeline.BillShip = FlatRateShipping{Amount: decimal.NewFromInt(5)}
	ctx := context.Background()
	sess := h.cartSession(t, "s1", "A", "10", 1, true)

	require.NoError(t, h.core.RecalculateCart(ctx, sess))
	assert.Equal(t, "10.00", h.reload(t, "s1").Cart.Total.StringFixed(2))

	sess.Checkout = &session.CheckoutState{Step: 2}
	require.NoError(t, h.core.RecalculateCart(ctx, sess))
	assert.Equal(t, "15.00", h.reload(t, "s1").Cart.Total.StringFixed(2))
}
