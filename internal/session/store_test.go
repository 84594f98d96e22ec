package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-shop-checkout/internal/shop"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStore(client, time.Hour), mr
}

func TestLoad_MissingSessionIsEmpty(t *testing.T) {
	store, _ := setupTestStore(t)

	sess, err := store.Load(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, "nobody", sess.ID)
	require.NotNil(t, sess.Cart)
	assert.False(t, sess.Cart.HasItems())
	assert.Nil(t, sess.Checkout)
	assert.Nil(t, sess.Express)
}

func TestSaveCart_RoundTripAndTTL(t *testing.T) {
	store, mr := setupTestStore(t)
	ctx := context.Background()

	sess := New("s1")
	price := decimal.NewFromInt(10)
	require.NoError(t, sess.Cart.AddItem(shop.Variation{SKU: "A", UnitPrice: &price}, 2))
	require.NoError(t, store.SaveCart(ctx, sess))

	assert.Equal(t, time.Hour, mr.TTL(key("s1")))

	loaded, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, loaded.Cart.Lines, 1)
	assert.Equal(t, 2, loaded.Cart.Lines[0].Quantity)
	assert.True(t, loaded.Cart.Total.Equal(decimal.NewFromInt(20)))
}

func TestSaveCheckout_DoesNotClobberSiblingFields(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	first := New("s2")
	price := decimal.NewFromInt(5)
	require.NoError(t, first.Cart.AddItem(shop.Variation{SKU: "B", UnitPrice: &price}, 1))
	require.NoError(t, store.SaveCart(ctx, first))

	// a second request that never saw the cart writes only its own field
	second := New("s2")
	second.Checkout = &CheckoutState{Step: 2, Data: shop.OrderData{Billing: shop.Address{FirstName: "Ada"}}}
	require.NoError(t, store.SaveCheckout(ctx, second))

	loaded, err := store.Load(ctx, "s2")
	require.NoError(t, err)
	assert.Len(t, loaded.Cart.Lines, 1)
	require.NotNil(t, loaded.Checkout)
	assert.Equal(t, 2, loaded.Checkout.Step)
	assert.Equal(t, "Ada", loaded.Checkout.Data.Billing.FirstName)
}

func TestCheckoutState_NeverStoresCardFields(t *testing.T) {
	store, mr := setupTestStore(t)
	ctx := context.Background()

	sess := New("s3")
	sess.Checkout = &CheckoutState{Step: 1}
	require.NoError(t, store.SaveCheckout(ctx, sess))

	raw := mr.HGet(key("s3"), fieldCheckout)
	assert.NotContains(t, raw, "card")
	assert.NotContains(t, raw, "ccv")
}

func TestClearExpress_ToleratesMissingState(t *testing.T) {
	store, _ := setupTestStore(t)
	sess := New("s4")
	assert.NoError(t, store.ClearExpress(context.Background(), sess))
	assert.Nil(t, sess.Express)
}

func TestMessages_PopClears(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	sess := New("s5")
	require.NoError(t, store.AddMessage(ctx, sess, LevelInfo, "Item added to cart"))

	loaded, err := store.Load(ctx, "s5")
	require.NoError(t, err)
	msgs, err := store.PopMessages(ctx, loaded)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Item added to cart", msgs[0].Text)

	again, err := store.Load(ctx, "s5")
	require.NoError(t, err)
	assert.Empty(t, again.Messages)
}

func TestUserAndOrder_RoundTrip(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	sess := New("s6")
	require.NoError(t, store.SetUser(ctx, sess, "42"))
	require.NoError(t, store.SetOrder(ctx, sess, 7))

	loaded, err := store.Load(ctx, "s6")
	require.NoError(t, err)
	assert.Equal(t, "42", loaded.UserID)
	assert.Equal(t, int64(7), loaded.OrderID)
}

func TestLoad_InvalidJSON(t *testing.T) {
	store, mr := setupTestStore(t)
	mr.HSet(key("s7"), fieldCart, "{not json")

	_, err := store.Load(context.Background(), "s7")
	require.ErrorContains(t, err, "unmarshal cart failed")
}

func TestClaimCheckout_OneHolderAtATime(t *testing.T) {
	store, mr := setupTestStore(t)
	ctx := context.Background()

	ok, err := store.ClaimCheckout(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2*time.Minute, mr.TTL("checkout:s1"))

	ok, err = store.ClaimCheckout(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.ClaimCheckout(ctx, "s2")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.ReleaseCheckout(ctx, "s1"))
	ok, err = store.ClaimCheckout(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, ok)
}
