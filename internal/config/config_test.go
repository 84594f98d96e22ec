package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.Shop.CheckoutPaymentStep)
	assert.True(t, cfg.Shop.CheckoutConfirmation)
	assert.Equal(t, "noop", cfg.Shop.PaymentHandler)
	assert.True(t, cfg.Shop.TaxRate.IsZero())
	assert.Equal(t, 10*time.Second, cfg.Provider.Timeout)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092")
	t.Setenv("SHOP_CHECKOUT_STEPS_CONFIRMATION", "false")
	t.Setenv("SHOP_FLAT_SHIPPING", "4.50")
	t.Setenv("SHOP_PER_PAGE", "nope")
	t.Setenv("PAYMENT_TIMEOUT", "3s")

	cfg := Load()

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.False(t, cfg.Shop.CheckoutConfirmation)
	assert.Equal(t, "4.50", cfg.Shop.FlatShipping.StringFixed(2))
	assert.Equal(t, 10, cfg.Shop.PerPage)
	assert.Equal(t, 3*time.Second, cfg.Provider.Timeout)
}
