package checkout

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-shop-checkout/internal/payment"
	"github.com/ariefcatur/go-shop-checkout/internal/shop"
	"github.com/shopspring/decimal"
)

// HandlerContext is what every pipeline handler sees. Order is only set for
// the payment and post-order handlers.
type HandlerContext struct {
	SessionID string
	UserID    string
	Cart      *shop.Cart
	Data      *shop.OrderData
	Card      shop.CardDetails
	Order     *shop.Order
}

// BillingShippingHandler sets the cart's shipping type and total.
type BillingShippingHandler interface {
	BillShip(ctx context.Context, hc *HandlerContext) error
}

// TaxHandler sets the cart's tax type and total.
type TaxHandler interface {
	Tax(ctx context.Context, hc *HandlerContext) error
}

// PaymentHandler takes payment for hc.Order and returns the transaction id.
type PaymentHandler interface {
	Pay(ctx context.Context, hc *HandlerContext) (string, error)
}

// OrderHandler runs after an order completed. The returned user id, when
// non-empty, is recorded as the session's user.
type OrderHandler interface {
	OrderComplete(ctx context.Context, hc *HandlerContext) (string, error)
}

type Pipeline struct {
	BillShip BillingShippingHandler
	Tax      TaxHandler
	Payment  PaymentHandler
	Order    OrderHandler
}

// DefaultPipeline charges nothing for shipping or tax and accepts every
// payment.
func DefaultPipeline() Pipeline {
	return Pipeline{
		BillShip: FlatRateShipping{},
		Tax:      PercentTax{},
		Payment:  NoopPayment{},
		Order:    NoopOrderHandler{},
	}
}

func (p Pipeline) withDefaults() Pipeline {
	d := DefaultPipeline()
	if p.BillShip == nil {
		p.BillShip = d.BillShip
	}
	if p.Tax == nil {
		p.Tax = d.Tax
	}
	if p.Payment == nil {
		p.Payment = d.Payment
	}
	if p.Order == nil {
		p.Order = d.Order
	}
	return p
}

// billShipTax runs the shipping then the tax handler. Whatever they return
// comes back as a CheckoutError.
func (p Pipeline) billShipTax(ctx context.Context, hc *HandlerContext) *CheckoutError {
	if err := p.BillShip.BillShip(ctx, hc); err != nil {
		return AsCheckoutError(err, "Shipping could not be calculated")
	}
	if err := p.Tax.Tax(ctx, hc); err != nil {
		return AsCheckoutError(err, "Tax could not be calculated")
	}
	return nil
}

func (p Pipeline) pay(ctx context.Context, hc *HandlerContext) (string, *CheckoutError) {
	txn, err := p.Payment.Pay(ctx, hc)
	if err != nil {
		return "", paymentError(err)
	}
	return txn, nil
}

func (p Pipeline) orderComplete(ctx context.Context, hc *HandlerContext) (string, error) {
	return p.Order.OrderComplete(ctx, hc)
}

func paymentError(err error) *CheckoutError {
	var f *payment.Failure
	if errors.As(err, &f) {
		return &CheckoutError{Message: f.Message, Err: err}
	}
	return AsCheckoutError(err, "The payment could not be processed, please try again")
}

// FlatRateShipping charges Amount whenever the cart has shippable lines.
type FlatRateShipping struct {
	Label  string
	Amount decimal.Decimal
}

func (h FlatRateShipping) BillShip(_ context.Context, hc *HandlerContext) error {
	if !hc.Cart.NeedsShipping() {
		hc.Cart.SetShipping("", decimal.Zero)
		return nil
	}
	label := h.Label
	if label == "" {
		label = "Flat rate shipping"
	}
	hc.Cart.SetShipping(label, h.Amount)
	return nil
}

// PercentTax charges Rate percent of the discounted item total.
type PercentTax struct {
	Label string
	Rate  decimal.Decimal
}

func (h PercentTax) Tax(_ context.Context, hc *HandlerContext) error {
	if h.Rate.IsZero() {
		hc.Cart.SetTax("", decimal.Zero)
		return nil
	}
	base := hc.Cart.ItemTotal.Sub(hc.Cart.DiscountTotal)
	if base.IsNegative() {
		base = decimal.Zero
	}
	label := h.Label
	if label == "" {
		label = "Tax"
	}
	hc.Cart.SetTax(label, base.Mul(h.Rate).Div(decimal.NewFromInt(100)).Round(2))
	return nil
}

type NoopPayment struct{}

func (NoopPayment) Pay(context.Context, *HandlerContext) (string, error) { return "", nil }

// CardCharger is the provider call the card payment handler needs.
type CardCharger interface {
	Charge(ctx context.Context, req payment.ChargeRequest) (string, error)
}

// GatewayPayment charges the posted card through the payment provider.
type GatewayPayment struct {
	Charger  CardCharger
	Currency string
}

func (h GatewayPayment) Pay(ctx context.Context, hc *HandlerContext) (string, error) {
	if hc.Order == nil {
		return "", errors.New("gateway payment: no order")
	}
	if hc.Card.Empty() {
		return "", NewCheckoutError("Please enter your card details")
	}
	return h.Charger.Charge(ctx, payment.ChargeRequest{
		Amount:   hc.Order.Total,
		Currency: h.Currency,
		OrderKey: hc.Order.Key,
		Card:     hc.Card,
		Billing:  hc.Order.Billing,
	})
}

type NoopOrderHandler struct{}

func (NoopOrderHandler) OrderComplete(context.Context, *HandlerContext) (string, error) {
	return "", nil
}
