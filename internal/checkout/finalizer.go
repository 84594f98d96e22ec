package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/session"
	"github.com/ariefcatur/go-shop-checkout/internal/shop"
	"github.com/google/uuid"
)

type OrderStore interface {
	CreateDraft(ctx context.Context, o *shop.Order) error
	Delete(ctx context.Context, id int64) error
	Complete(ctx context.Context, id int64, transactionID string) (bool, error)
}

// SessionStore is the part of the session store the checkout flows write.
type SessionStore interface {
	Load(ctx context.Context, id string) (*session.Session, error)
	SaveCart(ctx context.Context, sess *session.Session) error
	SaveCheckout(ctx context.Context, sess *session.Session) error
	ClearCheckout(ctx context.Context, sess *session.Session) error
	SaveExpress(ctx context.Context, sess *session.Session) error
	ClearExpress(ctx context.Context, sess *session.Session) error
	SetUser(ctx context.Context, sess *session.Session, userID string) error
	SetOrder(ctx context.Context, sess *session.Session, orderID int64) error
	AddMessage(ctx context.Context, sess *session.Session, level session.Level, text string) error
	ClaimCheckout(ctx context.Context, id string) (bool, error)
	ReleaseCheckout(ctx context.Context, id string) error
}

type Finalizer struct {
	Orders   OrderStore
	Sessions SessionStore
	Now      func() time.Time
}

func newOrder(sess *session.Session, data shop.OrderData, express bool) *shop.Order {
	return &shop.Order{
		SessionID:              sess.ID,
		UserID:                 sess.UserID,
		Express:                express,
		Billing:                data.Billing,
		Shipping:               data.ShippingAddress(),
		AdditionalInstructions: data.AdditionalInstructions,
	}
}

// fill copies totals and the item snapshot from the cart.
func (f *Finalizer) fill(o *shop.Order, cart *shop.Cart) {
	o.ItemTotal = cart.ItemTotal
	o.DiscountCode = cart.DiscountCode
	o.DiscountTotal = cart.DiscountTotal
	o.ShippingType = cart.ShippingType
	o.ShippingTotal = cart.ShippingTotal
	o.TaxType = cart.TaxType
	o.TaxTotal = cart.TaxTotal
	o.Total = cart.Total
	o.Items = o.Items[:0]
	for _, l := range cart.Lines {
		o.Items = append(o.Items, shop.OrderItem{
			SKU:         l.SKU,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			TotalPrice:  l.Subtotal(),
		})
	}
}

// Setup fills in the order from the cart and inserts it as a draft.
func (f *Finalizer) Setup(ctx context.Context, o *shop.Order, cart *shop.Cart, sess *session.Session) error {
	if o.Key == "" {
		o.Key = uuid.NewString()
	}
	o.SessionID = sess.ID
	if o.UserID == "" {
		o.UserID = sess.UserID
	}
	f.fill(o, cart)
	o.CreatedAt = f.now()
	if err := f.Orders.CreateDraft(ctx, o); err != nil {
		return fmt.Errorf("create draft order: %w", err)
	}
	return nil
}

// Rollback removes a draft whose payment failed.
func (f *Finalizer) Rollback(ctx context.Context, o *shop.Order) error {
	if o.ID == 0 {
		return nil
	}
	if err := f.Orders.Delete(ctx, o.ID); err != nil {
		return fmt.Errorf("delete draft order %d: %w", o.ID, err)
	}
	return nil
}

// Complete marks the order complete, takes its items out of stock and resets
// the session's cart and checkout state. It reports whether this call did the
// completion; a second call for the same order only repeats the session
// cleanup.
func (f *Finalizer) Complete(ctx context.Context, o *shop.Order, sess *session.Session, express bool) (bool, error) {
	var done bool
	if shop.CanTransition(o.Status, shop.StatusComplete) {
		var err error
		done, err = f.Orders.Complete(ctx, o.ID, o.TransactionID)
		if err != nil {
			return false, fmt.Errorf("complete order %d: %w", o.ID, err)
		}
		if done {
			o.Status = shop.StatusComplete
		}
	}

	return done, f.reset(ctx, sess, express, o.ID)
}

// reset empties the cart, drops the flow state and records orderID as the
// session's last order.
func (f *Finalizer) reset(ctx context.Context, sess *session.Session, express bool, orderID int64) error {
	sess.Cart.Clear()
	if err := f.Sessions.SaveCart(ctx, sess); err != nil {
		return err
	}
	if err := f.Sessions.ClearCheckout(ctx, sess); err != nil {
		return err
	}
	if express || sess.Express != nil {
		if err := f.Sessions.ClearExpress(ctx, sess); err != nil {
			return err
		}
	}
	return f.Sessions.SetOrder(ctx, sess, orderID)
}

func (f *Finalizer) now() time.Time {
	if f.Now == nil {
		return time.Now().UTC()
	}
	return f.Now()
}
