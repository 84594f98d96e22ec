package checkout

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/ariefcatur/go-shop-checkout/internal/metrics"
	"github.com/ariefcatur/go-shop-checkout/internal/session"
	"github.com/ariefcatur/go-shop-checkout/internal/shop"
	"go.uber.org/zap"
)

// Notifier mails the order receipt. Failures are logged by the caller and
// never reach the customer.
type Notifier interface {
	SendOrderEmail(ctx context.Context, o *shop.Order) error
}

// OrderLookup finds the order a remember cookie points at.
type OrderLookup interface {
	GetByKey(ctx context.Context, key string) (*shop.Order, error)
}

// Core is what both checkout flows share.
type Core struct {
	Pipeline  Pipeline
	Discounts *shop.DiscountEngine
	Finalizer *Finalizer
	Sessions  SessionStore
	Notifier  Notifier
	Metrics   *metrics.Shop
	Log       *zap.Logger

	AccountRequired bool
	LoginURL        string
	CompleteURL     string
}

// Request is one HTTP request as the flows see it.
type Request struct {
	Method         string
	Values         url.Values
	Session        *session.Session
	RememberCookie string
}

func (r Request) posted() bool { return r.Method == http.MethodPost }

// RememberCookie tells the transport what to do with the remember cookie.
type RememberCookie struct {
	Value  string
	Delete bool
}

// Result is the outcome of one request: either a redirect or a step to
// render.
type Result struct {
	Redirect      string          `json:"redirect,omitempty"`
	Remember      *RememberCookie `json:"-"`
	Order         *shop.Order     `json:"order,omitempty"`
	Express       bool            `json:"express"`
	Step          int             `json:"step,omitempty"`
	StepInfo      StepInfo        `json:"step_info"`
	Steps         []StepInfo      `json:"steps,omitempty"`
	First         bool            `json:"first"`
	Last          bool            `json:"last"`
	PaymentStep   bool            `json:"payment_step"`
	Form          *Form           `json:"form,omitempty"`
	Cart          *shop.Cart      `json:"cart,omitempty"`
	NeedsShipping bool            `json:"shipping"`
}

func (c *Core) log() *zap.Logger {
	if c.Log == nil {
		return zap.NewNop()
	}
	return c.Log
}

func (c *Core) pipeline() Pipeline { return c.Pipeline.withDefaults() }

// loginRedirect returns where anonymous customers are sent, or "".
func (c *Core) loginRedirect(sess *session.Session, next string) string {
	if !c.AccountRequired || sess.UserID != "" {
		return ""
	}
	return c.LoginURL + "?next=" + url.QueryEscape(next)
}

// applyDiscount validates and applies code. An empty code revalidates
// whatever the cart already carries. Rejections come back as shop errors.
func (c *Core) applyDiscount(ctx context.Context, sess *session.Session, code string) error {
	if c.Discounts == nil {
		return nil
	}
	cart := sess.Cart
	if code == "" {
		err := c.Discounts.Refresh(ctx, cart)
		if shop.IsDiscountRejection(err) {
			c.flash(ctx, sess, session.LevelError, "The discount code on your cart is no longer valid")
			return nil
		}
		return err
	}
	dc, err := c.Discounts.Validate(ctx, code, cart)
	if err != nil {
		return err
	}
	c.Discounts.Apply(cart, dc)
	return nil
}

func discountMessage(err error) string {
	switch {
	case errors.Is(err, shop.ErrExpired):
		return "This discount code has expired."
	case errors.Is(err, shop.ErrUsageLimitExceeded):
		return "This discount code has been used up."
	}
	return "The discount code entered is invalid."
}

// orderCompleted runs the post-order hook and the receipt. The order is
// already complete, so nothing here can fail the request.
func (c *Core) orderCompleted(ctx context.Context, sess *session.Session, hc *HandlerContext, first bool, flow string) {
	log := c.log().With(zap.Int64("order_id", hc.Order.ID), zap.String("flow", flow))

	userID, err := c.pipeline().orderComplete(ctx, hc)
	if err != nil {
		log.Warn("order handler failed", zap.Error(err))
	} else if userID != "" && userID != hc.UserID {
		if err := c.Sessions.SetUser(ctx, sess, userID); err != nil {
			log.Warn("record session user failed", zap.Error(err))
		}
	}
	if !first {
		return
	}
	c.Metrics.OrderCompleted(flow)
	if c.Notifier != nil {
		if err := c.Notifier.SendOrderEmail(ctx, hc.Order); err != nil {
			log.Warn("send order email failed", zap.Error(err))
		}
	}
	log.Info("order completed", zap.String("key", hc.Order.Key), zap.String("total", hc.Order.Total.StringFixed(2)))
}

func (c *Core) flash(ctx context.Context, sess *session.Session, level session.Level, msg string) {
	if err := c.Sessions.AddMessage(ctx, sess, level, msg); err != nil {
		c.log().Warn("flash message failed", zap.String("session", sess.ID), zap.Error(err))
	}
}

// claimFinal holds the session's payment lock around the final step.
// release is nil when the lock was not taken: done is false while another
// request is paying, true when another request placed an order since sess
// was loaded. In the latter case the session is reset to that order.
func (c *Core) claimFinal(ctx context.Context, sess *session.Session, express bool) (release func(), done bool, err error) {
	ok, err := c.Sessions.ClaimCheckout(ctx, sess.ID)
	if err != nil || !ok {
		return nil, false, err
	}
	release = func() {
		if err := c.Sessions.ReleaseCheckout(context.WithoutCancel(ctx), sess.ID); err != nil {
			c.log().Warn("release checkout lock failed", zap.String("session", sess.ID), zap.Error(err))
		}
	}

	current, err := c.Sessions.Load(ctx, sess.ID)
	if err != nil {
		release()
		return nil, false, err
	}
	if current.OrderID != sess.OrderID {
		// this request wrote its stale cart back after the order went through
		c.log().Info("duplicate final step submit", zap.String("session", sess.ID), zap.Int64("order_id", current.OrderID))
		err := c.Finalizer.reset(ctx, sess, express, current.OrderID)
		release()
		return nil, true, err
	}
	return release, false, nil
}

func (c *Core) rollback(ctx context.Context, o *shop.Order) {
	if err := c.Finalizer.Rollback(ctx, o); err != nil {
		c.log().Error("rollback draft order failed", zap.Int64("order_id", o.ID), zap.Error(err))
	}
}
