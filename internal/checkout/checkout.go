package checkout

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/session"
	"github.com/ariefcatur/go-shop-checkout/internal/shop"
	"go.uber.org/zap"
)

const flowStandard = "standard"

// Machine drives the standard multi-step checkout. Every request re-enters
// Handle with the session; the step lives in the session between requests.
type Machine struct {
	*Core
	Steps       Steps
	Signer      Signer
	Orders      OrderLookup
	CheckoutURL string
	Now         func() time.Time
}

func (m *Machine) Handle(ctx context.Context, req Request) (*Result, error) {
	sess := req.Session
	if to := m.loginRedirect(sess, m.CheckoutURL); to != "" {
		return &Result{Redirect: to}, nil
	}
	cart := sess.Cart
	needsShipping := cart.NeedsShipping()
	initial := m.initialData(ctx, sess, req.RememberCookie)
	step := m.resolveStep(req, sess)
	form := NewForm(step, initial)
	outcome := eventStay

	switch {
	case req.posted() && req.Values.Has("back"):
		outcome = eventBack
		step = m.Steps.next(step, outcome)
		form = NewForm(step, initial)

	case req.posted() && cart.HasItems():
		form = BindForm(m.Steps, step, initial, req.Values, needsShipping, m.now())
		var errs []*CheckoutError

		if step == m.Steps.First() {
			if err := m.applyDiscount(ctx, sess, form.Data.DiscountCode); err != nil {
				if !shop.IsDiscountRejection(err) {
					return nil, err
				}
				form.AddError("discount_code", discountMessage(err))
			}
		}
		if !form.IsValid() {
			outcome = eventInvalid
			break
		}

		// card fields never leave the request
		sess.Checkout = &session.CheckoutState{Step: step, Data: form.Data}
		if err := m.Sessions.SaveCheckout(ctx, sess); err != nil {
			return nil, err
		}

		hc := &HandlerContext{SessionID: sess.ID, UserID: sess.UserID, Cart: cart, Data: &form.Data, Card: form.Card}
		if step != m.Steps.First() {
			if err := m.applyDiscount(ctx, sess, ""); err != nil {
				errs = append(errs, AsCheckoutError(err, "Your discount could not be applied"))
			}
		}
		if ce := m.pipeline().billShipTax(ctx, hc); ce != nil {
			errs = append(errs, ce)
		}
		if err := m.Sessions.SaveCart(ctx, sess); err != nil {
			return nil, err
		}

		if step == m.Steps.Last() && len(errs) == 0 {
			release, done, err := m.claimFinal(ctx, sess, false)
			if err != nil {
				return nil, err
			}
			if done {
				return &Result{Redirect: m.CompleteURL}, nil
			}
			if release == nil {
				errs = append(errs, errCheckoutBusy)
			} else {
				res, ce, err := m.finish(ctx, sess, hc, form)
				release()
				if err != nil {
					return nil, err
				}
				if res != nil {
					return res, nil
				}
				errs = append(errs, ce)
				outcome = eventPaymentFailed
				step = m.Steps.next(step, outcome)
				form.Step = step
			}
		}

		form = form.withCheckoutErrors(errs)
		if form.IsValid() {
			outcome = eventAdvance
			step = m.Steps.next(step, outcome)
			form = NewForm(step, form.Data)
		} else if outcome != eventPaymentFailed {
			outcome = eventInvalid
		}
	}

	if sess.Checkout == nil {
		sess.Checkout = &session.CheckoutState{Data: initial}
	}
	sess.Checkout.Step = step
	if err := m.Sessions.SaveCheckout(ctx, sess); err != nil {
		return nil, err
	}
	m.Metrics.Step(flowStandard, step, outcome.String())

	return &Result{
		Step:          step,
		StepInfo:      m.Steps.Info(step),
		Steps:         m.Steps.All(),
		First:         step == m.Steps.First(),
		Last:          step == m.Steps.Last(),
		PaymentStep:   step == m.Steps.Number(StepPayment),
		Form:          form,
		Cart:          cart,
		NeedsShipping: needsShipping,
	}, nil
}

// finish takes payment for the final step. It returns a redirect result on
// success, or the CheckoutError that sent the customer back.
func (m *Machine) finish(ctx context.Context, sess *session.Session, hc *HandlerContext, form *Form) (*Result, *CheckoutError, error) {
	order := newOrder(sess, form.Data, false)
	if err := m.Finalizer.Setup(ctx, order, sess.Cart, sess); err != nil {
		return nil, nil, err
	}
	hc.Order = order

	txn, ce := m.pipeline().pay(ctx, hc)
	if ce != nil {
		m.Metrics.PaymentFailed(flowStandard)
		m.log().Info("payment failed", zap.Int64("order_id", order.ID), zap.Error(ce))
		m.rollback(ctx, order)
		return nil, ce, nil
	}

	order.TransactionID = txn
	first, err := m.Finalizer.Complete(ctx, order, sess, false)
	if err != nil && first {
		m.log().Warn("session cleanup after completion failed", zap.Int64("order_id", order.ID), zap.Error(err))
	} else if err != nil {
		m.log().Error("order paid but not completed",
			zap.Int64("order_id", order.ID), zap.String("transaction_id", txn),
			zap.Bool("out_of_stock", errors.Is(err, shop.ErrOutOfStock)), zap.Error(err))
		m.rollback(ctx, order)
		return nil, AsCheckoutError(err, "Your order could not be completed"), nil
	}
	m.orderCompleted(ctx, sess, hc, first, flowStandard)

	res := &Result{Redirect: m.CompleteURL, Order: order}
	if form.Data.Remember {
		res.Remember = &RememberCookie{Value: m.Signer.Remember(order.Key)}
	} else {
		res.Remember = &RememberCookie{Delete: true}
	}
	return res, nil, nil
}

// resolveStep picks the posted step, then the session's, then the first.
// A posted step without session state means the session expired.
func (m *Machine) resolveStep(req Request, sess *session.Session) int {
	step := m.Steps.First()
	if sess.Checkout != nil && sess.Checkout.Step > 0 {
		step = sess.Checkout.Step
	}
	if req.posted() && sess.Checkout != nil {
		if n, err := strconv.Atoi(req.Values.Get("step")); err == nil && n > 0 {
			step = n
		}
	}
	if !sess.Cart.HasItems() {
		step = m.Steps.First()
	}
	return m.Steps.Clamp(step)
}

// initialData is the session's checkout data, or the addresses of the order
// the remember cookie points at.
func (m *Machine) initialData(ctx context.Context, sess *session.Session, cookie string) shop.OrderData {
	if sess.Checkout != nil {
		return sess.Checkout.Data
	}
	if cookie == "" || m.Orders == nil {
		return shop.OrderData{}
	}
	key, ok := m.Signer.Verify(cookie)
	if !ok {
		return shop.OrderData{}
	}
	o, err := m.Orders.GetByKey(ctx, key)
	if err != nil {
		if !errors.Is(err, shop.ErrNotFound) {
			m.log().Warn("load remembered order failed", zap.Error(err))
		}
		return shop.OrderData{}
	}
	return shop.OrderData{
		Billing:             o.Billing,
		Shipping:            o.Shipping,
		SameBillingShipping: sameAddress(o.Billing, o.Shipping),
		Remember:            true,
	}
}

func sameAddress(billing, shipping shop.Address) bool {
	billing.Email = ""
	shipping.Email = ""
	return billing == shipping
}

func (m *Machine) now() time.Time {
	if m.Now == nil {
		return time.Now()
	}
	return m.Now()
}
