package checkout

import (
	"context"
	"strconv"
	"strings"

	"github.com/ariefcatur/go-shop-checkout/internal/payment"
	"github.com/ariefcatur/go-shop-checkout/internal/session"
	"github.com/ariefcatur/go-shop-checkout/internal/shop"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const flowExpress = "express"

// Provider is the third-party payment service behind express checkout.
type Provider interface {
	Begin(ctx context.Context, req payment.BeginRequest) (string, error)
	GetDetails(ctx context.Context, token string) (*payment.Details, error)
	Capture(ctx context.Context, token, payerID string, amount decimal.Decimal) (string, error)
	AuthorizeURL(token string, commit bool) string
}

// Express drives the provider-hosted checkout: authorize sends the customer
// to the provider, confirm runs when they come back.
type Express struct {
	*Core
	Provider Provider

	ExpressURL string // this flow, for the login redirect
	CancelURL  string // local cancel view
	CartURL    string
	ReturnURL  string // absolute, handed to the provider
	AbortURL   string // absolute cancel URL handed to the provider
}

var expressSteps = ExpressSteps()

func (e *Express) Handle(ctx context.Context, req Request) (*Result, error) {
	sess := req.Session
	if to := e.loginRedirect(sess, e.ExpressURL); to != "" {
		return &Result{Redirect: to}, nil
	}

	st := sess.Express
	initial := sess.OrderData()
	if st != nil {
		initial = st.Data
	}
	step := ExpressAuthorize
	if st != nil && st.Step > 0 {
		step = st.Step
	}
	if req.posted() {
		if n, err := strconv.Atoi(req.Values.Get("step")); err == nil && n > 0 {
			step = n
		}
	}
	step = expressSteps.Clamp(step)

	cart := sess.Cart
	hc := &HandlerContext{SessionID: sess.ID, UserID: sess.UserID, Cart: cart, Data: &initial}
	var errs []*CheckoutError

	if step == ExpressAuthorize {
		if err := e.applyDiscount(ctx, sess, initial.DiscountCode); err != nil {
			if !shop.IsDiscountRejection(err) {
				return nil, err
			}
			e.flash(ctx, sess, session.LevelError, discountMessage(err))
			initial.DiscountCode = ""
			if err := e.applyDiscount(ctx, sess, ""); err != nil {
				return nil, err
			}
		}
	}
	if ce := e.pipeline().billShipTax(ctx, hc); ce != nil {
		errs = append(errs, ce)
	}

	order := newOrder(sess, initial, true)
	e.Finalizer.fill(order, cart)
	if st != nil && st.Total != "" && st.Total != order.Total.StringFixed(2) {
		return e.cancel(ctx, sess, ErrTotalMismatch, "The cart total and order total do not match. Please start over.")
	}
	if err := e.Sessions.SaveCart(ctx, sess); err != nil {
		return nil, err
	}

	needsShipping := cart.NeedsShipping()
	form := NewForm(step, initial)
	outcome := eventStay

	switch {
	case req.posted() && req.Values.Has("back"):
		outcome = eventBack
		step = expressSteps.next(step, outcome)
		form = NewForm(step, initial)

	case cart.HasItems() && step == ExpressAuthorize:
		if len(errs) > 0 {
			return e.cancel(ctx, sess, errs[0], joinMessages(errs))
		}
		return e.authorize(ctx, sess, initial, order, needsShipping)

	case cart.HasItems() && step == ExpressConfirm:
		if st == nil || st.Token == "" {
			return e.cancel(ctx, sess, nil, "Your express checkout has expired. Please start over.")
		}
		payerID := st.PayerID
		if st.NeedsDetails {
			d, err := e.Provider.GetDetails(ctx, st.Token)
			if err != nil {
				errs = append(errs, paymentError(err))
			} else {
				if !d.Amount.IsZero() && !d.Amount.Equal(order.Total) {
					return e.cancel(ctx, sess, ErrTotalMismatch, "The cart total and order total do not match. Please start over.")
				}
				st.Data = detailsToOrderData(d, st.Data)
				st.PayerID = d.PayerID
				st.NeedsDetails = false
				if err := e.Sessions.SaveExpress(ctx, sess); err != nil {
					return nil, err
				}
				payerID = d.PayerID
				initial = st.Data
				form = NewForm(step, initial)
				order = newOrder(sess, initial, true)
			}
		}

		if payerID == "" || len(errs) > 0 {
			if len(errs) == 0 {
				errs = append(errs, NewCheckoutError("The payment provider did not identify the payer"))
			}
			return e.cancel(ctx, sess, errs[0], joinMessages(errs))
		}
		if req.posted() || !needsShipping {
			return e.capture(ctx, sess, hc, order, st.Token, payerID)
		}
	}

	e.Metrics.Step(flowExpress, step, outcome.String())
	return &Result{
		Express:       true,
		Step:          step,
		StepInfo:      expressSteps.Info(step),
		Steps:         expressSteps.All(),
		First:         step == expressSteps.First(),
		Last:          step == expressSteps.Last(),
		Form:          form,
		Cart:          cart,
		NeedsShipping: needsShipping,
	}, nil
}

// authorize registers the payment with the provider and sends the customer
// there. A stale token is retried once without it.
func (e *Express) authorize(ctx context.Context, sess *session.Session, data shop.OrderData, order *shop.Order, needsShipping bool) (*Result, error) {
	req := payment.BeginRequest{
		Amount:     order.Total,
		ReturnURL:  e.ReturnURL,
		CancelURL:  e.AbortURL,
		NoShipping: !needsShipping,
	}
	if sess.Express != nil {
		req.Token = sess.Express.Token
	}
	token, err := e.Provider.Begin(ctx, req)
	if err != nil && req.Token != "" {
		e.log().Info("express begin with cached token failed, retrying", zap.Error(err))
		req.Token = ""
		token, err = e.Provider.Begin(ctx, req)
	}
	if err != nil {
		e.Metrics.PaymentFailed(flowExpress)
		ce := paymentError(err)
		return e.cancel(ctx, sess, ce, ce.Message+" please try again or use our Checkout")
	}

	sess.Express = &session.ExpressState{
		Step:         ExpressConfirm,
		Token:        token,
		Total:        order.Total.StringFixed(2),
		NeedsDetails: true,
		Data:         data,
	}
	if err := e.Sessions.SaveExpress(ctx, sess); err != nil {
		return nil, err
	}
	e.Metrics.Step(flowExpress, ExpressAuthorize, eventAdvance.String())
	return &Result{Express: true, Redirect: e.Provider.AuthorizeURL(token, !needsShipping)}, nil
}

func (e *Express) capture(ctx context.Context, sess *session.Session, hc *HandlerContext, order *shop.Order, token, payerID string) (*Result, error) {
	release, done, err := e.claimFinal(ctx, sess, true)
	if err != nil {
		return nil, err
	}
	if done {
		return &Result{Express: true, Redirect: e.CompleteURL}, nil
	}
	if release == nil {
		e.flash(ctx, sess, session.LevelError, errCheckoutBusy.Message)
		return &Result{Express: true, Redirect: e.CartURL}, nil
	}
	defer release()

	if err := e.Finalizer.Setup(ctx, order, sess.Cart, sess); err != nil {
		return nil, err
	}
	hc.Order = order

	txn, err := e.Provider.Capture(ctx, token, payerID, order.Total)
	if err != nil {
		e.Metrics.PaymentFailed(flowExpress)
		e.rollback(ctx, order)
		ce := paymentError(err)
		return e.cancel(ctx, sess, ce, ce.Message)
	}

	order.TransactionID = txn
	first, err := e.Finalizer.Complete(ctx, order, sess, true)
	if err != nil && !first {
		e.log().Error("express order captured but not completed",
			zap.Int64("order_id", order.ID), zap.String("transaction_id", txn), zap.Error(err))
		e.rollback(ctx, order)
		ce := AsCheckoutError(err, "Your order could not be completed")
		return e.cancel(ctx, sess, ce, ce.Message)
	}
	if err != nil {
		e.log().Warn("session cleanup after completion failed", zap.Int64("order_id", order.ID), zap.Error(err))
	}
	e.orderCompleted(ctx, sess, hc, first, flowExpress)
	e.Metrics.Step(flowExpress, ExpressConfirm, eventCompleted.String())
	return &Result{Express: true, Redirect: e.CompleteURL, Order: order}, nil
}

// cancel leaves the flow through the cancel view with msg flashed.
func (e *Express) cancel(ctx context.Context, sess *session.Session, cause error, msg string) (*Result, error) {
	if cause != nil {
		e.log().Info("express checkout cancelled", zap.String("session", sess.ID), zap.Error(cause))
	}
	e.flash(ctx, sess, session.LevelError, msg)
	e.Metrics.Step(flowExpress, 0, "cancelled")
	return &Result{Express: true, Redirect: e.CancelURL}, nil
}

// Cancel drops the express state, if any, and returns to the cart.
func (e *Express) Cancel(ctx context.Context, sess *session.Session) (*Result, error) {
	if err := e.Sessions.ClearExpress(ctx, sess); err != nil {
		return nil, err
	}
	return &Result{Express: true, Redirect: e.CartURL}, nil
}

func joinMessages(errs []*CheckoutError) string {
	return strings.Join(messages(errs), "; ")
}

// detailsToOrderData copies the buyer's provider details over data. Fields
// the provider left out read "n/a".
func detailsToOrderData(d *payment.Details, data shop.OrderData) shop.OrderData {
	const na = "n/a"
	street := func(first, second string) string {
		return strings.TrimSpace(d.Get(first, na) + " " + d.Get(second, ""))
	}
	data.Billing = shop.Address{
		Business:  d.Get("business", na),
		FirstName: d.Get("firstname", na),
		LastName:  d.Get("lastname", na),
		Country:   d.Get("countrycode", na),
		State:     d.Get("state", na),
		Street:    street("street", "street2"),
		Postcode:  d.Get("zip", na),
		City:      d.Get("city", na),
		Email:     d.Get("email", na),
		Phone:     data.Billing.Phone,
	}
	data.Shipping = shop.Address{
		Business:  d.Get("business", na),
		FirstName: d.Get("firstname", na),
		LastName:  d.Get("lastname", na),
		Country:   d.Get("shiptocountrycode", na),
		State:     d.Get("shiptostate", na),
		Street:    street("shiptostreet", "shiptostreet2"),
		Postcode:  d.Get("shiptozip", na),
		City:      d.Get("shiptocity", na),
	}
	data.SameBillingShipping = false
	data.AdditionalInstructions = d.Get("paymentrequest_0_notetext", "")
	return data
}
