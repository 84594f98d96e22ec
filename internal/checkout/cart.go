package checkout

import (
	"context"
	"strings"

	"github.com/ariefcatur/go-shop-checkout/internal/session"
	"github.com/ariefcatur/go-shop-checkout/internal/shop"
	"go.uber.org/zap"
)

// RecalculateCart brings the cart back in line after its lines changed:
// the discount is revalidated and, once the customer has started checkout,
// shipping and tax are recomputed. Handler failures are left for the
// checkout to report.
func (c *Core) RecalculateCart(ctx context.Context, sess *session.Session) error {
	if err := c.applyDiscount(ctx, sess, ""); err != nil {
		return err
	}
	if sess.Checkout != nil && sess.Checkout.Step >= 1 && sess.Cart.HasItems() {
		data := sess.Checkout.Data
		hc := &HandlerContext{SessionID: sess.ID, UserID: sess.UserID, Cart: sess.Cart, Data: &data}
		if ce := c.pipeline().billShipTax(ctx, hc); ce != nil {
			c.log().Debug("cart recalculation left shipping or tax unset", zap.String("session", sess.ID), zap.Error(ce))
		}
	}
	return c.Sessions.SaveCart(ctx, sess)
}

// ApplyCartDiscount is the cart page's discount form. A rejected code comes
// back as a *ValidationError on discount_code and leaves the cart alone.
func (c *Core) ApplyCartDiscount(ctx context.Context, sess *session.Session, code string) error {
	code = strings.TrimSpace(code)
	if code != "" {
		if err := c.applyDiscount(ctx, sess, code); err != nil {
			if shop.IsDiscountRejection(err) {
				return &ValidationError{Fields: map[string]string{"discount_code": discountMessage(err)}}
			}
			return err
		}
		if sess.Checkout != nil {
			// keep the checkout form in step with the cart
			sess.Checkout.Data.DiscountCode = sess.Cart.DiscountCode
			if err := c.Sessions.SaveCheckout(ctx, sess); err != nil {
				return err
			}
		}
	}
	return c.RecalculateCart(ctx, sess)
}
