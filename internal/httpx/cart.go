package httpx

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/checkout"
	"github.com/ariefcatur/go-shop-checkout/internal/session"
	"github.com/ariefcatur/go-shop-checkout/internal/shop"
	"go.uber.org/zap"
)

// cart shows the cart. A POST with update_cart carries quantity_<sku> and
// delete_<sku> fields for each line; any other POST is the discount form.
func (h *ShopHandler) cart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	sess := sessionFrom(r)

	if r.Method == http.MethodPost {
		var err error
		switch {
		case r.PostFormValue("update_cart") == "":
			err = h.Core.ApplyCartDiscount(ctx, sess, r.PostFormValue("discount_code"))
		case !sess.Cart.HasItems():
			// the session timed out under the customer
			h.flash(r, sess, session.LevelInfo, "Your cart has expired")
			h.renderCart(w, r, http.StatusOK, nil)
			return
		default:
			err = h.updateCart(ctx, r, sess)
		}
		var ve *checkout.ValidationError
		if errors.As(err, &ve) {
			h.renderCart(w, r, http.StatusBadRequest, ve.Fields)
			return
		}
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		redirect(w, r, "/shop/cart")
		return
	}
	h.renderCart(w, r, http.StatusOK, nil)
}

// updateCart checks every posted quantity against stock before touching the
// cart, so a bad line leaves all lines as they were.
func (h *ShopHandler) updateCart(ctx context.Context, r *http.Request, sess *session.Session) error {
	cart := sess.Cart
	skus := make([]string, 0, len(cart.Lines))
	for _, l := range cart.Lines {
		skus = append(skus, l.SKU)
	}
	vs, err := h.Catalog.VariationsBySKU(ctx, skus)
	if err != nil {
		return err
	}
	stock := make(map[string]*int, len(vs))
	for _, v := range vs {
		stock[v.SKU] = v.NumInStock
	}

	want := make(map[string]int, len(cart.Lines))
	fields := map[string]string{}
	for _, l := range cart.Lines {
		qty := l.Quantity
		if raw := strings.TrimSpace(r.PostFormValue("quantity_" + l.SKU)); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				fields["quantity_"+l.SKU] = "Please enter a whole number."
				continue
			}
			qty = n
		}
		if r.PostFormValue("delete_"+l.SKU) != "" {
			qty = 0
		}
		if avail := stock[l.SKU]; avail != nil && qty > *avail {
			fields["quantity_"+l.SKU] = stockMessage(&shop.StockError{SKU: l.SKU, Required: qty, Available: *avail})
			continue
		}
		want[l.SKU] = qty
	}
	if len(fields) > 0 {
		return &checkout.ValidationError{Fields: fields}
	}

	for sku, qty := range want {
		if err := cart.SetQuantity(sku, qty, stock[sku]); err != nil {
			return err
		}
	}
	if err := h.Core.RecalculateCart(ctx, sess); err != nil {
		return err
	}
	h.flash(r, sess, session.LevelInfo, "Cart updated")
	return nil
}

func (h *ShopHandler) renderCart(w http.ResponseWriter, r *http.Request, code int, errs map[string]string) {
	sess := sessionFrom(r)
	view := map[string]any{
		"cart":           sess.Cart,
		"needs_shipping": sess.Cart.NeedsShipping(),
		"discount_field": h.discountField(r.Context()),
	}
	if len(errs) > 0 {
		view["errors"] = errs
	}
	h.render(w, r, code, view)
}

func (h *ShopHandler) discountField(ctx context.Context) bool {
	if !h.DiscountFieldInCart || h.Discounts == nil {
		return false
	}
	ok, err := h.Discounts.AnyActive(ctx)
	if err != nil {
		h.Log.Warn("discount lookup", zap.Error(err))
		return false
	}
	return ok
}
