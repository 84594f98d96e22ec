package httpx

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/checkout"
	"github.com/ariefcatur/go-shop-checkout/internal/session"
	"github.com/ariefcatur/go-shop-checkout/internal/shop"
	"github.com/go-chi/chi/v5"
)

// product shows a product with its variations and adds the chosen variation
// to the cart, or to the wishlist when add_wishlist is posted.
func (h *ShopHandler) product(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p, variations, err := h.Catalog.ProductBySlug(ctx, chi.URLParam(r, "slug"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if r.Method == http.MethodPost {
		h.addProduct(w, r.WithContext(ctx), variations)
		return
	}

	available := false
	for _, v := range variations {
		if v.HasPrice() {
			available = true
			break
		}
	}
	initial := map[string]any{"quantity": 1}
	if len(variations) > 0 {
		opts := variations[0].Options()
		initial["option1"], initial["option2"], initial["option3"] = opts[0], opts[1], opts[2]
	}
	h.render(w, r, http.StatusOK, map[string]any{
		"product":                  p,
		"variations":               variations,
		"has_available_variations": available,
		"initial":                  initial,
	})
}

func (h *ShopHandler) addProduct(w http.ResponseWriter, r *http.Request, variations []shop.Variation) {
	sess := sessionFrom(r)
	toCart := r.PostFormValue("add_wishlist") == ""

	qty := 1
	if raw := strings.TrimSpace(r.PostFormValue("quantity")); raw != "" || toCart {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, r, &checkout.ValidationError{Fields: map[string]string{"quantity": "Please enter a whole number greater than zero."}})
			return
		}
		qty = n
	}
	v, ok := matchVariation(variations, [3]string{
		r.PostFormValue("option1"), r.PostFormValue("option2"), r.PostFormValue("option3"),
	})
	if !ok {
		h.writeError(w, r, &checkout.ValidationError{Fields: map[string]string{"": "The selected options are currently unavailable."}})
		return
	}

	if !toCart {
		skus := wishlistSKUs(r)
		if !slices.Contains(skus, v.SKU) {
			skus = append(skus, v.SKU)
		}
		h.flash(r, sess, session.LevelInfo, "Item added to wishlist")
		h.Sessions.setCookie(w, cookieWishlist, strings.Join(skus, ","), cookieYear)
		redirect(w, r, "/shop/wishlist")
		return
	}

	if err := sess.Cart.AddItem(v, qty); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.Core.RecalculateCart(r.Context(), sess); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.flash(r, sess, session.LevelInfo, "Item added to cart")
	redirect(w, r, "/shop/cart")
}

// matchVariation finds the variation whose option values equal opts.
// Options the form leaves out match anything.
func matchVariation(variations []shop.Variation, opts [3]string) (shop.Variation, bool) {
	for _, v := range variations {
		have := v.Options()
		match := true
		for i := range opts {
			if opts[i] != "" && opts[i] != have[i] {
				match = false
				break
			}
		}
		if match {
			return v, true
		}
	}
	return shop.Variation{}, false
}

func (h *ShopHandler) wishlist(w http.ResponseWriter, r *http.Request) {
	if !h.WishlistEnabled {
		h.writeError(w, r, shop.ErrNotFound)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	sess := sessionFrom(r)
	skus := wishlistSKUs(r)
	var addErr error

	if r.Method == http.MethodPost {
		sku := r.PostFormValue("sku")
		msg, to := "Item removed from wishlist", "/shop/wishlist"
		if r.PostFormValue("add_cart") != "" {
			msg, to = "Item added to cart", "/shop/cart"
			addErr = h.addFromWishlist(ctx, sess, sku)
		}
		skus = slices.DeleteFunc(skus, func(s string) bool { return s == sku })
		if addErr == nil {
			h.flash(r, sess, session.LevelInfo, msg)
			h.Sessions.setCookie(w, cookieWishlist, strings.Join(skus, ","), cookieYear)
			redirect(w, r, to)
			return
		}
	}

	if addErr != nil && !customerError(addErr) {
		h.writeError(w, r, addErr)
		return
	}

	found, err := h.Catalog.VariationsBySKU(ctx, skus)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	bySKU := make(map[string]shop.Variation, len(found))
	for _, v := range found {
		bySKU[v.SKU] = v
	}
	items := make([]shop.Variation, 0, len(found))
	kept := make([]string, 0, len(found))
	for _, sku := range skus {
		if v, ok := bySKU[sku]; ok {
			items = append(items, v)
			kept = append(kept, sku)
		}
	}
	// forget skus that are gone or unpublished
	if len(kept) < len(skus) {
		h.Sessions.setCookie(w, cookieWishlist, strings.Join(kept, ","), cookieYear)
	}

	view := map[string]any{"wishlist_items": items}
	code := http.StatusOK
	if addErr != nil {
		view["error"] = wishlistError(addErr)
		code = http.StatusConflict
	}
	h.render(w, r, code, view)
}

func (h *ShopHandler) addFromWishlist(ctx context.Context, sess *session.Session, sku string) error {
	vs, err := h.Catalog.VariationsBySKU(ctx, []string{sku})
	if err != nil {
		return err
	}
	if len(vs) == 0 {
		return shop.ErrNotFound
	}
	if err := sess.Cart.AddItem(vs[0], 1); err != nil {
		return err
	}
	return h.Core.RecalculateCart(ctx, sess)
}

func customerError(err error) bool {
	var se *shop.StockError
	return errors.As(err, &se) || errors.Is(err, shop.ErrNoPrice) || errors.Is(err, shop.ErrNotFound)
}

func wishlistError(err error) string {
	var se *shop.StockError
	if errors.As(err, &se) {
		return stockMessage(se)
	}
	return "The selected options are currently unavailable."
}

func wishlistSKUs(r *http.Request) []string {
	c, err := r.Cookie(cookieWishlist)
	if err != nil || c.Value == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(c.Value, ",") {
		if s = strings.TrimSpace(s); s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
