package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ariefcatur/go-shop-checkout/internal/checkout"
	"github.com/ariefcatur/go-shop-checkout/internal/session"
	"github.com/ariefcatur/go-shop-checkout/internal/shop"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Catalog interface {
	ProductBySlug(ctx context.Context, slug string) (*shop.Product, []shop.Variation, error)
	VariationsBySKU(ctx context.Context, skus []string) ([]shop.Variation, error)
}

type Orders interface {
	GetByID(ctx context.Context, id int64) (*shop.Order, error)
	GetForUser(ctx context.Context, id int64, sessionID, userID string) (*shop.Order, error)
	ListForUser(ctx context.Context, userID string, limit, offset int) ([]shop.OrderSummary, error)
	AssignUser(ctx context.Context, id int64, userID string) error
}

// DiscountDirectory tells the cart page whether to offer a discount field.
type DiscountDirectory interface {
	AnyActive(ctx context.Context) (bool, error)
}

type InvoiceMailer interface {
	ResendInvoice(ctx context.Context, o *shop.Order) error
}

// PDFRenderer renders an invoice as PDF. Optional.
type PDFRenderer interface {
	RenderInvoice(ctx context.Context, w io.Writer, o *shop.Order) error
}

type ShopHandler struct {
	Sessions  *Sessions
	Catalog   Catalog
	Orders    Orders
	Discounts DiscountDirectory
	Core      *checkout.Core
	Checkout  *checkout.Machine
	Express   *checkout.Express // nil disables express checkout
	Mailer    InvoiceMailer
	PDF       PDFRenderer
	Log       *zap.Logger

	SiteName            string
	LoginURL            string
	WishlistEnabled     bool
	DiscountFieldInCart bool
	PerPage             int
}

func (h *ShopHandler) Register(r *chi.Mux) {
	r.Group(func(r chi.Router) {
		r.Use(h.Sessions.Middleware)

		r.Get("/shop/product/{slug}", h.product)
		r.Post("/shop/product/{slug}", h.product)
		r.Get("/shop/wishlist", h.wishlist)
		r.Post("/shop/wishlist", h.wishlist)
		r.Get("/shop/cart", h.cart)
		r.Post("/shop/cart", h.cart)
		r.Get("/shop/checkout", h.checkout)
		r.Post("/shop/checkout", h.checkout)
		r.Get("/shop/checkout/complete", h.complete)
		r.Get("/shop/express-checkout", h.express)
		r.Post("/shop/express-checkout", h.express)
		r.Get("/shop/express-checkout-cancel", h.expressCancel)
		r.Get("/shop/invoice/{id}", h.invoice)
		r.Post("/shop/invoice/{id}/resend", h.invoiceResend)
		r.Get("/shop/orders", h.orderHistory)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to statuses; anything unknown is a 500 whose
// cause stays in the log.
func (h *ShopHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *checkout.ValidationError
		se *shop.StockError
		ce *checkout.CheckoutError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": ve.Fields})
	case errors.As(err, &se):
		writeJSON(w, http.StatusConflict, map[string]any{"error": stockMessage(se), "sku": se.SKU})
	case errors.Is(err, shop.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, shop.ErrNoPrice), errors.Is(err, shop.ErrInvalidQuantity):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "The selected options are currently unavailable."})
	case errors.As(err, &ce):
		writeJSON(w, http.StatusConflict, map[string]string{"error": ce.Message})
	default:
		h.Log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func stockMessage(se *shop.StockError) string {
	if se.Available <= 0 {
		return "This item is out of stock."
	}
	return "Only " + strconv.Itoa(se.Available) + " remaining in stock."
}

func (h *ShopHandler) flash(r *http.Request, sess *session.Session, level session.Level, msg string) {
	if err := h.Sessions.Store.AddMessage(r.Context(), sess, level, msg); err != nil {
		h.Log.Warn("flash message", zap.String("session", sess.ID), zap.Error(err))
	}
}

// render writes a view along with the flash messages it consumes.
func (h *ShopHandler) render(w http.ResponseWriter, r *http.Request, code int, view map[string]any) {
	sess := sessionFrom(r)
	msgs, err := h.Sessions.Store.PopMessages(r.Context(), sess)
	if err != nil {
		h.Log.Warn("pop messages", zap.String("session", sess.ID), zap.Error(err))
	}
	if msgs == nil {
		msgs = []session.Message{}
	}
	view["messages"] = msgs
	writeJSON(w, code, view)
}

func redirect(w http.ResponseWriter, r *http.Request, to string) {
	http.Redirect(w, r, to, http.StatusFound)
}

// loginRedirect sends anonymous visitors to the login page and reports
// whether it did.
func (h *ShopHandler) loginRedirect(w http.ResponseWriter, r *http.Request) bool {
	if sessionFrom(r).UserID != "" {
		return false
	}
	redirect(w, r, h.LoginURL+"?next="+url.QueryEscape(r.URL.RequestURI()))
	return true
}

// localNext returns a same-site path from the next parameter, or "".
func localNext(r *http.Request) string {
	next := r.FormValue("next")
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return ""
	}
	return next
}
