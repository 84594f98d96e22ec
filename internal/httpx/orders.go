package httpx

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/session"
	"github.com/ariefcatur/go-shop-checkout/internal/shop"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// invoice shows an order to the session that placed it or to its owner.
func (h *ShopHandler) invoice(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, ok := h.ownOrder(ctx, w, r)
	if !ok {
		return
	}
	if h.PDF != nil && r.URL.Query().Get("format") == "pdf" {
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", "attachment; filename="+slugify(fmt.Sprintf("%s-invoice-%d", h.SiteName, o.ID))+".pdf")
		if err := h.PDF.RenderInvoice(ctx, w, o); err != nil {
			// headers are gone, the body is truncated
			h.Log.Error("render invoice pdf", zap.Int64("order_id", o.ID), zap.Error(err))
		}
		return
	}
	h.render(w, r, http.StatusOK, map[string]any{"order": o, "has_pdf": h.PDF != nil})
}

// orderHistory pages through the signed-in user's orders, newest first.
func (h *ShopHandler) orderHistory(w http.ResponseWriter, r *http.Request) {
	if h.loginRedirect(w, r) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	perPage := h.PerPage
	if perPage <= 0 {
		perPage = 10
	}
	// one extra row says whether a next page exists
	orders, err := h.Orders.ListForUser(ctx, sessionFrom(r).UserID, perPage+1, (page-1)*perPage)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	hasNext := len(orders) > perPage
	if hasNext {
		orders = orders[:perPage]
	}
	if orders == nil {
		orders = []shop.OrderSummary{}
	}
	h.render(w, r, http.StatusOK, map[string]any{
		"orders":   orders,
		"page":     page,
		"has_next": hasNext,
		"has_pdf":  h.PDF != nil,
	})
}

// invoiceResend mails the order email again and goes back where the
// customer came from.
func (h *ShopHandler) invoiceResend(w http.ResponseWriter, r *http.Request) {
	if h.loginRedirect(w, r) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, ok := h.ownOrder(ctx, w, r)
	if !ok {
		return
	}
	if err := h.Mailer.ResendInvoice(ctx, o); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.flash(r, sessionFrom(r), session.LevelInfo, fmt.Sprintf("The order email for order ID %d has been re-sent", o.ID))
	to := localNext(r)
	if to == "" {
		to = "/shop/orders"
	}
	redirect(w, r, to)
}

func (h *ShopHandler) ownOrder(ctx context.Context, w http.ResponseWriter, r *http.Request) (*shop.Order, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, r, shop.ErrNotFound)
		return nil, false
	}
	sess := sessionFrom(r)
	o, err := h.Orders.GetForUser(ctx, id, sess.ID, sess.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	return o, true
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
}
