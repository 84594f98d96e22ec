package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-shop-checkout/internal/checkout"
	"github.com/ariefcatur/go-shop-checkout/internal/shop"
	"go.uber.org/zap"
)

func (h *ShopHandler) checkout(w http.ResponseWriter, r *http.Request) {
	res, err := h.Checkout.Handle(r.Context(), h.flowRequest(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeResult(w, r, res)
}

func (h *ShopHandler) express(w http.ResponseWriter, r *http.Request) {
	if h.Express == nil {
		h.writeError(w, r, shop.ErrNotFound)
		return
	}
	res, err := h.Express.Handle(r.Context(), h.flowRequest(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeResult(w, r, res)
}

func (h *ShopHandler) expressCancel(w http.ResponseWriter, r *http.Request) {
	if h.Express == nil {
		h.writeError(w, r, shop.ErrNotFound)
		return
	}
	res, err := h.Express.Cancel(r.Context(), sessionFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeResult(w, r, res)
}

func (h *ShopHandler) flowRequest(r *http.Request) checkout.Request {
	req := checkout.Request{Method: r.Method, Session: sessionFrom(r)}
	if err := r.ParseForm(); err == nil {
		req.Values = r.PostForm
	}
	if c, err := r.Cookie(cookieRemember); err == nil {
		req.RememberCookie = c.Value
	}
	return req
}

func (h *ShopHandler) writeResult(w http.ResponseWriter, r *http.Request, res *checkout.Result) {
	if rc := res.Remember; rc != nil {
		if rc.Delete {
			h.Sessions.deleteCookie(w, cookieRemember)
		} else {
			h.Sessions.setCookie(w, cookieRemember, rc.Value, cookieYear)
		}
	}
	if res.Redirect != "" {
		redirect(w, r, res.Redirect)
		return
	}
	h.render(w, r, http.StatusOK, map[string]any{"checkout": res})
}

// complete shows the order the session just finished. When the post-order
// hook signed the customer in, the order moves to that account.
func (h *ShopHandler) complete(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if sess.OrderID == 0 {
		h.writeError(w, r, shop.ErrNotFound)
		return
	}
	o, err := h.Orders.GetByID(r.Context(), sess.OrderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if sess.UserID != "" && sess.UserID != o.UserID {
		if err := h.Orders.AssignUser(r.Context(), o.ID, sess.UserID); err != nil {
			h.writeError(w, r, err)
			return
		}
		h.Log.Info("order assigned to user", zap.Int64("order_id", o.ID), zap.String("user_id", sess.UserID))
		o.UserID = sess.UserID
	}
	h.render(w, r, http.StatusOK, map[string]any{
		"order":   o,
		"items":   o.Items,
		"has_pdf": h.PDF != nil,
		"steps":   h.Checkout.Steps.All(),
	})
}
