package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/session"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	cookieSession  = "sessionid"
	cookieRemember = "remember"
	cookieWishlist = "wishlist"

	// long-lived cookies (remember, wishlist)
	cookieYear = 365 * 24 * time.Hour
)

type sessionKey struct{}

// Sessions attaches the visitor's session to every request, issuing a
// session cookie on first contact.
type Sessions struct {
	Store  *session.Store
	TTL    time.Duration
	Secure bool
	Log    *zap.Logger

	// UserHeader names the header an upstream auth proxy sets to the signed
	// in user's id. Empty disables it.
	UserHeader string
}

func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if c, err := r.Cookie(cookieSession); err == nil {
			id = c.Value
		}
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		// refresh on every request so the cookie outlives activity, not creation
		s.setCookie(w, cookieSession, id, s.TTL)

		sess, err := s.Store.Load(r.Context(), id)
		if err != nil {
			s.Log.Error("load session", zap.String("session", id), zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "session unavailable"})
			return
		}
		if s.UserHeader != "" {
			if user := r.Header.Get(s.UserHeader); user != "" && user != sess.UserID {
				if err := s.Store.SetUser(r.Context(), sess, user); err != nil {
					s.Log.Warn("record session user", zap.String("session", id), zap.Error(err))
				}
			}
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
	})
}

func (s *Sessions) setCookie(w http.ResponseWriter, name, value string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   s.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Sessions) deleteCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1, Secure: s.Secure})
}

func sessionFrom(r *http.Request) *session.Session {
	sess, _ := r.Context().Value(sessionKey{}).(*session.Session)
	return sess
}
