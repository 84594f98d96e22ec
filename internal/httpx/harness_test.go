package httpx

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-shop-checkout/internal/checkout"
	"github.com/ariefcatur/go-shop-checkout/internal/session"
	"github.com/ariefcatur/go-shop-checkout/internal/shop"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memCatalog struct {
	products   map[string]*shop.Product
	variations []shop.Variation
}

func newMemCatalog() *memCatalog {
	price := func(s string) *decimal.Decimal { d := decimal.RequireFromString(s); return &d }
	three := 3
	return &memCatalog{
		products: map[string]*shop.Product{"poster": {ID: 1, Slug: "poster", Title: "Poster", Published: true}},
		variations: []shop.Variation{
			{ID: 1, ProductID: 1, ProductTitle: "Poster", ProductSlug: "poster", SKU: "P-A3", Option1: "A3", UnitPrice: price("10"), NumInStock: &three, CanShip: true, IsDefault: true},
			{ID: 2, ProductID: 1, ProductTitle: "Poster", ProductSlug: "poster", SKU: "P-A2", Option1: "A2", UnitPrice: price("15"), CanShip: true},
			{ID: 3, ProductID: 1, ProductTitle: "Poster", ProductSlug: "poster", SKU: "P-A1", Option1: "A1"},
		},
	}
}

func (c *memCatalog) ProductBySlug(_ context.Context, slug string) (*shop.Product, []shop.Variation, error) {
	p, ok := c.products[slug]
	if !ok {
		return nil, nil, shop.ErrNotFound
	}
	var vs []shop.Variation
	for _, v := range c.variations {
		if v.ProductID == p.ID {
			vs = append(vs, v)
		}
	}
	return p, vs, nil
}

func (c *memCatalog) VariationsBySKU(_ context.Context, skus []string) ([]shop.Variation, error) {
	var out []shop.Variation
	for _, v := range c.variations {
		for _, s := range skus {
			if v.SKU == s {
				out = append(out, v)
			}
		}
	}
	return out, nil
}

type memOrders struct {
	mu     sync.Mutex
	next   int64
	orders map[int64]*shop.Order
}

func newMemOrders() *memOrders { return &memOrders{orders: map[int64]*shop.Order{}} }

func (m *memOrders) CreateDraft(_ context.Context, o *shop.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	o.ID = m.next
	o.Status = shop.StatusDraft
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *memOrders) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok && o.Status == shop.StatusDraft {
		delete(m.orders, id)
	}
	return nil
}

func (m *memOrders) Complete(_ context.Context, id int64, txn string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != shop.StatusDraft {
		return false, nil
	}
	o.Status, o.TransactionID = shop.StatusComplete, txn
	return true, nil
}

func (m *memOrders) GetByKey(_ context.Context, key string) (*shop.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.Key == key {
			cp := *o
			return &cp, nil
		}
	}
	return nil, shop.ErrNotFound
}

func (m *memOrders) GetByID(_ context.Context, id int64) (*shop.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, shop.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) GetForUser(ctx context.Context, id int64, sessionID, userID string) (*shop.Order, error) {
	o, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.SessionID != sessionID && (userID == "" || o.UserID != userID) {
		return nil, shop.ErrNotFound
	}
	return o, nil
}

func (m *memOrders) ListForUser(_ context.Context, userID string, limit, offset int) ([]shop.OrderSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []shop.OrderSummary
	for _, o := range m.orders {
		if o.UserID != userID {
			continue
		}
		s := shop.OrderSummary{ID: o.ID, Key: o.Key, Status: o.Status, Total: o.Total, CreatedAt: o.CreatedAt}
		for _, it := range o.Items {
			s.QuantityTotal += it.Quantity
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memOrders) AssignUser(_ context.Context, id int64, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return shop.ErrNotFound
	}
	o.UserID = userID
	return nil
}

type fakeMailer struct {
	mu      sync.Mutex
	receipt []int64
	resent  []int64
}

func (f *fakeMailer) SendOrderEmail(_ context.Context, o *shop.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receipt = append(f.receipt, o.ID)
	return nil
}

func (f *fakeMailer) ResendInvoice(_ context.Context, o *shop.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resent = append(f.resent, o.ID)
	return nil
}

type fakePDF struct{}

func (fakePDF) RenderInvoice(_ context.Context, w io.Writer, o *shop.Order) error {
	_, err := io.WriteString(w, "%PDF-1.4 order "+o.Key)
	return err
}

type env struct {
	srv     *httptest.Server
	mr      *miniredis.Miniredis
	store   *session.Store
	catalog *memCatalog
	orders  *memOrders
	mailer  *fakeMailer
	handler *ShopHandler
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	store := session.NewStore(rdb, time.Hour)
	catalog := newMemCatalog()
	orders := newMemOrders()
	mailer := &fakeMailer{}

	core := &checkout.Core{
		Finalizer:   &checkout.Finalizer{Orders: orders, Sessions: store},
		Sessions:    store,
		Notifier:    mailer,
		LoginURL:    "/accounts/login",
		CompleteURL: "/shop/checkout/complete",
	}
	h := &ShopHandler{
		Sessions: &Sessions{Store: store, TTL: time.Hour, UserHeader: "X-User-Id", Log: zap.NewNop()},
		Catalog:  catalog,
		Orders:   orders,
		Core:     core,
		Checkout: &checkout.Machine{
			Core:        core,
			Steps:       checkout.NewSteps(false, false),
			Signer:      checkout.NewSigner("secret"),
			Orders:      orders,
			CheckoutURL: "/shop/checkout",
		},
		Mailer:          mailer,
		PDF:             fakePDF{},
		Log:             zap.NewNop(),
		SiteName:        "Print Shop",
		LoginURL:        "/accounts/login",
		WishlistEnabled: true,
		PerPage:         2,
	}
	r := NewRouter(zap.NewNop(), nil)
	h.Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &env{srv: srv, mr: mr, store: store, catalog: catalog, orders: orders, mailer: mailer, handler: h}
}

// browser keeps cookies between requests and does not follow redirects.
type browser struct {
	t    *testing.T
	e    *env
	c    *http.Client
	user string
}

func (e *env) browser(t *testing.T) *browser {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{t: t, e: e, c: &http.Client{
		Jar:           jar,
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}}
}

func (b *browser) do(method, path string, form url.Values) *http.Response {
	b.t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequest(method, b.e.srv.URL+path, body)
	require.NoError(b.t, err)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if b.user != "" {
		req.Header.Set("X-User-Id", b.user)
	}
	resp, err := b.c.Do(req)
	require.NoError(b.t, err)
	b.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (b *browser) get(path string) *http.Response { return b.do(http.MethodGet, path, nil) }

func (b *browser) post(path string, form url.Values) *http.Response {
	return b.do(http.MethodPost, path, form)
}

func (b *browser) cookie(name string) string {
	u, _ := url.Parse(b.e.srv.URL)
	for _, c := range b.c.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func (b *browser) session() *session.Session {
	b.t.Helper()
	sess, err := b.e.store.Load(context.Background(), b.cookie(cookieSession))
	require.NoError(b.t, err)
	return sess
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func messageTexts(view map[string]any) []string {
	var out []string
	msgs, _ := view["messages"].([]any)
	for _, m := range msgs {
		if mm, ok := m.(map[string]any); ok {
			out = append(out, mm["text"].(string))
		}
	}
	return out
}

func billing() url.Values {
	return url.Values{
		"step":                      {"1"},
		"billing_detail_first_name": {"Ada"},
		"billing_detail_last_name":  {"Lovelace"},
		"billing_detail_street":     {"1 Analytical Way"},
		"billing_detail_city":       {"London"},
		"billing_detail_state":      {"LDN"},
		"billing_detail_postcode":   {"N1 9GU"},
		"billing_detail_country":    {"GB"},
		"billing_detail_phone":      {"0200000000"},
		"billing_detail_email":      {"ada@example.com"},
		"same_billing_shipping":     {"on"},
	}
}
