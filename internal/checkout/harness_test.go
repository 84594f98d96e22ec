package checkout

import (
	"context"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-shop-checkout/internal/payment"
	"github.com/ariefcatur/go-shop-checkout/internal/session"
	"github.com/ariefcatur/go-shop-checkout/internal/shop"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeOrders struct {
	mu     sync.Mutex
	next   int64
	orders map[int64]*shop.Order
	stock  map[string]int
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{orders: map[int64]*shop.Order{}, stock: map[string]int{}}
}

func (f *fakeOrders) CreateDraft(_ context.Context, o *shop.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	o.ID = f.next
	o.Status = shop.StatusDraft
	cp := *o
	cp.Items = append([]shop.OrderItem(nil), o.Items...)
	f.orders[o.ID] = &cp
	return nil
}

func (f *fakeOrders) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.orders[id]; ok && o.Status == shop.StatusDraft {
		delete(f.orders, id)
	}
	return nil
}

func (f *fakeOrders) Complete(_ context.Context, id int64, txn string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok || o.Status != shop.StatusDraft {
		return false, nil
	}
	for _, it := range o.Items {
		if have, tracked := f.stock[it.SKU]; tracked && have < it.Quantity {
			return false, &shop.StockError{SKU: it.SKU, Required: it.Quantity, Available: have}
		}
	}
	for _, it := range o.Items {
		if _, tracked := f.stock[it.SKU]; tracked {
			f.stock[it.SKU] -= it.Quantity
		}
	}
	o.Status = shop.StatusComplete
	o.TransactionID = txn
	return true, nil
}

func (f *fakeOrders) GetByKey(_ context.Context, key string) (*shop.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.Key == key {
			return o, nil
		}
	}
	return nil, shop.ErrNotFound
}

func (f *fakeOrders) byStatus(s shop.Status) []*shop.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*shop.Order
	for _, o := range f.orders {
		if o.Status == s {
			out = append(out, o)
		}
	}
	return out
}

type fakeNotifier struct{ sent []int64 }

func (n *fakeNotifier) SendOrderEmail(_ context.Context, o *shop.Order) error {
	n.sent = append(n.sent, o.ID)
	return nil
}

type fakeCodes map[string]*shop.DiscountCode

func (f fakeCodes) DiscountByCode(_ context.Context, code string) (*shop.DiscountCode, error) {
	if dc, ok := f[code]; ok {
		return dc, nil
	}
	return nil, shop.ErrNotFound
}

func (f fakeCodes) CountDiscountUses(context.Context, string) (int, error) { return 0, nil }

type declinedPayment struct{}

func (declinedPayment) Pay(context.Context, *HandlerContext) (string, error) {
	return "", &payment.Failure{Code: "10486", Message: "Card declined"}
}

type fakeProvider struct {
	begins        []payment.BeginRequest
	failWithToken bool
	beginErr      error
	details       *payment.Details
	detailsErr    error
	captureErr    error
	captured      []decimal.Decimal
}

func (p *fakeProvider) Begin(_ context.Context, req payment.BeginRequest) (string, error) {
	p.begins = append(p.begins, req)
	if req.Token != "" && p.failWithToken {
		return "", &payment.Failure{Message: "Token expired"}
	}
	if p.beginErr != nil {
		return "", p.beginErr
	}
	return "EC-1", nil
}

func (p *fakeProvider) GetDetails(_ context.Context, token string) (*payment.Details, error) {
	if p.detailsErr != nil {
		return nil, p.detailsErr
	}
	d := *p.details
	d.Token = token
	return &d, nil
}

func (p *fakeProvider) Capture(_ context.Context, _, _ string, amount decimal.Decimal) (string, error) {
	if p.captureErr != nil {
		return "", p.captureErr
	}
	p.captured = append(p.captured, amount)
	return "TXN-1", nil
}

func (p *fakeProvider) AuthorizeURL(token string, commit bool) string {
	u := "https://pay.test/checkout?token=" + token
	if commit {
		u += "&useraction=commit"
	}
	return u
}

type harness struct {
	mr       *miniredis.Miniredis
	store    *session.Store
	orders   *fakeOrders
	notifier *fakeNotifier
	core     *Core
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	store := session.NewStore(rdb, time.Hour)
	orders := newFakeOrders()
	n := &fakeNotifier{}
	return &harness{
		mr:       mr,
		store:    store,
		orders:   orders,
		notifier: n,
		core: &Core{
			Finalizer:   &Finalizer{Orders: orders, Sessions: store, Now: func() time.Time { return testNow }},
			Sessions:    store,
			Notifier:    n,
			LoginURL:    "/accounts/login",
			CompleteURL: "/shop/checkout/complete",
		},
	}
}

func (h *harness) machine(paymentStep, confirmation bool) *Machine {
	return &Machine{
		Core:        h.core,
		Steps:       NewSteps(paymentStep, confirmation),
		Signer:      NewSigner("secret"),
		Orders:      h.orders,
		CheckoutURL: "/shop/checkout",
		Now:         func() time.Time { return testNow },
	}
}

func (h *harness) express(p Provider) *Express {
	return &Express{
		Core:       h.core,
		Provider:   p,
		ExpressURL: "/shop/express-checkout",
		CancelURL:  "/shop/express-checkout-cancel",
		CartURL:    "/shop/cart",
		ReturnURL:  "https://shop.test/shop/express-checkout",
		AbortURL:   "https://shop.test/shop/express-checkout-cancel",
	}
}

// cartSession stores a session whose cart holds qty of sku at price.
func (h *harness) cartSession(t *testing.T, id, sku, price string, qty int, canShip bool) *session.Session {
	t.Helper()
	sess := session.New(id)
	p := decimal.RequireFromString(price)
	require.NoError(t, sess.Cart.AddItem(shop.Variation{SKU: sku, ProductTitle: "Print", UnitPrice: &p, CanShip: canShip}, qty))
	require.NoError(t, h.store.SaveCart(context.Background(), sess))
	return h.reload(t, id)
}

func (h *harness) reload(t *testing.T, id string) *session.Session {
	t.Helper()
	sess, err := h.store.Load(context.Background(), id)
	require.NoError(t, err)
	return sess
}

func detailsValues(step int) url.Values {
	return url.Values{
		"step":                      {strconv.Itoa(step)},
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

func withCard(v url.Values) url.Values {
	v.Set("card_name", "Ada Lovelace")
	v.Set("card_type", "Visa")
	v.Set("card_number", "4111 1111 1111 1111")
	v.Set("card_expiry_month", "12")
	v.Set("card_expiry_year", "2030")
	v.Set("card_ccv", "123")
	return v
}

func postReq(sess *session.Session, v url.Values) Request {
	return Request{Method: "POST", Values: v, Session: sess}
}

func getReq(sess *session.Session) Request {
	return Request{Method: "GET", Values: url.Values{}, Session: sess}
}

