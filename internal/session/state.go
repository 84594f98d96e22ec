package session

import "github.com/ariefcatur/go-shop-checkout/internal/shop"

// CheckoutState is what the standard checkout carries between requests.
type CheckoutState struct {
	Step int            `json:"step"`
	Data shop.OrderData `json:"data"`
}

// ExpressState is what the express checkout carries between the redirect to
// the payment provider and the customer's return.
type ExpressState struct {
	Step         int            `json:"step"`
	Token        string         `json:"token,omitempty"`
	PayerID      string         `json:"payer_id,omitempty"`
	Total        string         `json:"total,omitempty"`
	NeedsDetails bool           `json:"needs_details"`
	Data         shop.OrderData `json:"data"`
}

type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

type Message struct {
	Level Level  `json:"level"`
	Text  string `json:"text"`
}

type Session struct {
	ID       string
	Cart     *shop.Cart
	Checkout *CheckoutState
	Express  *ExpressState
	UserID   string
	OrderID  int64
	Messages []Message
}

func New(id string) *Session {
	return &Session{ID: id, Cart: shop.NewCart()}
}

// OrderData returns the checkout data collected so far, or the zero value.
func (s *Session) OrderData() shop.OrderData {
	if s.Checkout == nil {
		return shop.OrderData{}
	}
	return s.Checkout.Data
}
