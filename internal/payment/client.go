package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/shop"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
)

// Failure is a request the provider understood and refused. Message is
// meant for the customer.
type Failure struct {
	Code    string
	Message string
}

func (f *Failure) Error() string {
	if f.Code == "" {
		return f.Message
	}
	return fmt.Sprintf("%s (%s)", f.Message, f.Code)
}

type BeginRequest struct {
	Amount     decimal.Decimal
	Currency   string
	ReturnURL  string
	CancelURL  string
	Token      string
	NoShipping bool
}

// Details is what the provider knows about the buyer after authorization.
// Amount is zero when the provider did not report one.
type Details struct {
	Token   string
	PayerID string
	Amount  decimal.Decimal
	Fields  map[string]string
}

func (d *Details) Get(field, fallback string) string {
	if v, ok := d.Fields[field]; ok && v != "" {
		return v
	}
	return fallback
}

type ChargeRequest struct {
	Amount   decimal.Decimal
	Currency string
	OrderKey string
	Card     shop.CardDetails
	Billing  shop.Address
}

type Config struct {
	BaseURL      string
	AuthorizeURL string
	Username     string
	Password     string
	Signature    string
	Currency     string
	Timeout      time.Duration
}

// Client talks to the remote payment provider. Every call is bounded by
// Config.Timeout and goes through a circuit breaker; refusals reported by the
// provider do not count against the breaker.
type Client struct {
	cfg  Config
	http *http.Client
	cb   *gobreaker.CircuitBreaker[map[string]string]
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		cb: gobreaker.NewCircuitBreaker[map[string]string](gobreaker.Settings{
			Name:    "payment-provider",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
			IsSuccessful: func(err error) bool {
				var f *Failure
				return err == nil || errors.As(err, &f)
			},
		}),
	}
}

// Begin starts an express checkout and returns the provider token.
func (c *Client) Begin(ctx context.Context, req BeginRequest) (string, error) {
	currency := req.Currency
	if currency == "" {
		currency = c.cfg.Currency
	}
	params := map[string]string{
		"paymentrequest_0_amt":          req.Amount.StringFixed(2),
		"paymentrequest_0_currencycode": currency,
		"returnurl":                     req.ReturnURL,
		"cancelurl":                     req.CancelURL,
		"noshipping":                    boolFlag(req.NoShipping),
		"allownote":                     "1",
		"reqbillingaddress":             "1",
	}
	if req.Token != "" {
		params["token"] = req.Token
	}
	resp, err := c.call(ctx, "SetExpressCheckout", params)
	if err != nil {
		return "", err
	}
	token := resp["token"]
	if token == "" {
		return "", errors.New("provider returned no token")
	}
	return token, nil
}

func (c *Client) GetDetails(ctx context.Context, token string) (*Details, error) {
	resp, err := c.call(ctx, "GetExpressCheckoutDetails", map[string]string{"token": token})
	if err != nil {
		return nil, err
	}
	d := &Details{Token: token, PayerID: resp["payerid"], Fields: resp}
	if amt := resp["paymentrequest_0_amt"]; amt != "" {
		if d.Amount, err = decimal.NewFromString(amt); err != nil {
			return nil, fmt.Errorf("parse provider amount %q: %w", amt, err)
		}
	}
	return d, nil
}

// Capture collects an authorized express payment and returns the
// transaction id.
func (c *Client) Capture(ctx context.Context, token, payerID string, amount decimal.Decimal) (string, error) {
	resp, err := c.call(ctx, "DoExpressCheckoutPayment", map[string]string{
		"token":                          token,
		"payerid":                        payerID,
		"paymentrequest_0_amt":           amount.StringFixed(2),
		"paymentrequest_0_currencycode":  c.cfg.Currency,
		"paymentrequest_0_paymentaction": "Sale",
	})
	if err != nil {
		return "", err
	}
	return resp["paymentinfo_0_transactionid"], nil
}

// Charge takes a direct card payment.
func (c *Client) Charge(ctx context.Context, req ChargeRequest) (string, error) {
	currency := req.Currency
	if currency == "" {
		currency = c.cfg.Currency
	}
	resp, err := c.call(ctx, "DoDirectPayment", map[string]string{
		"amt":            req.Amount.StringFixed(2),
		"currencycode":   currency,
		"invnum":         req.OrderKey,
		"creditcardtype": req.Card.Type,
		"acct":           req.Card.Number,
		"expdate":        fmt.Sprintf("%02d%04d", req.Card.ExpiryMonth, req.Card.ExpiryYear),
		"cvv2":           req.Card.CCV,
		"firstname":      req.Billing.FirstName,
		"lastname":       req.Billing.LastName,
		"street":         req.Billing.Street,
		"city":           req.Billing.City,
		"state":          req.Billing.State,
		"zip":            req.Billing.Postcode,
		"countrycode":    req.Billing.Country,
		"email":          req.Billing.Email,
	})
	if err != nil {
		return "", err
	}
	return resp["transactionid"], nil
}

// AuthorizeURL is where the buyer's browser goes to approve the payment.
// commit makes the provider show "Pay now" instead of "Continue".
func (c *Client) AuthorizeURL(token string, commit bool) string {
	q := url.Values{}
	q.Set("cmd", "_express-checkout")
	q.Set("token", token)
	if commit {
		q.Set("useraction", "commit")
	}
	sep := "?"
	if strings.Contains(c.cfg.AuthorizeURL, "?") {
		sep = "&"
	}
	return c.cfg.AuthorizeURL + sep + q.Encode()
}

func (c *Client) call(ctx context.Context, method string, params map[string]string) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.cb.Execute(func() (map[string]string, error) {
		return c.do(ctx, method, params)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method string, params map[string]string) (map[string]string, error) {
	body := make(map[string]string, len(params)+4)
	for k, v := range params {
		body[k] = v
	}
	body["method"] = method
	body["user"] = c.cfg.Username
	body["pwd"] = c.cfg.Password
	body["signature"] = c.cfg.Signature

	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+"/nvp", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if res.StatusCode >= 300 {
		return nil, fmt.Errorf("provider status %d", res.StatusCode)
	}

	out := map[string]string{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode provider response: %w", err)
	}
	if ack := strings.ToLower(out["ack"]); ack != "success" && ack != "successwithwarning" {
		msg := out["l_longmessage0"]
		if msg == "" {
			msg = "The payment could not be processed"
		}
		return nil, &Failure{Code: out["l_errorcode0"], Message: msg}
	}
	return out, nil
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
