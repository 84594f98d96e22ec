package checkout

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ariefcatur/go-shop-checkout/internal/shop"
)

// ErrTotalMismatch is returned by the express flow when the cart total moved
// after the provider authorized a different amount.
var ErrTotalMismatch = errors.New("cart total does not match the authorized total")

var errCheckoutBusy = NewCheckoutError("Your order is already being processed")

// CheckoutError is the only failure a handler or the payment provider hands
// back to the customer. Message is shown as-is.
type CheckoutError struct {
	Message string
	Err     error
}

func (e *CheckoutError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *CheckoutError) Unwrap() error { return e.Err }

func NewCheckoutError(msg string) *CheckoutError { return &CheckoutError{Message: msg} }

// AsCheckoutError converts any failure into a *CheckoutError, keeping an
// existing one intact. fallback is used as the customer message otherwise.
func AsCheckoutError(err error, fallback string) *CheckoutError {
	if err == nil {
		return nil
	}
	var ce *CheckoutError
	if errors.As(err, &ce) {
		return ce
	}
	if errors.Is(err, shop.ErrOutOfStock) {
		return &CheckoutError{Message: "Some items in your cart are no longer in stock", Err: err}
	}
	return &CheckoutError{Message: fallback, Err: err}
}

// ValidationError maps form field names to messages. The empty key holds
// form-wide messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			parts = append(parts, e.Fields[k])
			continue
		}
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func messages(errs []*CheckoutError) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Message)
	}
	return out
}
