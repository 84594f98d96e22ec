package shop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DiscountSource looks up codes and how often completed orders used them.
type DiscountSource interface {
	DiscountByCode(ctx context.Context, code string) (*DiscountCode, error)
	CountDiscountUses(ctx context.Context, code string) (int, error)
}

type DiscountEngine struct {
	Codes DiscountSource
	Now   func() time.Time
}

func NewDiscountEngine(codes DiscountSource) *DiscountEngine {
	return &DiscountEngine{Codes: codes, Now: time.Now}
}

// Validate checks the code against the cart contents and its validity window.
func (e *DiscountEngine) Validate(ctx context.Context, code string, cart *Cart) (*DiscountCode, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrInvalidCode
	}
	dc, err := e.Codes.DiscountByCode(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCode
	}
	if err != nil {
		return nil, fmt.Errorf("lookup discount %q: %w", code, err)
	}
	if !dc.Active {
		return nil, ErrInvalidCode
	}
	now := e.now()
	if (dc.ValidFrom != nil && now.Before(*dc.ValidFrom)) || (dc.ValidTo != nil && now.After(*dc.ValidTo)) {
		return nil, ErrExpired
	}
	if dc.MinPurchase != nil && cart.ItemTotal.LessThan(*dc.MinPurchase) {
		return nil, ErrInvalidCode
	}
	if len(dc.SKUs) > 0 && eligibleTotal(dc, cart).IsZero() {
		return nil, ErrInvalidCode
	}
	if dc.MaxUses != nil {
		used, err := e.Codes.CountDiscountUses(ctx, dc.Code)
		if err != nil {
			return nil, fmt.Errorf("count discount uses %q: %w", code, err)
		}
		if used >= *dc.MaxUses {
			return nil, ErrUsageLimitExceeded
		}
	}
	return dc, nil
}

// Apply records the discount on the cart. The amount is derived from the
// current lines each time, so applying twice gives the same total.
func (e *DiscountEngine) Apply(cart *Cart, dc *DiscountCode) {
	cart.Recalculate()
	eligible := eligibleTotal(dc, cart)
	amount := decimal.Zero
	switch dc.Kind {
	case DiscountPercentage:
		amount = eligible.Mul(dc.Percent).Div(decimal.NewFromInt(100)).Round(2)
	case DiscountFixed:
		amount = decimal.Min(dc.Deduct, eligible)
	case DiscountFreeShipping:
	}
	cart.DiscountCode = dc.Code
	cart.DiscountTotal = amount
	cart.FreeShipping = dc.FreeShipping || dc.Kind == DiscountFreeShipping
	cart.Recalculate()
}

func (e *DiscountEngine) Clear(cart *Cart) {
	cart.DiscountCode = ""
	cart.DiscountTotal = decimal.Zero
	cart.FreeShipping = false
	cart.Recalculate()
}

// Refresh revalidates whatever code the cart carries and reapplies it,
// dropping it when it no longer holds. It returns the validation failure
// for a dropped code so callers can tell the customer.
func (e *DiscountEngine) Refresh(ctx context.Context, cart *Cart) error {
	if cart.DiscountCode == "" {
		e.Clear(cart)
		return nil
	}
	dc, err := e.Validate(ctx, cart.DiscountCode, cart)
	if err != nil {
		e.Clear(cart)
		if isDiscountRejection(err) {
			return err
		}
		return fmt.Errorf("refresh discount: %w", err)
	}
	e.Apply(cart, dc)
	return nil
}

func (e *DiscountEngine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func isDiscountRejection(err error) bool {
	return errors.Is(err, ErrInvalidCode) || errors.Is(err, ErrExpired) || errors.Is(err, ErrUsageLimitExceeded)
}

// IsDiscountRejection reports whether err is a customer-facing discount failure.
func IsDiscountRejection(err error) bool { return isDiscountRejection(err) }

func eligibleTotal(dc *DiscountCode, cart *Cart) decimal.Decimal {
	if len(dc.SKUs) == 0 {
		return cart.ItemTotal
	}
	allowed := make(map[string]bool, len(dc.SKUs))
	for _, s := range dc.SKUs {
		allowed[s] = true
	}
	total := decimal.Zero
	for _, l := range cart.Lines {
		if allowed[l.SKU] {
			total = total.Add(l.Subtotal())
		}
	}
	return total
}
