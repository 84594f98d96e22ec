package shop

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type DiscountRepo struct{ DB *pgxpool.Pool }

func (r *DiscountRepo) DiscountByCode(ctx context.Context, code string) (*DiscountCode, error) {
	var (
		dc          DiscountCode
		kind        string
		percent     string
		deduct      int64
		minPurchase *int64
		maxUses     *int32
	)
	err := r.DB.QueryRow(ctx, `
		SELECT id, code, kind, percent::text, deduct_cents, free_shipping, min_purchase_cents,
		       valid_from, valid_to, max_uses, active, skus
		FROM discount_codes WHERE upper(code) = upper($1)`, code).
		Scan(&dc.ID, &dc.Code, &kind, &percent, &deduct, &dc.FreeShipping, &minPurchase,
			&dc.ValidFrom, &dc.ValidTo, &maxUses, &dc.Active, &dc.SKUs)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	dc.Kind = DiscountKind(kind)
	if dc.Percent, err = decimal.NewFromString(percent); err != nil {
		return nil, err
	}
	dc.Deduct = FromCents(deduct)
	if minPurchase != nil {
		d := FromCents(*minPurchase)
		dc.MinPurchase = &d
	}
	if maxUses != nil {
		n := int(*maxUses)
		dc.MaxUses = &n
	}
	return &dc, nil
}

// CountDiscountUses counts completed orders that carried the code.
func (r *DiscountRepo) CountDiscountUses(ctx context.Context, code string) (int, error) {
	var n int
	err := r.DB.QueryRow(ctx, `
		SELECT COUNT(*) FROM orders
		WHERE upper(discount_code) = upper($1) AND status = 'complete'`, code).Scan(&n)
	return n, err
}

// AnyActive reports whether the cart page should offer a discount field.
func (r *DiscountRepo) AnyActive(ctx context.Context) (bool, error) {
	var ok bool
	err := r.DB.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM discount_codes
		WHERE active AND (valid_to IS NULL OR valid_to > now()))`).Scan(&ok)
	return ok, err
}
