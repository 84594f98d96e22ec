package shop

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OrderRepo struct{ DB *pgxpool.Pool }

// CreateDraft inserts the order and its item snapshot with status draft and
// fills in the generated ids.
func (r *OrderRepo) CreateDraft(ctx context.Context, o *Order) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var userID *string
	if o.UserID != "" {
		userID = &o.UserID
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO orders(key, session_id, user_id, status, express, billing_detail, shipping_detail,
		                   additional_instructions, item_total_cents, discount_code, discount_total_cents,
		                   shipping_type, shipping_total_cents, tax_type, tax_total_cents, total_cents,
		                   transaction_id, created_at)
		VALUES ($1,$2,$3,'draft',$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,'',$16)
		RETURNING id`,
		o.Key, o.SessionID, userID, o.Express, o.Billing, o.Shipping, o.AdditionalInstructions,
		Cents(o.ItemTotal), o.DiscountCode, Cents(o.DiscountTotal), o.ShippingType,
		Cents(o.ShippingTotal), o.TaxType, Cents(o.TaxTotal), Cents(o.Total), o.CreatedAt,
	).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.ID
		if err := tx.QueryRow(ctx, `
			INSERT INTO order_items(order_id, sku, description, quantity, unit_price_cents, total_price_cents)
			VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
			o.ID, it.SKU, it.Description, it.Quantity, Cents(it.UnitPrice), Cents(it.TotalPrice),
		).Scan(&it.ID); err != nil {
			return fmt.Errorf("insert order item %s: %w", it.SKU, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	o.Status = StatusDraft
	return nil
}

// Delete removes a draft order. Completed orders are never deleted.
func (r *OrderRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.DB.Exec(ctx, `DELETE FROM orders WHERE id=$1 AND status='draft'`, id)
	return err
}

// Complete flips a draft order to complete and takes its items out of stock
// in the same transaction. It returns false without touching stock when the
// order was already complete. A line that cannot be covered aborts the whole
// transaction with a *StockError.
func (r *OrderRepo) Complete(ctx context.Context, id int64, transactionID string) (bool, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `
		UPDATE orders SET status='complete', transaction_id=$2
		WHERE id=$1 AND status='draft'`, id, transactionID)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() != 1 {
		return false, nil
	}

	rows, err := tx.Query(ctx, `SELECT sku, quantity FROM order_items WHERE order_id=$1`, id)
	if err != nil {
		return false, err
	}
	type line struct {
		sku string
		qty int
	}
	var lines []line
	for rows.Next() {
		var l line
		if err := rows.Scan(&l.sku, &l.qty); err != nil {
			rows.Close()
			return false, err
		}
		lines = append(lines, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return false, err
	}

	for _, l := range lines {
		ct, err := tx.Exec(ctx, `
			UPDATE variations SET num_in_stock = num_in_stock - $2
			WHERE sku=$1 AND (num_in_stock IS NULL OR num_in_stock >= $2)`, l.sku, l.qty)
		if err != nil {
			return false, err
		}
		if ct.RowsAffected() != 1 {
			var available *int32
			_ = tx.QueryRow(ctx, `SELECT num_in_stock FROM variations WHERE sku=$1`, l.sku).Scan(&available)
			se := &StockError{SKU: l.sku, Required: l.qty}
			if available != nil {
				se.Available = int(*available)
			}
			return false, se
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (r *OrderRepo) GetByID(ctx context.Context, id int64) (*Order, error) {
	return r.get(ctx, `WHERE o.id=$1`, id)
}

func (r *OrderRepo) GetByKey(ctx context.Context, key string) (*Order, error) {
	return r.get(ctx, `WHERE o.key=$1`, key)
}

// GetForUser returns the order if it belongs to the session or to the
// signed-in user.
func (r *OrderRepo) GetForUser(ctx context.Context, id int64, sessionID, userID string) (*Order, error) {
	return r.get(ctx, `WHERE o.id=$1 AND (o.session_id=$2 OR ($3 <> '' AND o.user_id=$3))`, id, sessionID, userID)
}

func (r *OrderRepo) get(ctx context.Context, where string, args ...any) (*Order, error) {
	var (
		o      Order
		status string
		userID *string
	)
	var item, discount, shipping, tax, total int64
	err := r.DB.QueryRow(ctx, `
		SELECT o.id, o.key, o.session_id, o.user_id, o.status, o.express, o.billing_detail,
		       o.shipping_detail, o.additional_instructions, o.item_total_cents, o.discount_code,
		       o.discount_total_cents, o.shipping_type, o.shipping_total_cents, o.tax_type,
		       o.tax_total_cents, o.total_cents, o.transaction_id, o.created_at
		FROM orders o `+where, args...).
		Scan(&o.ID, &o.Key, &o.SessionID, &userID, &status, &o.Express, &o.Billing, &o.Shipping,
			&o.AdditionalInstructions, &item, &o.DiscountCode, &discount, &o.ShippingType,
			&shipping, &o.TaxType, &tax, &total, &o.TransactionID, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if userID != nil {
		o.UserID = *userID
	}
	o.Status = Status(status)
	o.ItemTotal, o.DiscountTotal = FromCents(item), FromCents(discount)
	o.ShippingTotal, o.TaxTotal, o.Total = FromCents(shipping), FromCents(tax), FromCents(total)

	rows, err := r.DB.Query(ctx, `
		SELECT i.id, i.order_id, i.sku, i.description, i.quantity, i.unit_price_cents,
		       i.total_price_cents, coalesce(p.title, '')
		FROM order_items i
		LEFT JOIN variations v ON v.sku = i.sku
		LEFT JOIN products p ON p.id = v.product_id
		WHERE i.order_id=$1 ORDER BY i.id`, o.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			it          OrderItem
			unit, total int64
		)
		if err := rows.Scan(&it.ID, &it.OrderID, &it.SKU, &it.Description, &it.Quantity,
			&unit, &total, &it.Name); err != nil {
			return nil, err
		}
		it.UnitPrice, it.TotalPrice = FromCents(unit), FromCents(total)
		o.Items = append(o.Items, it)
	}
	return &o, rows.Err()
}

// ListForUser returns a page of the user's orders, newest first.
func (r *OrderRepo) ListForUser(ctx context.Context, userID string, limit, offset int) ([]OrderSummary, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT o.id, o.key, o.status, o.total_cents, coalesce(sum(i.quantity), 0), o.created_at
		FROM orders o LEFT JOIN order_items i ON i.order_id = o.id
		WHERE o.user_id=$1
		GROUP BY o.id
		ORDER BY o.created_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderSummary
	for rows.Next() {
		var (
			s      OrderSummary
			status string
			total  int64
		)
		if err := rows.Scan(&s.ID, &s.Key, &status, &total, &s.QuantityTotal, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.Status, s.Total = Status(status), FromCents(total)
		out = append(out, s)
	}
	return out, rows.Err()
}

// AssignUser moves an order from an anonymous session to a user account.
func (r *OrderRepo) AssignUser(ctx context.Context, id int64, userID string) error {
	ct, err := r.DB.Exec(ctx, `UPDATE orders SET user_id=$2 WHERE id=$1`, id, userID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
