package shop

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CatalogRepo struct{ DB *pgxpool.Pool }

const variationColumns = `v.id, v.product_id, p.title, p.slug, v.sku,
	coalesce(v.option1,''), coalesce(v.option2,''), coalesce(v.option3,''),
	v.unit_price_cents, v.sale_price_cents, v.num_in_stock, v.can_ship, v.is_default,
	coalesce(v.image_id,'')`

// ProductBySlug returns a published product with its variations, default first.
func (r *CatalogRepo) ProductBySlug(ctx context.Context, slug string) (*Product, []Variation, error) {
	var p Product
	err := r.DB.QueryRow(ctx, `
		SELECT id, slug, title, description, published, created_at
		FROM products WHERE slug=$1 AND published`, slug).
		Scan(&p.ID, &p.Slug, &p.Title, &p.Description, &p.Published, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	rows, err := r.DB.Query(ctx, `SELECT `+variationColumns+`
		FROM variations v JOIN products p ON p.id = v.product_id
		WHERE v.product_id=$1 ORDER BY v.is_default DESC, v.id`, p.ID)
	if err != nil {
		return nil, nil, err
	}
	vs, err := scanVariations(rows)
	if err != nil {
		return nil, nil, err
	}
	return &p, vs, nil
}

// VariationsBySKU returns published variations for the given SKUs in no
// particular order; unknown SKUs are skipped.
func (r *CatalogRepo) VariationsBySKU(ctx context.Context, skus []string) ([]Variation, error) {
	if len(skus) == 0 {
		return nil, nil
	}
	rows, err := r.DB.Query(ctx, `SELECT `+variationColumns+`
		FROM variations v JOIN products p ON p.id = v.product_id
		WHERE v.sku = ANY($1) AND p.published`, skus)
	if err != nil {
		return nil, err
	}
	return scanVariations(rows)
}

func (r *CatalogRepo) VariationBySKU(ctx context.Context, sku string) (*Variation, error) {
	vs, err := r.VariationsBySKU(ctx, []string{sku})
	if err != nil {
		return nil, err
	}
	if len(vs) == 0 {
		return nil, fmt.Errorf("variation %s: %w", sku, ErrNotFound)
	}
	return &vs[0], nil
}

func scanVariations(rows pgx.Rows) ([]Variation, error) {
	defer rows.Close()
	var out []Variation
	for rows.Next() {
		var (
			v          Variation
			unit, sale *int64
			numInStock *int32
		)
		if err := rows.Scan(&v.ID, &v.ProductID, &v.ProductTitle, &v.ProductSlug, &v.SKU,
			&v.Option1, &v.Option2, &v.Option3, &unit, &sale, &numInStock, &v.CanShip,
			&v.IsDefault, &v.ImageID); err != nil {
			return nil, err
		}
		if unit != nil {
			d := FromCents(*unit)
			v.UnitPrice = &d
		}
		if sale != nil {
			d := FromCents(*sale)
			v.SalePrice = &d
		}
		if numInStock != nil {
			n := int(*numInStock)
			v.NumInStock = &n
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
