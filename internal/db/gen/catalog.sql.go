package dbgen

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const getProduct = `-- name: GetProduct :one
SELECT id, name, category, description, active, promotion, created_at
FROM products
WHERE id = $1
`

func (q *Queries) GetProduct(ctx context.Context, id int64) (Product, error) {
	row := q.db.QueryRow(ctx, getProduct, id)
	var i Product
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Category,
		&i.Description,
		&i.Active,
		&i.Promotion,
		&i.CreatedAt,
	)
	return i, err
}

const listActiveProducts = `-- name: ListActiveProducts :many
SELECT id, name, category, description, active, promotion, created_at
FROM products
WHERE active
ORDER BY promotion DESC, name ASC
`

func (q *Queries) ListActiveProducts(ctx context.Context) ([]Product, error) {
	rows, err := q.db.Query(ctx, listActiveProducts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Product
	for rows.Next() {
		var i Product
		if err := rows.Scan(
			&i.ID,
			&i.Name,
			&i.Category,
			&i.Description,
			&i.Active,
			&i.Promotion,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listCatalogRows = `-- name: ListCatalogRows :many
SELECT v.product_id, v.id AS variation_id, v.quality, v.active AS variation_active,
       p.id AS presentation_id, p.label, p.stock,
       p.price_home, p.price_supermarket, p.price_restaurant, p.price_fruver
FROM product_variations v
LEFT JOIN presentations p ON p.variation_id = v.id
WHERE v.product_id = ANY($1::bigint[])
ORDER BY v.product_id, v.id, p.id
`

type ListCatalogRowsRow struct {
	ProductID        int64
	VariationID      int64
	Quality          string
	VariationActive  bool
	PresentationID   pgtype.Int8
	Label            pgtype.Text
	Stock            pgtype.Int4
	PriceHome        pgtype.Int8
	PriceSupermarket pgtype.Int8
	PriceRestaurant  pgtype.Int8
	PriceFruver      pgtype.Int8
}

// ListCatalogRows reads the live variation/presentation rows for the given products.
func (q *Queries) ListCatalogRows(ctx context.Context, productIds []int64) ([]ListCatalogRowsRow, error) {
	rows, err := q.db.Query(ctx, listCatalogRows, productIds)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListCatalogRowsRow
	for rows.Next() {
		var i ListCatalogRowsRow
		if err := rows.Scan(
			&i.ProductID,
			&i.VariationID,
			&i.Quality,
			&i.VariationActive,
			&i.PresentationID,
			&i.Label,
			&i.Stock,
			&i.PriceHome,
			&i.PriceSupermarket,
			&i.PriceRestaurant,
			&i.PriceFruver,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getSelection = `-- name: GetSelection :one
SELECT pr.id AS product_id, pr.name AS product_name, pr.active AS product_active,
       v.id AS variation_id, v.quality, v.active AS variation_active,
       p.id AS presentation_id, p.label, p.stock,
       p.price_home, p.price_supermarket, p.price_restaurant, p.price_fruver
FROM presentations p
JOIN product_variations v ON v.id = p.variation_id
JOIN products pr ON pr.id = v.product_id
WHERE pr.id = $1 AND v.id = $2 AND p.id = $3
`

type GetSelectionParams struct {
	ProductID      int64
	VariationID    int64
	PresentationID int64
}

type GetSelectionRow struct {
	ProductID        int64
	ProductName      string
	ProductActive    bool
	VariationID      int64
	Quality          string
	VariationActive  bool
	PresentationID   int64
	Label            string
	Stock            int32
	PriceHome        pgtype.Int8
	PriceSupermarket pgtype.Int8
	PriceRestaurant  pgtype.Int8
	PriceFruver      pgtype.Int8
}

func (q *Queries) GetSelection(ctx context.Context, arg GetSelectionParams) (GetSelectionRow, error) {
	row := q.db.QueryRow(ctx, getSelection, arg.ProductID, arg.VariationID, arg.PresentationID)
	var i GetSelectionRow
	err := row.Scan(
		&i.ProductID,
		&i.ProductName,
		&i.ProductActive,
		&i.VariationID,
		&i.Quality,
		&i.VariationActive,
		&i.PresentationID,
		&i.Label,
		&i.Stock,
		&i.PriceHome,
		&i.PriceSupermarket,
		&i.PriceRestaurant,
		&i.PriceFruver,
	)
	return i, err
}

const listExistingProductIDs = `-- name: ListExistingProductIDs :many
SELECT id FROM products WHERE id = ANY($1::bigint[])
`

func (q *Queries) ListExistingProductIDs(ctx context.Context, ids []int64) ([]int64, error) {
	rows, err := q.db.Query(ctx, listExistingProductIDs, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		items = append(items, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
