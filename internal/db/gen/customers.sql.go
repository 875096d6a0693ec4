package dbgen

import (
	"context"

	"github.com/shopspring/decimal"
)

const getUser = `-- name: GetUser :one
SELECT id, name, email, user_type, company_name, company_nit, company_address, created_at
FROM users
WHERE id = $1
`

func (q *Queries) GetUser(ctx context.Context, id int64) (User, error) {
	row := q.db.QueryRow(ctx, getUser, id)
	var i User
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Email,
		&i.UserType,
		&i.CompanyName,
		&i.CompanyNit,
		&i.CompanyAddress,
		&i.CreatedAt,
	)
	return i, err
}

const listCustomerTypes = `-- name: ListCustomerTypes :many
SELECT tier, name, shipping_cost, updated_at
FROM customer_types
ORDER BY tier
`

func (q *Queries) ListCustomerTypes(ctx context.Context) ([]CustomerType, error) {
	rows, err := q.db.Query(ctx, listCustomerTypes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CustomerType
	for rows.Next() {
		var i CustomerType
		if err := rows.Scan(&i.Tier, &i.Name, &i.ShippingCost, &i.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updateShippingCost = `-- name: UpdateShippingCost :one
UPDATE customer_types
SET shipping_cost = $2, updated_at = now()
WHERE tier = $1
RETURNING tier, name, shipping_cost, updated_at
`

type UpdateShippingCostParams struct {
	Tier         string
	ShippingCost decimal.Decimal
}

func (q *Queries) UpdateShippingCost(ctx context.Context, arg UpdateShippingCostParams) (CustomerType, error) {
	row := q.db.QueryRow(ctx, updateShippingCost, arg.Tier, arg.ShippingCost)
	var i CustomerType
	err := row.Scan(&i.Tier, &i.Name, &i.ShippingCost, &i.UpdatedAt)
	return i, err
}

const listMinimumOrders = `-- name: ListMinimumOrders :many
SELECT tier, amount, updated_at
FROM minimum_orders
ORDER BY tier
`

func (q *Queries) ListMinimumOrders(ctx context.Context) ([]MinimumOrder, error) {
	rows, err := q.db.Query(ctx, listMinimumOrders)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MinimumOrder
	for rows.Next() {
		var i MinimumOrder
		if err := rows.Scan(&i.Tier, &i.Amount, &i.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getMinimumOrder = `-- name: GetMinimumOrder :one
SELECT tier, amount, updated_at
FROM minimum_orders
WHERE tier = $1
`

func (q *Queries) GetMinimumOrder(ctx context.Context, tier string) (MinimumOrder, error) {
	row := q.db.QueryRow(ctx, getMinimumOrder, tier)
	var i MinimumOrder
	err := row.Scan(&i.Tier, &i.Amount, &i.UpdatedAt)
	return i, err
}

const upsertMinimumOrder = `-- name: UpsertMinimumOrder :one
INSERT INTO minimum_orders (tier, amount)
VALUES ($1, $2)
ON CONFLICT (tier) DO UPDATE SET amount = EXCLUDED.amount, updated_at = now()
RETURNING tier, amount, updated_at
`

type UpsertMinimumOrderParams struct {
	Tier   string
	Amount int64
}

func (q *Queries) UpsertMinimumOrder(ctx context.Context, arg UpsertMinimumOrderParams) (MinimumOrder, error) {
	row := q.db.QueryRow(ctx, upsertMinimumOrder, arg.Tier, arg.Amount)
	var i MinimumOrder
	err := row.Scan(&i.Tier, &i.Amount, &i.UpdatedAt)
	return i, err
}

const deleteMinimumOrder = `-- name: DeleteMinimumOrder :execrows
DELETE FROM minimum_orders WHERE tier = $1
`

func (q *Queries) DeleteMinimumOrder(ctx context.Context, tier string) (int64, error) {
	result, err := q.db.Exec(ctx, deleteMinimumOrder, tier)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
