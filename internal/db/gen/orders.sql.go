package dbgen

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, user_id, order_date, status_id, tier, total, shipping_cost, shipping_rate,
       requires_electronic_invoice, company_name, company_nit, company_address, notes, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (Order, error) {
	var i Order
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.OrderDate,
		&i.StatusID,
		&i.Tier,
		&i.Total,
		&i.ShippingCost,
		&i.ShippingRate,
		&i.RequiresElectronicInvoice,
		&i.CompanyName,
		&i.CompanyNit,
		&i.CompanyAddress,
		&i.Notes,
		&i.UpdatedAt,
	)
	return i, err
}

func scanOrderItem(row scanner) (OrderItem, error) {
	var i OrderItem
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.ProductID,
		&i.VariationID,
		&i.PresentationID,
		&i.Presentation,
		&i.Quality,
		&i.Quantity,
		&i.Price,
	)
	return i, err
}

const createOrder = `-- name: CreateOrder :one
INSERT INTO orders (user_id, status_id, tier, total, shipping_cost, shipping_rate,
                    requires_electronic_invoice, company_name, company_nit, company_address, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	UserID                    pgtype.Int8
	StatusID                  int16
	Tier                      string
	Total                     int64
	ShippingCost              int64
	ShippingRate              decimal.Decimal
	RequiresElectronicInvoice bool
	CompanyName               pgtype.Text
	CompanyNit                pgtype.Text
	CompanyAddress            pgtype.Text
	Notes                     pgtype.Text
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.UserID,
		arg.StatusID,
		arg.Tier,
		arg.Total,
		arg.ShippingCost,
		arg.ShippingRate,
		arg.RequiresElectronicInvoice,
		arg.CompanyName,
		arg.CompanyNit,
		arg.CompanyAddress,
		arg.Notes,
	)
	return scanOrder(row)
}

const createOrderItem = `-- name: CreateOrderItem :one
INSERT INTO order_items (order_id, product_id, variation_id, presentation_id, presentation, quality, quantity, price)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, order_id, product_id, variation_id, presentation_id, presentation, quality, quantity, price
`

type CreateOrderItemParams struct {
	OrderID        int64
	ProductID      int64
	VariationID    int64
	PresentationID int64
	Presentation   string
	Quality        string
	Quantity       int32
	Price          int64
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, createOrderItem,
		arg.OrderID,
		arg.ProductID,
		arg.VariationID,
		arg.PresentationID,
		arg.Presentation,
		arg.Quality,
		arg.Quantity,
		arg.Price,
	)
	return scanOrderItem(row)
}

const getOrder = `-- name: GetOrder :one
SELECT ` + orderColumns + `
FROM orders
WHERE id = $1
`

func (q *Queries) GetOrder(ctx context.Context, id int64) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

const listOrdersByUser = `-- name: ListOrdersByUser :many
SELECT ` + orderColumns + `
FROM orders
WHERE user_id = $1
ORDER BY order_date DESC, id DESC
LIMIT $2 OFFSET $3
`

type ListOrdersByUserParams struct {
	UserID int64
	Limit  int32
	Offset int32
}

func (q *Queries) ListOrdersByUser(ctx context.Context, arg ListOrdersByUserParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrdersByUser, arg.UserID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Order
	for rows.Next() {
		i, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countOrdersByUserExcludingStatus = `-- name: CountOrdersByUserExcludingStatus :one
SELECT count(*) FROM orders WHERE user_id = $1 AND status_id <> $2
`

type CountOrdersByUserExcludingStatusParams struct {
	UserID   int64
	StatusID int16
}

func (q *Queries) CountOrdersByUserExcludingStatus(ctx context.Context, arg CountOrdersByUserExcludingStatusParams) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countOrdersByUserExcludingStatus, arg.UserID, arg.StatusID).Scan(&count)
	return count, err
}

const listOrders = `-- name: ListOrders :many
SELECT ` + orderColumns + `
FROM orders
WHERE ($1::smallint IS NULL OR status_id = $1::smallint)
ORDER BY order_date DESC, id DESC
LIMIT $2 OFFSET $3
`

type ListOrdersParams struct {
	StatusID pgtype.Int2
	Limit    int32
	Offset   int32
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrders, arg.StatusID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Order
	for rows.Next() {
		i, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countOrders = `-- name: CountOrders :one
SELECT count(*) FROM orders WHERE ($1::smallint IS NULL OR status_id = $1::smallint)
`

func (q *Queries) CountOrders(ctx context.Context, statusID pgtype.Int2) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countOrders, statusID).Scan(&count)
	return count, err
}

const listOrdersByStatus = `-- name: ListOrdersByStatus :many
SELECT ` + orderColumns + `
FROM orders
WHERE status_id = $1
ORDER BY id
`

func (q *Queries) ListOrdersByStatus(ctx context.Context, statusID int16) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrdersByStatus, statusID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Order
	for rows.Next() {
		i, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listOrderItemsByOrders = `-- name: ListOrderItemsByOrders :many
SELECT id, order_id, product_id, variation_id, presentation_id, presentation, quality, quantity, price
FROM order_items
WHERE order_id = ANY($1::bigint[])
ORDER BY order_id, id
`

func (q *Queries) ListOrderItemsByOrders(ctx context.Context, orderIds []int64) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItemsByOrders, orderIds)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderItem
	for rows.Next() {
		i, err := scanOrderItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updatePendingOrderItemPrice = `-- name: UpdatePendingOrderItemPrice :execrows
UPDATE order_items oi
SET price = $6
FROM orders o
WHERE oi.id = $1
  AND oi.order_id = $2
  AND oi.product_id = $3
  AND oi.variation_id = $4
  AND oi.presentation_id = $5
  AND o.id = oi.order_id
  AND o.status_id = 1
`

type UpdatePendingOrderItemPriceParams struct {
	ID             int64
	OrderID        int64
	ProductID      int64
	VariationID    int64
	PresentationID int64
	Price          int64
}

// UpdatePendingOrderItemPrice only touches items whose order is still pending.
func (q *Queries) UpdatePendingOrderItemPrice(ctx context.Context, arg UpdatePendingOrderItemPriceParams) (int64, error) {
	result, err := q.db.Exec(ctx, updatePendingOrderItemPrice,
		arg.ID,
		arg.OrderID,
		arg.ProductID,
		arg.VariationID,
		arg.PresentationID,
		arg.Price,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const updateOrderStatus = `-- name: UpdateOrderStatus :one
UPDATE orders
SET status_id = $3, updated_at = now()
WHERE id = $1 AND status_id = $2
RETURNING ` + orderColumns

type UpdateOrderStatusParams struct {
	ID         int64
	FromStatus int16
	ToStatus   int16
}

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderStatus, arg.ID, arg.FromStatus, arg.ToStatus))
}

const countOrdersByUser = `-- name: CountOrdersByUser :one
SELECT count(*) FROM orders WHERE user_id = $1
`

func (q *Queries) CountOrdersByUser(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countOrdersByUser, userID).Scan(&count)
	return count, err
}
