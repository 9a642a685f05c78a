package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/khata-store/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, customer_id, status, total_amount, expires_at, created_at, updated_at`

func scanOrder(row pgx.Row) (orders.Order, error) {
	var o orders.Order
	err := row.Scan(&o.ID, &o.CustomerID, &o.Status, &o.TotalAmount, &o.ExpiresAt, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func (q *queries) InsertOrder(ctx context.Context, o orders.Order) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO orders(id, customer_id, status, total_amount, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		o.ID, o.CustomerID, string(o.Status), o.TotalAmount, o.ExpiresAt, o.CreatedAt)
	if err != nil {
		return err
	}
	for _, it := range o.Items {
		_, err = q.db.Exec(ctx, `
			INSERT INTO order_items(id, order_id, product_id, quantity, price_at_time)
			VALUES ($1, $2, $3, $4, $5)`,
			it.ID, o.ID, it.ProductID, it.Quantity, it.PriceAtTime)
		if err != nil {
			return err
		}
	}
	return nil
}

func (q *queries) GetOrder(ctx context.Context, id string) (orders.Order, error) {
	return q.loadOrder(ctx, id, false)
}

func (q *queries) LockOrder(ctx context.Context, id string) (orders.Order, error) {
	return q.loadOrder(ctx, id, true)
}

func (q *queries) loadOrder(ctx context.Context, id string, lock bool) (orders.Order, error) {
	sql := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	o, err := scanOrder(q.db.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Order{}, fmt.Errorf("%w: %s", orders.ErrOrderNotFound, id)
	}
	if err != nil {
		return orders.Order{}, err
	}
	list := []orders.Order{o}
	if err := q.attach(ctx, list); err != nil {
		return orders.Order{}, err
	}
	return list[0], nil
}

// attach fills items and paid amounts for a page of orders.
func (q *queries) attach(ctx context.Context, list []orders.Order) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]string, len(list))
	idx := make(map[string]int, len(list))
	for i, o := range list {
		ids[i] = o.ID
		idx[o.ID] = i
		list[i].PaidAmount = decimal.Zero
	}

	rows, err := q.db.Query(ctx, `
		SELECT i.id, i.order_id, i.product_id, p.name, i.quantity, i.price_at_time
		  FROM order_items i
		  JOIN products p ON p.id = i.product_id
		 WHERE i.order_id = ANY($1)
		 ORDER BY i.created_at, i.id`, ids)
	if err != nil {
		return err
	}
	for rows.Next() {
		var it orders.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.PriceAtTime); err != nil {
			rows.Close()
			return err
		}
		i := idx[it.OrderID]
		list[i].Items = append(list[i].Items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = q.db.Query(ctx, `
		SELECT order_id, SUM(amount)
		  FROM payments
		 WHERE order_id = ANY($1) AND status = 'completed'
		 GROUP BY order_id`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var paid decimal.Decimal
		if err := rows.Scan(&id, &paid); err != nil {
			return err
		}
		list[idx[id]].PaidAmount = paid
	}
	return rows.Err()
}

func (q *queries) ListOrders(ctx context.Context, f orders.OrderFilter) ([]orders.Order, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.CustomerID != "" {
		where = append(where, "customer_id = "+arg(f.CustomerID))
	}
	if len(f.Statuses) > 0 {
		where = append(where, "status = ANY("+arg(statusStrings(f.Statuses))+")")
	}
	if len(f.ExcludeStatuses) > 0 {
		where = append(where, "NOT (status = ANY("+arg(statusStrings(f.ExcludeStatuses))+"))")
	}
	if !f.CreatedFrom.IsZero() {
		where = append(where, "created_at >= "+arg(f.CreatedFrom))
	}
	if !f.CreatedTo.IsZero() {
		where = append(where, "created_at < "+arg(f.CreatedTo))
	}

	sql := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY created_at DESC, id`
	if f.Limit > 0 {
		sql += ` LIMIT ` + arg(f.Limit)
	}

	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	var out []orders.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := q.attach(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func statusStrings(ss []orders.Status) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}

func (q *queries) UpdateStatusIf(ctx context.Context, id string, from, to orders.Status, at time.Time) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE orders SET status = $3, updated_at = $4
		 WHERE id = $1 AND status = $2`,
		id, string(from), string(to), at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (q *queries) ExpiredPendingIDs(ctx context.Context, now time.Time, limit int) ([]string, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id FROM orders
		 WHERE status = 'pending' AND expires_at < $1
		 ORDER BY expires_at, id
		 LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (q *queries) UpdateItemQuantity(ctx context.Context, itemID string, qty int) error {
	tag, err := q.db.Exec(ctx, `UPDATE order_items SET quantity = $2 WHERE id = $1`, itemID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", orders.ErrItemNotFound, itemID)
	}
	return nil
}

func (q *queries) DeleteItem(ctx context.Context, itemID string) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM order_items WHERE id = $1`, itemID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", orders.ErrItemNotFound, itemID)
	}
	return nil
}

func (q *queries) SetTotal(ctx context.Context, orderID string, total decimal.Decimal, at time.Time) error {
	tag, err := q.db.Exec(ctx, `UPDATE orders SET total_amount = $2, updated_at = $3 WHERE id = $1`, orderID, total, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", orders.ErrOrderNotFound, orderID)
	}
	return nil
}
