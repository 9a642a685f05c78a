package postgres

import (
	"context"

	"github.com/ariefcatur/khata-store/internal/orders"
)

func (q *queries) HeldReservations(ctx context.Context, orderID string) ([]orders.Reservation, error) {
	rows, err := q.db.Query(ctx, `
		SELECT order_id, product_id, qty, status, updated_at
		  FROM reservations
		 WHERE order_id = $1 AND status = 'RESERVED'
		 ORDER BY product_id
		   FOR UPDATE`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.Reservation
	for rows.Next() {
		var r orders.Reservation
		if err := rows.Scan(&r.OrderID, &r.ProductID, &r.Qty, &r.Status, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AddHold upserts the hold row. A hold that drops to zero is marked RELEASED
// so it no longer counts as held.
func (q *queries) AddHold(ctx context.Context, orderID, productID string, delta int) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO reservations(order_id, product_id, qty, status)
		VALUES ($1, $2, GREATEST($3, 0), 'RESERVED')
		ON CONFLICT (order_id, product_id) DO UPDATE
		   SET qty = GREATEST(reservations.qty + $3, 0),
		       status = CASE WHEN reservations.qty + $3 > 0 THEN 'RESERVED' ELSE 'RELEASED' END,
		       updated_at = now()`,
		orderID, productID, delta)
	return err
}

func (q *queries) SettleHolds(ctx context.Context, orderID string, to orders.ReservationStatus) (int, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE reservations SET status = $2, updated_at = now()
		 WHERE order_id = $1 AND status = 'RESERVED'`,
		orderID, string(to))
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (q *queries) HeldByProduct(ctx context.Context) (map[string]int, error) {
	rows, err := q.db.Query(ctx, `
		SELECT product_id, SUM(qty)::int
		  FROM reservations
		 WHERE status = 'RESERVED'
		 GROUP BY product_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}
