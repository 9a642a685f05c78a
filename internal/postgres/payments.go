package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/ariefcatur/khata-store/internal/orders"
)

func (q *queries) InsertPayment(ctx context.Context, p orders.Payment) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO payments(id, order_id, amount, payment_method, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.OrderID, p.Amount, p.Method, string(p.Status), p.CreatedAt)
	return err
}

func (q *queries) ListPayments(ctx context.Context, f orders.PaymentFilter) ([]orders.Payment, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if len(f.OrderIDs) > 0 {
		where = append(where, "order_id = ANY("+arg(f.OrderIDs)+")")
	}
	if !f.From.IsZero() {
		where = append(where, "created_at >= "+arg(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "created_at < "+arg(f.To))
	}
	sql := `SELECT id, order_id, amount, payment_method, status, created_at FROM payments`
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
	defer rows.Close()

	var out []orders.Payment
	for rows.Next() {
		var p orders.Payment
		if err := rows.Scan(&p.ID, &p.OrderID, &p.Amount, &p.Method, &p.Status, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
