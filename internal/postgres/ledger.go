package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/khata-store/internal/orders"
	"github.com/jackc/pgx/v5"
)

func (q *queries) TryReserve(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return &orders.ValidationError{Field: "qty", Msg: "must be positive"}
	}
	tag, err := q.db.Exec(ctx, `
		UPDATE products
		   SET reserved_quantity = reserved_quantity + $2, updated_at = now()
		 WHERE id = $1 AND stock_quantity - reserved_quantity >= $2`,
		productID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var name string
	var available int
	err = q.db.QueryRow(ctx, `SELECT name, stock_quantity - reserved_quantity FROM products WHERE id = $1`, productID).
		Scan(&name, &available)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", orders.ErrProductNotFound, productID)
	}
	if err != nil {
		return err
	}
	return &orders.InsufficientStockError{ProductID: productID, ProductName: name, Requested: qty, Available: available}
}

func (q *queries) Release(ctx context.Context, productID string, qty int) (int, error) {
	if qty <= 0 {
		return 0, nil
	}
	var before int
	err := q.db.QueryRow(ctx, `
		WITH cur AS (
			SELECT reserved_quantity FROM products WHERE id = $1 FOR UPDATE
		)
		UPDATE products p
		   SET reserved_quantity = GREATEST(p.reserved_quantity - $2, 0), updated_at = now()
		  FROM cur
		 WHERE p.id = $1
		RETURNING cur.reserved_quantity`,
		productID, qty).Scan(&before)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", orders.ErrProductNotFound, productID)
	}
	if err != nil {
		return 0, err
	}
	return min(before, qty), nil
}

func (q *queries) Commit(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return nil
	}
	tag, err := q.db.Exec(ctx, `
		UPDATE products
		   SET stock_quantity = stock_quantity - $2,
		       reserved_quantity = reserved_quantity - $2,
		       updated_at = now()
		 WHERE id = $1 AND reserved_quantity >= $2 AND stock_quantity >= $2`,
		productID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	ie := &orders.InconsistentStateError{ProductID: productID, Op: "commit", Qty: qty}
	err = q.db.QueryRow(ctx, `SELECT stock_quantity, reserved_quantity FROM products WHERE id = $1`, productID).
		Scan(&ie.Stock, &ie.Reserved)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", orders.ErrProductNotFound, productID)
	}
	if err != nil {
		return err
	}
	return ie
}
