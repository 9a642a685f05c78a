package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/khata-store/internal/orders"
	"github.com/jackc/pgx/v5"
)

const productColumns = `id, name, price, is_active, stock_quantity, reserved_quantity, created_at, updated_at`

func scanProduct(row pgx.Row) (orders.Product, error) {
	var p orders.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.IsActive, &p.StockQuantity, &p.ReservedQuantity, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (q *queries) GetProduct(ctx context.Context, id string) (orders.Product, error) {
	p, err := scanProduct(q.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Product{}, fmt.Errorf("%w: %s", orders.ErrProductNotFound, id)
	}
	return p, err
}

func (q *queries) ProductsByIDs(ctx context.Context, ids []string) (map[string]orders.Product, error) {
	rows, err := q.db.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]orders.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (q *queries) ListProducts(ctx context.Context, activeOnly bool) ([]orders.Product, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+productColumns+` FROM products
		 WHERE NOT $1 OR is_active
		 ORDER BY name, id`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (q *queries) CreateProduct(ctx context.Context, p orders.Product) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO products(id, name, price, is_active, stock_quantity, reserved_quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $6)`,
		p.ID, p.Name, p.Price, p.IsActive, p.StockQuantity, p.CreatedAt)
	return err
}

func (q *queries) UpdateProduct(ctx context.Context, p orders.Product) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE products
		   SET name = $2, price = $3, is_active = $4, stock_quantity = $5, updated_at = $6
		 WHERE id = $1 AND reserved_quantity <= $5`,
		p.ID, p.Name, p.Price, p.IsActive, p.StockQuantity, p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var reserved int
	err = q.db.QueryRow(ctx, `SELECT reserved_quantity FROM products WHERE id = $1`, p.ID).Scan(&reserved)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", orders.ErrProductNotFound, p.ID)
	}
	if err != nil {
		return err
	}
	return &orders.ValidationError{
		Field: "stock_quantity",
		Msg:   fmt.Sprintf("cannot be below reserved quantity %d", reserved),
	}
}

func (q *queries) DeleteProduct(ctx context.Context, id string) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: %s", orders.ErrProductInUse, id)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", orders.ErrProductNotFound, id)
	}
	return nil
}
