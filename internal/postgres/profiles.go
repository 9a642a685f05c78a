package postgres

import (
	"context"

	"github.com/ariefcatur/khata-store/internal/orders"
)

func (q *queries) UpsertProfile(ctx context.Context, p orders.Profile) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO profiles(id, full_name, phone, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		   SET full_name = EXCLUDED.full_name, phone = EXCLUDED.phone, role = EXCLUDED.role`,
		p.ID, p.FullName, p.Phone, p.Role)
	return err
}

func (q *queries) ProfilesByIDs(ctx context.Context, ids []string) (map[string]orders.Profile, error) {
	rows, err := q.db.Query(ctx, `SELECT id, full_name, phone, role FROM profiles WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]orders.Profile, len(ids))
	for rows.Next() {
		var p orders.Profile
		if err := rows.Scan(&p.ID, &p.FullName, &p.Phone, &p.Role); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}
