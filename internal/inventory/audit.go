package inventory

import (
	"context"

	"github.com/ariefcatur/khata-store/internal/orders"
	"go.uber.org/zap"
)

type AuditSource interface {
	ListProducts(ctx context.Context, activeOnly bool) ([]orders.Product, error)
	HeldByProduct(ctx context.Context) (map[string]int, error)
}

// Drift is a product whose reserved counter disagrees with the sum of the
// RESERVED holds recorded for it, or whose counters break the ledger bounds.
type Drift struct {
	ProductID        string `json:"product_id"`
	Name             string `json:"name"`
	StockQuantity    int    `json:"stock_quantity"`
	ReservedQuantity int    `json:"reserved_quantity"`
	Held             int    `json:"held"`
}

func (d Drift) Difference() int { return d.ReservedQuantity - d.Held }

// Audit compares every product's counters with the recorded holds. An empty
// result means the ledger is consistent.
func (s *Service) Audit(ctx context.Context, src AuditSource) ([]Drift, error) {
	products, err := src.ListProducts(ctx, false)
	if err != nil {
		return nil, err
	}
	held, err := src.HeldByProduct(ctx)
	if err != nil {
		return nil, err
	}

	var out []Drift
	for _, p := range products {
		h := held[p.ID]
		if p.ReservedQuantity == h && p.ReservedQuantity >= 0 && p.ReservedQuantity <= p.StockQuantity {
			continue
		}
		d := Drift{
			ProductID:        p.ID,
			Name:             p.Name,
			StockQuantity:    p.StockQuantity,
			ReservedQuantity: p.ReservedQuantity,
			Held:             h,
		}
		s.log.Warn("ledger drift",
			zap.String("product_id", p.ID),
			zap.Int("reserved", p.ReservedQuantity),
			zap.Int("held", h),
			zap.Int("stock", p.StockQuantity))
		out = append(out, d)
	}
	return out, nil
}
