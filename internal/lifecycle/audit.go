package lifecycle

import (
	"context"

	"github.com/ariefcatur/khata-store/internal/auth"
	"github.com/ariefcatur/khata-store/internal/inventory"
	"github.com/ariefcatur/khata-store/internal/orders"
)

// AuditInventory reports products whose reserved counter disagrees with the
// recorded holds.
func (c *Controller) AuditInventory(ctx context.Context, who auth.Identity) ([]inventory.Drift, error) {
	if err := who.RequireShopkeeper(); err != nil {
		return nil, err
	}
	var out []inventory.Drift
	err := c.store.WithTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		var err error
		out, err = c.inv.Audit(ctx, tx)
		return err
	})
	return out, err
}
