package lifecycle

import (
	"context"
	"fmt"

	"github.com/ariefcatur/khata-store/internal/auth"
	"github.com/ariefcatur/khata-store/internal/orders"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PlaceOrder prices the cart from the catalog, stores the order as pending
// and reserves every line, all in one transaction. When any line cannot be
// reserved nothing is stored and the error names the product.
func (c *Controller) PlaceOrder(ctx context.Context, who auth.Identity, items []orders.ItemQty) (orders.Order, error) {
	if err := who.RequireUser(); err != nil {
		return orders.Order{}, err
	}
	items, err := orders.NormalizeItems(items)
	if err != nil {
		return orders.Order{}, err
	}

	var o orders.Order
	err = c.store.WithTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		products, err := tx.ProductsByIDs(ctx, orders.ProductIDs(items))
		if err != nil {
			return err
		}

		now := c.now()
		o = orders.Order{
			ID:          uuid.NewString(),
			CustomerID:  who.UserID,
			Status:      orders.StatusPending,
			TotalAmount: decimal.Zero,
			PaidAmount:  decimal.Zero,
			ExpiresAt:   now.Add(c.pendingTTL),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		for _, it := range items {
			p, ok := products[it.ProductID]
			if !ok || !p.IsActive {
				return fmt.Errorf("%w: %s", orders.ErrProductNotFound, it.ProductID)
			}
			line := orders.OrderItem{
				ID:          uuid.NewString(),
				OrderID:     o.ID,
				ProductID:   p.ID,
				ProductName: p.Name,
				Quantity:    it.Qty,
				PriceAtTime: p.Price,
			}
			o.Items = append(o.Items, line)
			o.TotalAmount = o.TotalAmount.Add(line.LineTotal())
		}

		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}
		return c.inv.ReserveForOrder(ctx, tx, o.ID, items)
	})
	if err != nil {
		return orders.Order{}, err
	}

	c.log.Info("order placed",
		zap.String("order_id", o.ID),
		zap.String("customer_id", o.CustomerID),
		zap.String("total", o.TotalAmount.StringFixed(2)))
	c.publish(ctx, orders.EventOrderPlaced, o.ID, orders.OrderPlacedPayload{
		OrderID:     o.ID,
		CustomerID:  o.CustomerID,
		Items:       items,
		TotalAmount: o.TotalAmount,
		ExpiresAt:   o.ExpiresAt,
	})
	return o, nil
}

// GetOrder hides other customers' orders behind ErrOrderNotFound.
func (c *Controller) GetOrder(ctx context.Context, who auth.Identity, orderID string) (orders.Order, error) {
	if err := who.RequireUser(); err != nil {
		return orders.Order{}, err
	}
	var o orders.Order
	err := c.store.WithTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		var err error
		o, err = tx.GetOrder(ctx, orderID)
		return err
	})
	if err != nil {
		return orders.Order{}, err
	}
	if !who.IsShopkeeper() && o.CustomerID != who.UserID {
		return orders.Order{}, fmt.Errorf("%w: %s", orders.ErrOrderNotFound, orderID)
	}
	return o, nil
}

// ListOrders restricts customers to their own orders.
func (c *Controller) ListOrders(ctx context.Context, who auth.Identity, f orders.OrderFilter) ([]orders.Order, error) {
	if err := who.RequireUser(); err != nil {
		return nil, err
	}
	if !who.IsShopkeeper() {
		f.CustomerID = who.UserID
	}
	var out []orders.Order
	err := c.store.WithTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		var err error
		out, err = tx.ListOrders(ctx, f)
		return err
	})
	return out, err
}
