package lifecycle

import (
	"context"
	"fmt"

	"github.com/ariefcatur/khata-store/internal/auth"
	"github.com/ariefcatur/khata-store/internal/orders"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// editableOrder locks the order and makes sure its items may still change.
func editableOrder(ctx context.Context, tx orders.Tx, orderID, itemID string) (orders.Order, orders.OrderItem, error) {
	o, err := tx.LockOrder(ctx, orderID)
	if err != nil {
		return orders.Order{}, orders.OrderItem{}, err
	}
	if o.Status == orders.StatusCancelled {
		return orders.Order{}, orders.OrderItem{}, fmt.Errorf("%w: %s", orders.ErrAlreadyCancelled, o.ID)
	}
	if !o.Status.Editable() {
		return orders.Order{}, orders.OrderItem{}, fmt.Errorf("%w: order is %s", orders.ErrNotEditable, o.Status)
	}
	item, ok := o.Item(itemID)
	if !ok {
		return orders.Order{}, orders.OrderItem{}, fmt.Errorf("%w: %s", orders.ErrItemNotFound, itemID)
	}
	return o, item, nil
}

func checkTotal(o orders.Order, total decimal.Decimal) error {
	if total.LessThan(o.PaidAmount) {
		return &orders.ValidationError{
			Field: "quantity",
			Msg:   fmt.Sprintf("order total %s would drop below paid amount %s", total.StringFixed(2), o.PaidAmount.StringFixed(2)),
		}
	}
	return nil
}

// EditItemQuantity changes one line of a pending or confirmed order. When
// the extra units cannot be reserved the line keeps its old quantity.
func (c *Controller) EditItemQuantity(ctx context.Context, who auth.Identity, orderID, itemID string, newQty int) (orders.Order, error) {
	if err := who.RequireShopkeeper(); err != nil {
		return orders.Order{}, err
	}
	if newQty <= 0 {
		return orders.Order{}, &orders.ValidationError{Field: "quantity", Msg: "must be positive, remove the item instead"}
	}

	var (
		out    orders.Order
		oldQty int
		item   orders.OrderItem
	)
	err := c.store.WithTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		o, it, err := editableOrder(ctx, tx, orderID, itemID)
		if err != nil {
			return err
		}
		item, oldQty = it, it.Quantity
		if oldQty == newQty {
			out = o
			return nil
		}
		for i := range o.Items {
			if o.Items[i].ID == itemID {
				o.Items[i].Quantity = newQty
			}
		}
		total := o.ItemsTotal()
		if err := checkTotal(o, total); err != nil {
			return err
		}

		if err := c.inv.AdjustItemQuantity(ctx, tx, o.ID, it.ProductID, oldQty, newQty); err != nil {
			return err
		}
		if err := tx.UpdateItemQuantity(ctx, itemID, newQty); err != nil {
			return err
		}
		now := c.now()
		if err := tx.SetTotal(ctx, o.ID, total, now); err != nil {
			return err
		}
		o.TotalAmount = total
		o.UpdatedAt = now
		out = o
		return nil
	})
	if err != nil {
		c.log.Info("item edit rejected",
			zap.String("order_id", orderID), zap.String("item_id", itemID), zap.Int("qty", newQty), zap.Error(err))
		return orders.Order{}, err
	}
	if oldQty != newQty {
		c.publish(ctx, orders.EventOrderItemsChanged, orderID, orders.OrderItemsChangedPayload{
			OrderID: orderID, ItemID: itemID, ProductID: item.ProductID,
			OldQty: oldQty, NewQty: newQty, TotalAmount: out.TotalAmount,
		})
	}
	return out, nil
}

// RemoveItem releases the line's hold and deletes it. The last line of an
// order cannot be removed; cancel the order instead.
func (c *Controller) RemoveItem(ctx context.Context, who auth.Identity, orderID, itemID string) (orders.Order, error) {
	if err := who.RequireShopkeeper(); err != nil {
		return orders.Order{}, err
	}

	var (
		out  orders.Order
		item orders.OrderItem
	)
	err := c.store.WithTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		o, it, err := editableOrder(ctx, tx, orderID, itemID)
		if err != nil {
			return err
		}
		item = it
		if len(o.Items) == 1 {
			return &orders.ValidationError{Field: "item", Msg: "cannot remove the last item, cancel the order instead"}
		}
		kept := make([]orders.OrderItem, 0, len(o.Items)-1)
		for _, x := range o.Items {
			if x.ID != itemID {
				kept = append(kept, x)
			}
		}
		o.Items = kept
		total := o.ItemsTotal()
		if err := checkTotal(o, total); err != nil {
			return err
		}

		if err := c.inv.ReleaseItem(ctx, tx, o.ID, it.ProductID, it.Quantity); err != nil {
			return err
		}
		if err := tx.DeleteItem(ctx, itemID); err != nil {
			return err
		}
		now := c.now()
		if err := tx.SetTotal(ctx, o.ID, total, now); err != nil {
			return err
		}
		o.TotalAmount = total
		o.UpdatedAt = now
		out = o
		return nil
	})
	if err != nil {
		c.log.Info("item removal rejected", zap.String("order_id", orderID), zap.String("item_id", itemID), zap.Error(err))
		return orders.Order{}, err
	}
	c.publish(ctx, orders.EventOrderItemsChanged, orderID, orders.OrderItemsChangedPayload{
		OrderID: orderID, ItemID: itemID, ProductID: item.ProductID,
		OldQty: item.Quantity, NewQty: 0, TotalAmount: out.TotalAmount,
	})
	return out, nil
}
