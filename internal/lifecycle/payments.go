package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"github.com/ariefcatur/khata-store/internal/auth"
	"github.com/ariefcatur/khata-store/internal/orders"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RecordPayment stores a completed manual payment. A payment larger than
// the amount still due is rejected with *orders.OverpaymentError.
func (c *Controller) RecordPayment(ctx context.Context, who auth.Identity, orderID string, amount decimal.Decimal, method string) (orders.Payment, orders.Order, error) {
	if err := who.RequireShopkeeper(); err != nil {
		return orders.Payment{}, orders.Order{}, err
	}
	if !amount.IsPositive() {
		return orders.Payment{}, orders.Order{}, &orders.ValidationError{Field: "amount", Msg: "must be positive"}
	}
	method = strings.TrimSpace(method)
	if method == "" {
		method = orders.DefaultPaymentMethod
	}

	var (
		pay orders.Payment
		out orders.Order
	)
	err := c.store.WithTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		switch o.Status {
		case orders.StatusCancelled:
			return fmt.Errorf("%w: %s", orders.ErrAlreadyCancelled, o.ID)
		case orders.StatusExpired:
			return fmt.Errorf("%w: order is expired", orders.ErrNotEditable)
		}
		due := o.DueAmount()
		if amount.GreaterThan(due) {
			return &orders.OverpaymentError{Due: due.StringFixed(2)}
		}

		pay = orders.Payment{
			ID:        uuid.NewString(),
			OrderID:   o.ID,
			Amount:    amount,
			Method:    method,
			Status:    orders.PaymentCompleted,
			CreatedAt: c.now(),
		}
		if err := tx.InsertPayment(ctx, pay); err != nil {
			return err
		}
		o.PaidAmount = o.PaidAmount.Add(amount)
		out = o
		return nil
	})
	if err != nil {
		return orders.Payment{}, orders.Order{}, err
	}

	c.log.Info("payment recorded",
		zap.String("order_id", orderID),
		zap.String("payment_id", pay.ID),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("due", out.DueAmount().StringFixed(2)))
	c.publish(ctx, orders.EventPaymentRecorded, orderID, orders.PaymentRecordedPayload{
		OrderID: orderID, PaymentID: pay.ID, Amount: amount, Method: method, DueAmount: out.DueAmount(),
	})
	return pay, out, nil
}

// ListPayments is for shop staff only.
func (c *Controller) ListPayments(ctx context.Context, who auth.Identity, f orders.PaymentFilter) ([]orders.Payment, error) {
	if err := who.RequireShopkeeper(); err != nil {
		return nil, err
	}
	var out []orders.Payment
	err := c.store.WithTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		var err error
		out, err = tx.ListPayments(ctx, f)
		return err
	})
	return out, err
}
