// Package lifecycle drives orders through their status machine and applies
// the matching stock effect in the same store transaction as the status
// change.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/khata-store/internal/auth"
	"github.com/ariefcatur/khata-store/internal/inventory"
	"github.com/ariefcatur/khata-store/internal/metrics"
	"github.com/ariefcatur/khata-store/internal/orders"
	"go.uber.org/zap"
)

const DefaultPendingTTL = 15 * time.Minute

type Controller struct {
	store      orders.Store
	inv        *inventory.Service
	pub        orders.Publisher
	log        *zap.Logger
	now        func() time.Time
	pendingTTL time.Duration
	producer   string
}

type Option func(*Controller)

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func WithPendingTTL(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.pendingTTL = d
		}
	}
}

// WithPublisher sets where events go once a change has committed.
func WithPublisher(p orders.Publisher) Option {
	return func(c *Controller) { c.pub = p }
}

func WithProducerName(name string) Option {
	return func(c *Controller) { c.producer = name }
}

func NewController(store orders.Store, inv *inventory.Service, log *zap.Logger, opts ...Option) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Controller{
		store:      store,
		inv:        inv,
		log:        log.Named("lifecycle"),
		now:        func() time.Time { return time.Now().UTC() },
		pendingTTL: DefaultPendingTTL,
		producer:   "khata-api",
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// errSkip tells apply to leave the order as it is and report no change.
var errSkip = errors.New("skip")

type step struct {
	to orders.Status
	// check runs on the locked order before the transition is validated.
	check  func(o orders.Order) error
	effect func(ctx context.Context, tx orders.Tx, o orders.Order) error
}

// apply locks the order, validates the move and applies the stock effect
// followed by a status update conditional on the status it read. Nothing is
// published unless the transaction committed.
func (c *Controller) apply(ctx context.Context, orderID string, s step) (orders.Order, bool, error) {
	var (
		out  orders.Order
		from orders.Status
		at   time.Time
	)
	err := c.store.WithTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		out = o
		if s.check != nil {
			if err := s.check(o); err != nil {
				return err
			}
		}
		if o.Status == orders.StatusCancelled && s.to != orders.StatusCancelled {
			return fmt.Errorf("%w: %s", orders.ErrAlreadyCancelled, o.ID)
		}
		if !orders.CanTransition(o.Status, s.to) {
			return &orders.InvalidTransitionError{From: o.Status, To: s.to}
		}
		if s.effect != nil {
			if err := s.effect(ctx, tx, o); err != nil {
				return err
			}
		}
		at = c.now()
		ok, err := tx.UpdateStatusIf(ctx, o.ID, o.Status, s.to, at)
		if err != nil {
			return err
		}
		if !ok {
			return &orders.InvalidTransitionError{From: o.Status, To: s.to}
		}
		from = o.Status
		out.Status = s.to
		out.UpdatedAt = at
		return nil
	})
	if errors.Is(err, errSkip) {
		return out, false, nil
	}
	if err != nil {
		c.logRejected(orderID, s.to, err)
		return orders.Order{}, false, err
	}

	metrics.RecordTransition(string(from), string(s.to))
	c.log.Info("order status changed",
		zap.String("order_id", orderID), zap.String("from", string(from)), zap.String("to", string(s.to)))
	c.publish(ctx, orders.EventOrderStatusChanged, orderID, orders.OrderStatusChangedPayload{
		OrderID: orderID, From: from, To: s.to, ChangedAt: at,
	})
	return out, true, nil
}

func (c *Controller) logRejected(orderID string, to orders.Status, err error) {
	fields := []zap.Field{zap.String("order_id", orderID), zap.String("to", string(to)), zap.Error(err)}
	switch {
	case errors.Is(err, orders.ErrInconsistentState):
		c.log.Error("transition aborted, ledger inconsistent", fields...)
	case errors.Is(err, orders.ErrInvalidTransition), errors.Is(err, orders.ErrAlreadyCancelled):
		c.log.Info("transition rejected", fields...)
	}
}

func (c *Controller) publish(ctx context.Context, eventType, orderID string, payload any) {
	if c.pub == nil {
		return
	}
	ev, err := orders.NewEnvelope(eventType, c.producer, orderID, payload)
	if err == nil {
		err = c.pub.Publish(ctx, ev)
	}
	metrics.RecordPublish(eventType, err)
	if err != nil {
		c.log.Warn("publish event failed", zap.String("event_type", eventType), zap.String("order_id", orderID), zap.Error(err))
	}
}

// ConfirmOrder moves a pending order to confirmed. Holds stay in place.
func (c *Controller) ConfirmOrder(ctx context.Context, who auth.Identity, orderID string) (orders.Order, error) {
	if err := who.RequireShopkeeper(); err != nil {
		return orders.Order{}, err
	}
	o, _, err := c.apply(ctx, orderID, step{to: orders.StatusConfirmed})
	return o, err
}

// PackOrder turns the order's holds into permanent stock deductions. It
// succeeds at most once per order.
func (c *Controller) PackOrder(ctx context.Context, who auth.Identity, orderID string) (orders.Order, error) {
	if err := who.RequireShopkeeper(); err != nil {
		return orders.Order{}, err
	}
	o, _, err := c.apply(ctx, orderID, step{
		to: orders.StatusPacked,
		effect: func(ctx context.Context, tx orders.Tx, o orders.Order) error {
			_, err := c.inv.FinalizeForOrder(ctx, tx, o.ID)
			return err
		},
	})
	return o, err
}

func (c *Controller) DeliverOrder(ctx context.Context, who auth.Identity, orderID string) (orders.Order, error) {
	if err := who.RequireShopkeeper(); err != nil {
		return orders.Order{}, err
	}
	o, _, err := c.apply(ctx, orderID, step{to: orders.StatusDelivered})
	return o, err
}

// CancelOrder releases the order's holds and marks it cancelled. Customers
// may cancel their own pending orders, shopkeepers any pending or confirmed
// order. Cancelling a cancelled order is a no-op.
func (c *Controller) CancelOrder(ctx context.Context, who auth.Identity, orderID string) (orders.Order, error) {
	if err := who.RequireUser(); err != nil {
		return orders.Order{}, err
	}
	o, _, err := c.apply(ctx, orderID, step{
		to: orders.StatusCancelled,
		check: func(o orders.Order) error {
			if !who.IsShopkeeper() {
				if o.CustomerID != who.UserID {
					return fmt.Errorf("%w: %s", orders.ErrOrderNotFound, o.ID)
				}
				if o.Status == orders.StatusConfirmed {
					return fmt.Errorf("%w: confirmed orders can only be cancelled by the shop", auth.ErrForbidden)
				}
			}
			if o.Status == orders.StatusCancelled {
				return errSkip
			}
			return nil
		},
		effect: func(ctx context.Context, tx orders.Tx, o orders.Order) error {
			_, err := c.inv.ReleaseForOrder(ctx, tx, o.ID)
			return err
		},
	})
	return o, err
}

// ExpireOrder is the sweeper's cancel. It only acts on an order that is
// still pending and past its expiry when the lock is taken, and reports
// whether it did.
func (c *Controller) ExpireOrder(ctx context.Context, orderID string) (bool, error) {
	now := c.now()
	_, changed, err := c.apply(ctx, orderID, step{
		to: orders.StatusExpired,
		check: func(o orders.Order) error {
			if o.Status != orders.StatusPending || !o.ExpiresAt.Before(now) {
				return errSkip
			}
			return nil
		},
		effect: func(ctx context.Context, tx orders.Tx, o orders.Order) error {
			_, err := c.inv.ReleaseForOrder(ctx, tx, o.ID)
			return err
		},
	})
	if errors.Is(err, orders.ErrOrderNotFound) {
		return false, nil
	}
	return changed, err
}

// UpdateStatus dispatches a requested status to the matching transition.
func (c *Controller) UpdateStatus(ctx context.Context, who auth.Identity, orderID string, to orders.Status) (orders.Order, error) {
	switch to {
	case orders.StatusConfirmed:
		return c.ConfirmOrder(ctx, who, orderID)
	case orders.StatusPacked:
		return c.PackOrder(ctx, who, orderID)
	case orders.StatusDelivered:
		return c.DeliverOrder(ctx, who, orderID)
	case orders.StatusCancelled:
		return c.CancelOrder(ctx, who, orderID)
	}
	// pending is never re-entered and expired is set by the sweeper only.
	if err := who.RequireShopkeeper(); err != nil {
		return orders.Order{}, err
	}
	o, err := c.GetOrder(ctx, who, orderID)
	if err != nil {
		return orders.Order{}, err
	}
	return orders.Order{}, &orders.InvalidTransitionError{From: o.Status, To: to}
}
