package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/khata-store/internal/auth"
	"github.com/ariefcatur/khata-store/internal/inventory"
	"github.com/ariefcatur/khata-store/internal/memstore"
	"github.com/ariefcatur/khata-store/internal/orders"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	shopkeeper = auth.Identity{UserID: "shop-1", Role: auth.RoleShopkeeper}
	alice      = auth.Identity{UserID: "alice", Role: auth.RoleCustomer}
	bob        = auth.Identity{UserID: "bob", Role: auth.RoleCustomer}
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	events []orders.Envelope
	fail   bool
}

func (r *recorder) Publish(_ context.Context, ev orders.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("broker down")
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.EventType
	}
	return out
}

type fixture struct {
	t     *testing.T
	store *memstore.Store
	clock *clock
	pub   *recorder
	ctl   *Controller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:     t,
		store: memstore.New(),
		clock: &clock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
		pub:   &recorder{},
	}
	f.ctl = NewController(f.store, inventory.NewService(zap.NewNop()), zap.NewNop(),
		WithClock(f.clock.Now),
		WithPendingTTL(15*time.Minute),
		WithPublisher(f.pub),
		WithProducerName("test"),
	)
	return f
}

func (f *fixture) product(id string, price string, stock int) {
	f.store.Seed(orders.Product{
		ID: id, Name: "product " + id, Price: decimal.RequireFromString(price),
		IsActive: true, StockQuantity: stock,
	})
}

func (f *fixture) get(id string) orders.Product {
	f.t.Helper()
	var p orders.Product
	require.NoError(f.t, f.store.WithTx(context.Background(), func(ctx context.Context, tx orders.Tx) error {
		var err error
		p, err = tx.GetProduct(ctx, id)
		return err
	}))
	return p
}

func (f *fixture) order(id string) orders.Order {
	f.t.Helper()
	o, err := f.ctl.GetOrder(context.Background(), shopkeeper, id)
	require.NoError(f.t, err)
	return o
}

func (f *fixture) place(who auth.Identity, items ...orders.ItemQty) orders.Order {
	f.t.Helper()
	o, err := f.ctl.PlaceOrder(context.Background(), who, items)
	require.NoError(f.t, err)
	return o
}

// heldFor sums the RESERVED holds of an order.
func (f *fixture) heldFor(orderID string) int {
	f.t.Helper()
	n := 0
	require.NoError(f.t, f.store.WithTx(context.Background(), func(ctx context.Context, tx orders.Tx) error {
		hs, err := tx.HeldReservations(ctx, orderID)
		for _, h := range hs {
			n += h.Qty
		}
		return err
	}))
	return n
}

func qty(productID string, n int) orders.ItemQty { return orders.ItemQty{ProductID: productID, Qty: n} }
