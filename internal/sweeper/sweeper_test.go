package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ariefcatur/khata-store/internal/auth"
	"github.com/ariefcatur/khata-store/internal/inventory"
	"github.com/ariefcatur/khata-store/internal/lifecycle"
	"github.com/ariefcatur/khata-store/internal/memstore"
	"github.com/ariefcatur/khata-store/internal/orders"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	customer = auth.Identity{UserID: "c-1", Role: auth.RoleCustomer}
	shop     = auth.Identity{UserID: "s-1", Role: auth.RoleShopkeeper}
)

type world struct {
	store *memstore.Store
	ctl   *lifecycle.Controller
	now   time.Time
}

func newWorld(t *testing.T) *world {
	t.Helper()
	w := &world{store: memstore.New(), now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	w.store.Seed(orders.Product{ID: "p", Name: "rice", Price: decimal.NewFromInt(50), IsActive: true, StockQuantity: 20})
	w.ctl = lifecycle.NewController(w.store, inventory.NewService(zap.NewNop()), zap.NewNop(),
		lifecycle.WithClock(w.clock))
	return w
}

func (w *world) clock() time.Time { return w.now }

func (w *world) place(t *testing.T, n int) orders.Order {
	t.Helper()
	o, err := w.ctl.PlaceOrder(context.Background(), customer, []orders.ItemQty{{ProductID: "p", Qty: n}})
	require.NoError(t, err)
	return o
}

func (w *world) reserved(t *testing.T) int {
	t.Helper()
	var p orders.Product
	require.NoError(t, w.store.WithTx(context.Background(), func(ctx context.Context, tx orders.Tx) error {
		var err error
		p, err = tx.GetProduct(ctx, "p")
		return err
	}))
	return p.ReservedQuantity
}

func TestRunOnceExpiresOnlyOverduePending(t *testing.T) {
	w := newWorld(t)
	old := w.place(t, 2)
	confirmed := w.place(t, 3)
	_, err := w.ctl.ConfirmOrder(context.Background(), shop, confirmed.ID)
	require.NoError(t, err)

	w.now = w.now.Add(10 * time.Minute)
	fresh := w.place(t, 4)
	w.now = w.now.Add(6 * time.Minute) // old is 16m old, fresh 6m

	s := New(w.store, w.ctl, zap.NewNop(), WithClock(w.clock), WithBatch(10))
	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 7, w.reserved(t))

	for id, want := range map[string]orders.Status{
		old.ID:       orders.StatusExpired,
		confirmed.ID: orders.StatusConfirmed,
		fresh.ID:     orders.StatusPending,
	} {
		o, err := w.ctl.GetOrder(context.Background(), shop, id)
		require.NoError(t, err)
		assert.Equal(t, want, o.Status)
	}

	n, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunOnceRespectsBatch(t *testing.T) {
	w := newWorld(t)
	for i := 0; i < 5; i++ {
		w.place(t, 1)
	}
	w.now = w.now.Add(time.Hour)

	s := New(w.store, w.ctl, zap.NewNop(), WithClock(w.clock), WithBatch(2))
	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 3, w.reserved(t))
}

func TestConcurrentSweepersReleaseOnce(t *testing.T) {
	w := newWorld(t)
	for i := 0; i < 6; i++ {
		w.place(t, 2)
	}
	w.now = w.now.Add(time.Hour)

	total := make([]int, 4)
	var g errgroup.Group
	for i := range total {
		i := i
		s := New(w.store, w.ctl, zap.NewNop(), WithClock(w.clock))
		g.Go(func() error {
			n, err := s.RunOnce(context.Background())
			total[i] = n
			return err
		})
	}
	require.NoError(t, g.Wait())

	sum := 0
	for _, n := range total {
		sum += n
	}
	assert.Equal(t, 6, sum)
	assert.Equal(t, 0, w.reserved(t))
}

type fakeLease struct {
	ok  bool
	err error
}

func (l fakeLease) Acquire(context.Context, time.Duration) (bool, error) { return l.ok, l.err }

func TestLease(t *testing.T) {
	w := newWorld(t)
	w.place(t, 1)
	w.now = w.now.Add(time.Hour)

	n, err := New(w.store, w.ctl, zap.NewNop(), WithClock(w.clock), WithLease(fakeLease{ok: false})).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "another replica holds the lease")

	n, err = New(w.store, w.ctl, zap.NewNop(), WithClock(w.clock), WithLease(fakeLease{err: errors.New("redis down")})).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

type failingExpirer struct{ calls int }

func (f *failingExpirer) ExpireOrder(context.Context, string) (bool, error) {
	f.calls++
	return false, errors.New("boom")
}

func TestRunOnceKeepsGoingAfterFailure(t *testing.T) {
	w := newWorld(t)
	w.place(t, 1)
	w.place(t, 1)
	w.now = w.now.Add(time.Hour)

	fe := &failingExpirer{}
	n, err := New(w.store, fe, zap.NewNop(), WithClock(w.clock)).RunOnce(context.Background())
	assert.Error(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 2, fe.calls)
}

func TestRunStopsOnCancel(t *testing.T) {
	w := newWorld(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(w.store, w.ctl, zap.NewNop(), WithInterval(10*time.Millisecond)).Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
