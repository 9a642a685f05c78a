// Package sweeper expires pending orders whose hold window has passed.
package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/khata-store/internal/metrics"
	"github.com/ariefcatur/khata-store/internal/orders"
	"go.uber.org/zap"
)

// Expirer performs the conditional pending -> expired transition.
type Expirer interface {
	ExpireOrder(ctx context.Context, orderID string) (bool, error)
}

// Lease lets one replica scan per tick. It only saves work; the
// conditional transition keeps concurrent sweeps safe without it.
type Lease interface {
	Acquire(ctx context.Context, ttl time.Duration) (bool, error)
}

type Sweeper struct {
	store    orders.Store
	expirer  Expirer
	log      *zap.Logger
	interval time.Duration
	batch    int
	lease    Lease
	now      func() time.Time
}

type Option func(*Sweeper)

func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithBatch(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.batch = n
		}
	}
}

func WithLease(l Lease) Option { return func(s *Sweeper) { s.lease = l } }

func WithClock(now func() time.Time) Option { return func(s *Sweeper) { s.now = now } }

func New(store orders.Store, expirer Expirer, log *zap.Logger, opts ...Option) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Sweeper{
		store:    store,
		expirer:  expirer,
		log:      log.Named("sweeper"),
		interval: time.Minute,
		batch:    100,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// RunOnce expires up to one batch of overdue pending orders and returns how
// many it expired. A failure on one order does not stop the others.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	if s.lease != nil {
		ok, err := s.lease.Acquire(ctx, s.interval)
		if err != nil {
			s.log.Warn("sweeper lease unavailable, sweeping anyway", zap.Error(err))
		} else if !ok {
			return 0, nil
		}
	}

	start := time.Now()
	var ids []string
	err := s.store.WithTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		var err error
		ids, err = tx.ExpiredPendingIDs(ctx, s.now(), s.batch)
		return err
	})
	if err != nil {
		return 0, err
	}

	expired := 0
	var errs []error
	for _, id := range ids {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		changed, err := s.expirer.ExpireOrder(ctx, id)
		if err != nil {
			s.log.Error("expire order failed", zap.String("order_id", id), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if changed {
			expired++
		}
	}
	metrics.RecordSweep(expired, time.Since(start).Seconds())
	if len(ids) > 0 {
		s.log.Info("sweep finished", zap.Int("candidates", len(ids)), zap.Int("expired", expired))
	}
	return expired, errors.Join(errs...)
}

// Run sweeps once immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	s.log.Info("sweeper started", zap.Duration("interval", s.interval), zap.Int("batch", s.batch))
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.log.Warn("sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return nil
		case <-t.C:
		}
	}
}
