package kafka

import (
	"context"

	"github.com/ariefcatur/khata-store/internal/orders"
	"github.com/ariefcatur/khata-store/internal/redisx"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type StatusSink interface {
	Get(ctx context.Context, orderID string) (redisx.CachedStatus, bool, error)
	Set(ctx context.Context, orderID string, st redisx.CachedStatus) error
}

type Deduper interface {
	Seen(ctx context.Context, id string) (bool, error)
	Mark(ctx context.Context, id string) (bool, error)
}

// StatusProjector keeps the order status cache in step with the event
// stream so API replicas that missed an event still serve fresh status.
type StatusProjector struct {
	sink  StatusSink
	dedup Deduper
	log   *zap.Logger
}

func NewStatusProjector(sink StatusSink, dedup Deduper, log *zap.Logger) *StatusProjector {
	return &StatusProjector{sink: sink, dedup: dedup, log: log.Named("projector")}
}

func (p *StatusProjector) Handle(ctx context.Context, m kafka.Message) error {
	ev, err := DecodeEnvelope(m)
	if err != nil {
		// Poison message: log and let the offset move on.
		p.log.Error("skip undecodable message", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	orderID, st, ok := orders.StatusOf(ev)
	if !ok {
		return nil
	}

	if p.dedup != nil {
		seen, err := p.dedup.Seen(ctx, ev.EventID)
		if err != nil {
			return err
		}
		if seen {
			return nil
		}
	}

	cur, hit, err := p.sink.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if hit && cur.UpdatedAt.After(ev.OccurredAt) {
		p.log.Debug("stale status event",
			zap.String("order_id", orderID),
			zap.String("event_id", ev.EventID))
	} else if err := p.sink.Set(ctx, orderID, redisx.CachedStatus{Status: st, UpdatedAt: ev.OccurredAt}); err != nil {
		return err
	}

	if p.dedup != nil {
		if _, err := p.dedup.Mark(ctx, ev.EventID); err != nil {
			p.log.Warn("mark event applied", zap.String("event_id", ev.EventID), zap.Error(err))
		}
	}
	return nil
}
