package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/ariefcatur/khata-store/internal/orders"
	"github.com/ariefcatur/khata-store/internal/redisx"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memSink struct {
	m    map[string]redisx.CachedStatus
	sets int
}

func (s *memSink) Get(_ context.Context, id string) (redisx.CachedStatus, bool, error) {
	st, ok := s.m[id]
	return st, ok, nil
}

func (s *memSink) Set(_ context.Context, id string, st redisx.CachedStatus) error {
	s.m[id] = st
	s.sets++
	return nil
}

type memDedup map[string]bool

func (d memDedup) Seen(_ context.Context, id string) (bool, error) { return d[id], nil }

func (d memDedup) Mark(_ context.Context, id string) (bool, error) {
	if d[id] {
		return false, nil
	}
	d[id] = true
	return true, nil
}

func statusEvent(t *testing.T, orderID string, to orders.Status, at time.Time) kafka.Message {
	t.Helper()
	ev, err := orders.NewEnvelope(orders.EventOrderStatusChanged, "test", orderID,
		orders.OrderStatusChangedPayload{OrderID: orderID, To: to, ChangedAt: at})
	require.NoError(t, err)
	ev.OccurredAt = at
	m, err := EncodeEnvelope(ev)
	require.NoError(t, err)
	return m
}

func TestEncodeEnvelope(t *testing.T) {
	m := statusEvent(t, "o1", orders.StatusConfirmed, time.Now())
	assert.Equal(t, []byte("o1"), m.Key)
	assert.Equal(t, orders.EventOrderStatusChanged, header(m, HeaderEventType))
	assert.Equal(t, "1", header(m, HeaderEventVersion))

	ev, err := DecodeEnvelope(m)
	require.NoError(t, err)
	p, err := UnwrapPayload[orders.OrderStatusChangedPayload](ev.Payload)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusConfirmed, p.To)
}

func TestStatusProjector(t *testing.T) {
	ctx := context.Background()
	sink := &memSink{m: map[string]redisx.CachedStatus{}}
	dedup := memDedup{}
	p := NewStatusProjector(sink, dedup, zap.NewNop())
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	confirmed := statusEvent(t, "o1", orders.StatusConfirmed, t0.Add(time.Minute))
	require.NoError(t, p.Handle(ctx, confirmed))
	assert.Equal(t, orders.StatusConfirmed, sink.m["o1"].Status)

	// redelivery is absorbed by dedup
	require.NoError(t, p.Handle(ctx, confirmed))
	assert.Equal(t, 1, sink.sets)

	// an older event never overwrites a newer status
	require.NoError(t, p.Handle(ctx, statusEvent(t, "o1", orders.StatusPending, t0)))
	assert.Equal(t, orders.StatusConfirmed, sink.m["o1"].Status)

	require.NoError(t, p.Handle(ctx, statusEvent(t, "o1", orders.StatusPacked, t0.Add(2*time.Minute))))
	assert.Equal(t, orders.StatusPacked, sink.m["o1"].Status)
}

func TestStatusProjectorIgnoresOtherEvents(t *testing.T) {
	ctx := context.Background()
	sink := &memSink{m: map[string]redisx.CachedStatus{}}
	p := NewStatusProjector(sink, nil, zap.NewNop())

	ev, err := orders.NewEnvelope(orders.EventPaymentRecorded, "test", "o1", orders.PaymentRecordedPayload{OrderID: "o1"})
	require.NoError(t, err)
	m, err := EncodeEnvelope(ev)
	require.NoError(t, err)
	require.NoError(t, p.Handle(ctx, m))
	require.NoError(t, p.Handle(ctx, kafka.Message{Value: []byte("not json")}))
	assert.Zero(t, sink.sets)
}
