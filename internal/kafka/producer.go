package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ariefcatur/khata-store/internal/metrics"
	"github.com/ariefcatur/khata-store/internal/orders"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var ErrProducerClosed = errors.New("kafka producer closed")

// Producer buffers messages in an inbox and hands them to an async writer.
// Delivery failures surface in the log and the publish metric, never to the
// caller, since events are emitted after the state change has committed.
type Producer struct {
	w     *kafka.Writer
	log   *zap.Logger
	inbox chan kafka.Message
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewProducer(brokers []string, topic string, buf int, log *zap.Logger) *Producer {
	if buf <= 0 {
		buf = 256
	}
	p := &Producer{
		log:   log.Named("kafka.producer"),
		inbox: make(chan kafka.Message, buf),
		done:  make(chan struct{}),
	}
	p.w = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        true,
		Completion:   p.completed,
	}
	return p
}

func (p *Producer) completed(msgs []kafka.Message, err error) {
	for _, m := range msgs {
		eventType := header(m, HeaderEventType)
		metrics.RecordPublish(eventType, err)
		if err != nil {
			p.log.Error("deliver event",
				zap.String("event_type", eventType),
				zap.ByteString("key", m.Key),
				zap.Error(err))
		}
	}
}

// Start drains the inbox until Close is called.
func (p *Producer) Start() {
	go func() {
		defer close(p.done)
		for m := range p.inbox {
			if err := p.w.WriteMessages(context.Background(), m); err != nil {
				p.log.Error("write event", zap.ByteString("key", m.Key), zap.Error(err))
			}
		}
		if err := p.w.Close(); err != nil {
			p.log.Warn("close writer", zap.Error(err))
		}
	}()
}

// Send queues m, waiting for inbox space until ctx is done.
func (p *Producer) Send(ctx context.Context, m kafka.Message) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}
	if m.Time.IsZero() {
		m.Time = time.Now()
	}
	select {
	case p.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish implements orders.Publisher.
func (p *Producer) Publish(ctx context.Context, ev orders.Envelope) error {
	m, err := EncodeEnvelope(ev)
	if err != nil {
		return err
	}
	return p.Send(ctx, m)
}

// Close stops accepting messages, flushes the inbox and waits for the
// writer to finish.
func (p *Producer) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.inbox)
	}
	p.mu.Unlock()
	<-p.done
}
