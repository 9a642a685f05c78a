package kafka

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler returns nil only when the message was applied and its offset may
// be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type Consumer struct {
	r       *kafka.Reader
	workers int
	log     *zap.Logger
}

func NewConsumer(brokers []string, group, topic string, workers int, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // commit synchronously after each handled message
	})
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers, log: log.Named("kafka.consumer")}
}

// Start fetches until ctx is done. Messages with the same key always go to
// the same worker, so one order's events are applied in partition order.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer func() {
		if err := c.r.Close(); err != nil {
			c.log.Warn("close reader", zap.Error(err))
		}
	}()

	lanes := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := range lanes {
		lanes[i] = make(chan kafka.Message, 64)
		wg.Add(1)
		go func(jobs <-chan kafka.Message) {
			defer wg.Done()
			for m := range jobs {
				c.handle(ctx, h, m)
			}
		}(lanes[i])
	}
	stop := func() {
		for _, l := range lanes {
			close(l)
		}
		wg.Wait()
	}

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			stop()
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		select {
		case lanes[c.lane(m.Key)] <- m:
		case <-ctx.Done():
			stop()
			return nil
		}
	}
}

func (c *Consumer) lane(key []byte) int {
	if c.workers == 1 {
		return 0
	}
	f := fnv.New32a()
	_, _ = f.Write(key)
	return int(f.Sum32() % uint32(c.workers))
}

func (c *Consumer) handle(ctx context.Context, h Handler, m kafka.Message) {
	if err := h(ctx, m); err != nil {
		c.log.Error("handle message",
			zap.String("topic", m.Topic),
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
			zap.Error(err))
		return
	}
	if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		c.log.Warn("commit offset", zap.Int64("offset", m.Offset), zap.Error(err))
	}
}
