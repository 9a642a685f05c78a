package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/khata-store/internal/config"
	"github.com/ariefcatur/khata-store/internal/inventory"
	kafkax "github.com/ariefcatur/khata-store/internal/kafka"
	"github.com/ariefcatur/khata-store/internal/lifecycle"
	"github.com/ariefcatur/khata-store/internal/logging"
	"github.com/ariefcatur/khata-store/internal/orders"
	"github.com/ariefcatur/khata-store/internal/postgres"
	"github.com/ariefcatur/khata-store/internal/redisx"
	"github.com/ariefcatur/khata-store/internal/sweeper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	service := cfg.ServiceName + "-worker"
	log, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, Service: service})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, service, log); err != nil {
		log.Fatal("worker exited", zap.Error(err))
	}
}

// run drives the expiry sweeper and, when kafka is enabled, the consumer
// that projects order events into the redis status cache.
func run(cfg config.Config, service string, log *zap.Logger) error {
	if cfg.StoreDriver != "postgres" {
		return errors.New("the worker needs STORE_DRIVER=postgres; run the sweeper in the api with SWEEP_IN_API for the memory store")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()
	if cfg.AutoMigrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	store := postgres.NewStore(pool, log)

	rdb := redisx.New(cfg.RedisAddr, cfg.RedisPassword)
	defer rdb.Close()
	if err := redisx.Ping(ctx, rdb); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	cache := redisx.NewStatusCache(rdb, redisx.TTLStatusCache)

	pubs := orders.Fanout{cache}
	if cfg.KafkaEnabled {
		prod := kafkax.NewProducer(cfg.Brokers(), orders.TopicOrderEvents, 256, log)
		prod.Start()
		defer prod.Close()
		pubs = append(pubs, prod)
	}
	ctl := lifecycle.NewController(store, inventory.NewService(log), log,
		lifecycle.WithPendingTTL(cfg.PendingOrderTTL),
		lifecycle.WithPublisher(pubs),
		lifecycle.WithProducerName(service),
	)

	host, _ := os.Hostname()
	sw := sweeper.New(store, ctl, log,
		sweeper.WithInterval(cfg.SweepInterval),
		sweeper.WithBatch(cfg.SweepBatch),
		sweeper.WithLease(redisx.NewLease(rdb, redisx.KeySweepLease, fmt.Sprintf("%s/%s/%d", service, host, os.Getpid()))),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sw.Run(gctx) })
	if cfg.KafkaEnabled {
		proj := kafkax.NewStatusProjector(cache, redisx.NewDedup(rdb, service, redisx.TTLDedup), log)
		cons := kafkax.NewConsumer(cfg.Brokers(), cfg.KafkaGroup, orders.TopicOrderEvents, cfg.ConsumerWorkers, log)
		g.Go(func() error {
			log.Info("consumer started",
				zap.String("group", cfg.KafkaGroup),
				zap.String("topic", orders.TopicOrderEvents),
				zap.Int("workers", cfg.ConsumerWorkers))
			return cons.Start(gctx, proj.Handle)
		})
	}
	err = g.Wait()
	log.Info("worker stopped")
	return err
}
