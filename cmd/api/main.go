package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/khata-store/internal/auth"
	"github.com/ariefcatur/khata-store/internal/catalog"
	"github.com/ariefcatur/khata-store/internal/config"
	"github.com/ariefcatur/khata-store/internal/httpx"
	"github.com/ariefcatur/khata-store/internal/inventory"
	kafkax "github.com/ariefcatur/khata-store/internal/kafka"
	"github.com/ariefcatur/khata-store/internal/khata"
	"github.com/ariefcatur/khata-store/internal/lifecycle"
	"github.com/ariefcatur/khata-store/internal/logging"
	"github.com/ariefcatur/khata-store/internal/memstore"
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
	log, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, Service: cfg.ServiceName})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("api exited", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (orders.Store, func(), error) {
	if cfg.StoreDriver == "memory" {
		log.Warn("using in-memory store; data is lost on restart")
		return memstore.New(), func() {}, nil
	}
	pool, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	if err != nil {
		return nil, nil, fmt.Errorf("db connect: %w", err)
	}
	if cfg.AutoMigrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return postgres.NewStore(pool, log), pool.Close, nil
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	rdb := redisx.New(cfg.RedisAddr, cfg.RedisPassword)
	defer rdb.Close()
	redisUp := true
	if err := redisx.Ping(ctx, rdb); err != nil {
		log.Warn("redis unavailable; idempotency keys and status cache disabled", zap.Error(err))
		redisUp = false
	}

	var pubs orders.Fanout
	deps := httpx.Deps{
		Tokens:    auth.NewTokens(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL),
		Log:       log,
		DevTokens: cfg.AuthDevTokens,
	}
	if redisUp {
		cache := redisx.NewStatusCache(rdb, redisx.TTLStatusCache)
		pubs = append(pubs, cache)
		deps.Status = cache
		deps.Idempotency = redisx.NewIdempotencyStore(rdb, cfg.IdempotencyTTL)
	}
	if cfg.KafkaEnabled {
		prod := kafkax.NewProducer(cfg.Brokers(), orders.TopicOrderEvents, 1024, log)
		prod.Start()
		defer prod.Close()
		pubs = append(pubs, prod)
	}

	ctl := lifecycle.NewController(store, inventory.NewService(log), log,
		lifecycle.WithPendingTTL(cfg.PendingOrderTTL),
		lifecycle.WithPublisher(pubs),
		lifecycle.WithProducerName(cfg.ServiceName),
	)
	deps.Controller = ctl
	deps.Catalog = catalog.NewService(store, log)
	deps.Reports = khata.NewReports(store, khata.WithLocation(cfg.Location()))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpx.NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if cfg.SweepInAPI {
		opts := []sweeper.Option{sweeper.WithInterval(cfg.SweepInterval), sweeper.WithBatch(cfg.SweepBatch)}
		if redisUp {
			opts = append(opts, sweeper.WithLease(redisx.NewLease(rdb, redisx.KeySweepLease, leaseOwner(cfg.ServiceName))))
		}
		sw := sweeper.New(store, ctl, log, opts...)
		g.Go(func() error { return sw.Run(gctx) })
	}
	return g.Wait()
}

func leaseOwner(service string) string {
	host, _ := os.Hostname()
	return fmt.Sprintf("%s/%s/%d", service, host, os.Getpid())
}
