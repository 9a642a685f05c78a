package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/khata-store/internal/auth"
	"github.com/ariefcatur/khata-store/internal/catalog"
	"github.com/ariefcatur/khata-store/internal/khata"
	"github.com/ariefcatur/khata-store/internal/lifecycle"
	"github.com/ariefcatur/khata-store/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Idempotency remembers which order a client's Idempotency-Key produced.
type Idempotency interface {
	TryLock(ctx context.Context, customerID, key string) (bool, error)
	Unlock(ctx context.Context, customerID, key string) error
	Remember(ctx context.Context, customerID, key, orderID string) error
	Recall(ctx context.Context, customerID, key string) (string, bool, error)
}

type StatusCache interface {
	Get(ctx context.Context, orderID string) (redisx.CachedStatus, bool, error)
	Set(ctx context.Context, orderID string, st redisx.CachedStatus) error
}

type Deps struct {
	Controller *lifecycle.Controller
	Catalog    *catalog.Service
	Reports    *khata.Reports
	Tokens     *auth.Tokens
	Log        *zap.Logger

	// Optional.
	Idempotency Idempotency
	Status      StatusCache
	DevTokens   bool
}

func NewRouter(d Deps) *chi.Mux {
	log := d.Log.Named("http")
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, accessLog(log), instrument, middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	oh := &OrdersHandler{ctl: d.Controller, reports: d.Reports, idem: d.Idempotency, status: d.Status, log: log}
	ch := &CatalogHandler{svc: d.Catalog, log: log}
	ah := &AdminHandler{ctl: d.Controller, reports: d.Reports, log: log}
	kh := &KhataHandler{reports: d.Reports, log: log}

	r.Route("/v1", func(r chi.Router) {
		if d.DevTokens {
			th := &TokenHandler{tokens: d.Tokens, log: log}
			r.Post("/token", th.issue)
		}
		r.Group(func(r chi.Router) {
			r.Use(authenticate(d.Tokens))
			ch.Register(r)
			oh.Register(r)
			r.Route("/admin", func(r chi.Router) {
				r.Use(requireShopkeeper)
				ch.RegisterAdmin(r)
				ah.Register(r)
				kh.Register(r)
			})
		})
	})
	return r
}
