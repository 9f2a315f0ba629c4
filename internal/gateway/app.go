package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"OrderLens/internal/auth"
	"OrderLens/internal/enhancer"
	"OrderLens/internal/render"
	"OrderLens/pkg/kit"
)

type HTTPDeps struct {
	Log      *zap.Logger
	Service  string
	Registry *prometheus.Registry

	MetricsEnabled bool
	MetricsToken   string
}

type Deps struct {
	DashboardURL   string
	PagePath       string
	FragmentPrefix string
	ReadyPath      string
	PublishTimeout time.Duration

	// OrdersReady, when set, is probed by /readyz next to the dashboard.
	OrdersReady func(ctx context.Context) error

	Runner   *enhancer.Runner
	Renderer *render.Renderer

	// AdminJWTSecret enables /enhancer/*; empty keeps it unmounted.
	AdminJWTSecret string
	AdminRateLimit int
}

const (
	readyTimeout      = 2 * time.Second
	readyProbeTimeout = 700 * time.Millisecond
	adminRateWindow   = time.Minute
)

var readyClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     30 * time.Second,
	},
}

func NewHandler(deps Deps, httpDeps HTTPDeps) (http.Handler, error) {
	log := httpDeps.Log
	if log == nil {
		log = zap.NewNop()
	}

	proxy, err := NewReverseProxy(ProxyConfig{
		Target:         deps.DashboardURL,
		PagePath:       deps.PagePath,
		FragmentPrefix: deps.FragmentPrefix,
		PublishTimeout: deps.PublishTimeout,
	}, deps.Runner, log)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	setupMiddleware(r, httpDeps)
	setupMetrics(r, httpDeps)

	r.Get("/healthz", healthz)
	r.Get("/readyz", readyz(deps, log))

	if deps.AdminJWTSecret != "" {
		a := &admin{runner: deps.Runner, renderer: deps.Renderer, log: log}
		limiter := kit.NewIPRateLimiter(deps.AdminRateLimit, adminRateWindow)

		r.Route("/enhancer", func(ar chi.Router) {
			ar.Use(limiter.Middleware)
			ar.Use(AdminJWT(auth.NewTokenMaker(deps.AdminJWTSecret)))
			a.routes(ar)
		})
	} else {
		log.Warn("ADMIN_JWT_SECRET not set, admin API disabled")
	}

	r.Handle("/*", proxy)

	return r, nil
}

func setupMiddleware(r *chi.Mux, deps HTTPDeps) {
	r.Use(chimw.RequestID)
	r.Use(kit.Recoverer)
	if deps.Log != nil {
		r.Use(kit.Logging(deps.Log))
	}
}

func setupMetrics(r *chi.Mux, deps HTTPDeps) {
	if deps.Registry == nil {
		return
	}

	metrics := kit.NewMetrics(deps.Registry)
	r.Use(metrics.Middleware(deps.Service, kit.ChiRoutePattern))

	if !deps.MetricsEnabled {
		return
	}

	r.With(kit.MetricsAuth(deps.MetricsToken)).
		Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func readyz(deps Deps, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		if err := checkReady(ctx, deps.DashboardURL+deps.ReadyPath); err != nil {
			log.Warn("readyz failed: dashboard", zap.Error(err))
			kit.WriteError(w, r, http.StatusServiceUnavailable, "dashboard not ready", nil)
			return
		}

		if deps.OrdersReady != nil {
			if err := deps.OrdersReady(ctx); err != nil {
				log.Warn("readyz failed: orders source", zap.Error(err))
				kit.WriteError(w, r, http.StatusServiceUnavailable, "orders source not ready", nil)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
	}
}

func checkReady(ctx context.Context, url string) error {
	cctx, cancel := context.WithTimeout(ctx, readyProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := readyClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status=%d", resp.StatusCode)
	}

	return nil
}
