package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"OrderLens/internal/config"
	"OrderLens/internal/enhancer"
	"OrderLens/internal/gateway"
	"OrderLens/internal/orders"
	"OrderLens/internal/render"
	"OrderLens/internal/watch"
	"OrderLens/pkg/kit"
)

func main() {
	service := "orderlens"

	cfg, err := config.Load()
	if err != nil {
		log := kit.NewLogger(service, "info")
		log.Fatal("config", zap.Error(err))
	}

	log := kit.NewLogger(service, cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, ready, closeSrc, err := newSource(ctx, cfg, log)
	if err != nil {
		log.Fatal("orders source init failed", zap.Error(err))
	}
	defer closeSrc()

	cache := orders.NewCache()
	renderer, err := render.New(cache, render.Config{
		RowAttr:      cfg.DOM.RowAttr,
		ListSelector: cfg.DOM.ListSelector,
		MemoSize:     cfg.MemoSize,
	})
	if err != nil {
		log.Fatal("renderer init failed", zap.Error(err))
	}

	watcher, err := watch.New(cfg.DOM.RootID, cfg.DOM.CardSelector, renderer, log)
	if err != nil {
		log.Fatal("watcher init failed", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	runner := enhancer.New(enhancer.Config{
		AttachRetryInterval: cfg.Timing.AttachRetryInterval,
		MaxAttachAttempts:   cfg.Timing.MaxAttachAttempts,
		RefreshInterval:     cfg.Timing.RefreshInterval,
	}, enhancer.Deps{
		Fetcher: orders.NewFetcher(src, cache, log),
		Watcher: watcher,
		Pages:   enhancer.NewHTTPPageSource(cfg.HTTP.DashboardURL + cfg.HTTP.PagePath),
		Log:     log,
		Metrics: enhancer.NewMetrics(reg),
	})

	h, err := gateway.NewHandler(gateway.Deps{
		DashboardURL:   cfg.HTTP.DashboardURL,
		PagePath:       cfg.HTTP.PagePath,
		FragmentPrefix: cfg.HTTP.FragmentPrefix,
		ReadyPath:      cfg.HTTP.ReadyPath,
		PublishTimeout: cfg.Timing.PublishTimeout,
		OrdersReady:    ready,
		Runner:         runner,
		Renderer:       renderer,
		AdminJWTSecret: cfg.Admin.JWTSecret,
		AdminRateLimit: cfg.Admin.RateLimit,
	}, gateway.HTTPDeps{
		Log:            log,
		Service:        service,
		Registry:       reg,
		MetricsEnabled: true,
		MetricsToken:   cfg.Admin.MetricsToken,
	})
	if err != nil {
		log.Fatal("init gateway handler failed", zap.Error(err))
	}

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("enhancer stopped", zap.Error(err))
		}
	}()

	if err := kit.RunHTTPServer(ctx, ":"+cfg.HTTP.Port, h, log); err != nil {
		log.Error("http server stopped", zap.Error(err))
	}

	stop()
	<-runDone
}

// newSource picks Postgres when a DSN is configured and the HTTP endpoint
// otherwise. ready is nil for the HTTP source.
func newSource(ctx context.Context, cfg *config.Config, log *zap.Logger) (orders.Source, func(context.Context) error, func(), error) {
	if cfg.Source.DSN == "" {
		log.Info("orders source: http", zap.String("url", cfg.Source.OrdersURL))
		return orders.NewHTTPSource(cfg.Source.OrdersURL), nil, func() {}, nil
	}

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := orders.Connect(cctx, cfg.Source.DSN)
	if err != nil {
		return nil, nil, nil, err
	}
	log.Info("orders source: postgres", zap.String("table", cfg.Source.Table))
	pg := orders.NewPostgresSource(pool, cfg.Source.Table)
	return pg, pg.Ping, pool.Close, nil
}
