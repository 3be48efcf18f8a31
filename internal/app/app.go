// Package app wires configuration, storage, the tax rate client and the
// HTTP surface into a running order gateway.
package app

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/xenking/order-gateway/internal/domain/order"
	"github.com/xenking/order-gateway/internal/handler"
	"github.com/xenking/order-gateway/internal/storage/postgres"
	"github.com/xenking/order-gateway/internal/taxclient"
	"github.com/xenking/order-gateway/pkg/health"
	"github.com/xenking/order-gateway/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("tax_rate_url", cfg.TaxRate.URL),
		zap.Int32("max_conns", cfg.Database.MaxConns),
	)

	pool, err := postgres.NewPool(ctx, cfg.Pool())
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	rates, err := taxclient.New(taxclient.Config{
		URL:            cfg.TaxRate.URL,
		Timeout:        cfg.TaxRate.Timeout,
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create tax rate client")
	}

	orderRepo := postgres.NewOrderRepository(pool, cfg.Database.AcquireTimeout)
	orderService := order.NewService(rates, orderRepo,
		order.WithTracerProvider(m.TracerProvider()),
		order.WithMeterProvider(m.MeterProvider()),
	)

	if cfg.Database.InitOnStart {
		// Not fatal: the database may come up later and GET /init retries.
		if err := orderService.InitSchema(ctx); err != nil {
			lg.Warn("Schema initialization failed", zap.Error(err))
		}
	}

	healthSvc := health.New()
	healthSvc.Add(health.Check{
		Name:    "postgres",
		Probe:   health.Readiness,
		Timeout: 5 * time.Second,
		Run:     health.PingCheck(pool),
	})
	healthSvc.Add(health.Check{
		Name:    "goroutines",
		Probe:   health.Liveness,
		Timeout: time.Second,
		Run:     health.GoroutineCountCheck(10000),
	})
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	h := handler.NewHandler(handler.HandlerConfig{
		CORS: httpmiddleware.CORSConfig{AllowOrigins: cfg.CORS.Origins},
	}, orderService)

	mux := http.NewServeMux()
	healthSvc.Register(mux)
	mux.Handle("/", h)
	routeFinder := probeRoutes(h.FindRoute)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// Covers the tax lookup and the pool acquire on the slow path.
		WriteTimeout:   cfg.TaxRate.Timeout + cfg.Database.AcquireTimeout + 5*time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		// In-flight requests keep running while the server drains.
		BaseContext: func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
		Handler:        wrapHandler(mux, lg, routeFinder, m),
	}

	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// wrapHandler applies the middleware chain. The logger goes in first so a
// recovered panic is logged with its stack.
func wrapHandler(h http.Handler, lg *zap.Logger, find httpmiddleware.RouteFinder, t httpmiddleware.TelemetryProvider) http.Handler {
	return httpmiddleware.Wrap(h,
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.Recovery(),
		httpmiddleware.RequestID(),
		httpmiddleware.Instrument("order-gateway", find, t),
		httpmiddleware.LogRequests(find),
	)
}

// probeRoutes extends find with the health probe paths.
func probeRoutes(find httpmiddleware.RouteFinder) httpmiddleware.RouteFinder {
	return func(r *http.Request) (string, bool) {
		if r.Method == http.MethodGet && (r.URL.Path == "/livez" || r.URL.Path == "/readyz") {
			return r.Method + " " + r.URL.Path, true
		}
		return find(r)
	}
}
