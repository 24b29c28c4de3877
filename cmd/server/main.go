package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	lendinghandler "lendaudit/internal/lending/handler"
	"lendaudit/internal/lending/service"
	lendingstore "lendaudit/internal/lending/store"
	"lendaudit/internal/platform/config"
	"lendaudit/internal/platform/httpserver"
	"lendaudit/internal/platform/logger"
	"lendaudit/internal/platform/metrics"
	httptransport "lendaudit/internal/transport/http"
	"lendaudit/pkg/platform/audit"
	"lendaudit/pkg/platform/circuit"
	auditmw "lendaudit/pkg/platform/middleware/audit"
	"lendaudit/pkg/platform/middleware/auth"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	sinks, err := openSinks(ctx, cfg, reg, log)
	if err != nil {
		return err
	}
	defer sinks.Close()

	registry := audit.NewRegistry()
	breaker := circuit.New("audit-store",
		circuit.WithFailureThreshold(cfg.Audit.BreakerThreshold),
		circuit.WithCooldown(cfg.Audit.BreakerCooldown),
	)
	interceptor, err := audit.New(sinks.store, registry,
		audit.WithLogger(log),
		audit.WithMetrics(audit.NewMetrics(reg)),
		audit.WithBreaker(breaker),
		audit.WithWriteTimeout(cfg.Audit.WriteTimeout),
	)
	if err != nil {
		return err
	}

	lending := lendingstore.NewInMemoryStore()
	if err := seedDemoData(ctx, lending); err != nil {
		return err
	}

	var validator auth.JWTValidator
	if cfg.Server.JWTSigningKey != "" {
		validator = auth.NewTokenService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer)
	} else {
		log.Warn("JWT_SIGNING_KEY not set, all requests are audited as anonymous")
	}

	router, err := httptransport.NewRouter(httptransport.Deps{
		Logger:    log,
		Lending:   lendinghandler.New(service.New(lending, service.WithWatchlist(demoWatchlist...)), log),
		Audit:     auditmw.New(interceptor, registry, log),
		Metrics:   metrics.New(reg),
		Gatherer:  reg,
		Validator: validator,
		Checks:    sinks.checks(),
	})
	if err != nil {
		return err
	}
	log.Info("audit routes declared", "count", registry.Len())

	sinks.startMaterializer(ctx, log)

	srv := httpserver.New(cfg.Server.Addr, router)
	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting lendaudit", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case runErr = <-serveErr:
	case <-ctx.Done():
	}

	shutdown(cfg.Server.ShutdownTimeout, srv, interceptor, sinks, log)
	return runErr
}

// shutdown runs on every exit path: stop the server, stop accepting audit
// writes and drain those in flight, then stop the materializer before the
// deferred sink close tears down its client.
func shutdown(timeout time.Duration, srv *http.Server, interceptor *audit.Interceptor, s *sinks, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	// Close gates late handlers before waiting, so a timed-out Shutdown cannot
	// race new writes against the drain.
	if err := interceptor.Close(ctx); err != nil {
		log.Warn("audit writes still in flight at shutdown", "error", err)
	}
	s.stopMaterializer()
}
