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

	"lead_dispatch_backend/internal/dispatch"
	"lead_dispatch_backend/internal/events"
	"lead_dispatch_backend/internal/leads"
	"lead_dispatch_backend/internal/metrics"
	"lead_dispatch_backend/internal/scheduler"
	"lead_dispatch_backend/internal/sheets"
	"lead_dispatch_backend/platform/config"
	"lead_dispatch_backend/platform/db"
	"lead_dispatch_backend/platform/logger"
	"lead_dispatch_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env, "sweepInterval", cfg.GetDispatchSweepInterval().String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)
	defer eventBus.Wait()

	recorder := metrics.New()
	recorder.Subscribe(eventBus)

	// Worker-side lifecycle wiring (no HTTP handlers required).
	leadsModule, err := leads.NewModule(leads.ModuleDeps{
		Pool:      pool,
		EventBus:  eventBus,
		Validator: validator.New(),
		Config:    cfg,
		Sheets:    initSheets(ctx, cfg, log),
		Log:       log,
	})
	if err != nil {
		log.Error("failed to initialize leads module", "error", err)
		panic("failed to initialize leads module: " + err.Error())
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = client.Close() }()

	worker, err := scheduler.NewWorker(cfg, leadsModule.Orchestrator(), log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	ticker := scheduler.NewRetrySweepTicker(client, cfg.GetDispatchSweepInterval(), log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})
	if addr := cfg.GetSchedulerMetricsAddr(); addr != "" {
		serveMetrics(gctx, g, addr, recorder.Handler(), log)
	}
	_ = g.Wait()

	log.Info("scheduler stopped")
}

// serveMetrics exposes /metrics until ctx is done. A listener failure is logged
// and does not stop the scheduler.
func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, handler http.Handler, log *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

func initSheets(ctx context.Context, cfg config.GoogleSheetsConfig, log *logger.Logger) dispatch.SheetAppender {
	if !cfg.IsGoogleSheetsEnabled() {
		log.Warn("google sheets credentials not configured; sheet destinations disabled")
		return nil
	}

	appender, err := sheets.New(ctx, cfg)
	if err != nil {
		log.Error("failed to initialize google sheets appender", "error", err)
		return nil
	}
	return appender
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return fmt.Errorf("%s: %w", name, lastErr)
}
