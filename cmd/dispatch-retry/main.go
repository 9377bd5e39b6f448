package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"lead_dispatch_backend/internal/dispatch"
	"lead_dispatch_backend/internal/events"
	"lead_dispatch_backend/internal/leads"
	"lead_dispatch_backend/internal/sheets"
	"lead_dispatch_backend/platform/config"
	"lead_dispatch_backend/platform/db"
	"lead_dispatch_backend/platform/logger"
	"lead_dispatch_backend/platform/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting dispatch retry backfill")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)

	var sheetAppender dispatch.SheetAppender
	if cfg.IsGoogleSheetsEnabled() {
		appender, err := sheets.New(ctx, cfg)
		if err != nil {
			log.Error("failed to initialize google sheets appender", "error", err)
		} else {
			sheetAppender = appender
		}
	}

	leadsModule, err := leads.NewModule(leads.ModuleDeps{
		Pool:      pool,
		EventBus:  eventBus,
		Validator: validator.New(),
		Config:    cfg,
		Sheets:    sheetAppender,
		Log:       log,
	})
	if err != nil {
		log.Error("failed to initialize leads module", "error", err)
		panic("failed to initialize leads module: " + err.Error())
	}

	maxRounds := getPositiveIntEnv("DISPATCH_RETRY_MAX_ROUNDS", 10)
	var total dispatch.SweepSummary
	rounds := 0
	for rounds < maxRounds {
		if ctx.Err() != nil {
			break
		}
		results, err := leadsModule.Orchestrator().RetrySweep(ctx)
		if err != nil {
			log.Error("retry sweep failed", "round", rounds+1, "error", err)
			break
		}
		rounds++

		summary := dispatch.SummarizeSweep(results)
		if summary.Claimed == 0 {
			break
		}
		total.Claimed += summary.Claimed
		total.Succeeded += summary.Succeeded
		total.Retrying += summary.Retrying
		total.Failed += summary.Failed
		total.Errored += summary.Errored
	}

	eventBus.Wait()

	fmt.Printf("rounds=%d claimed=%d succeeded=%d retrying=%d failed=%d errored=%d\n",
		rounds, total.Claimed, total.Succeeded, total.Retrying, total.Failed, total.Errored)
}

func getPositiveIntEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return fallback
	}
	return value
}
