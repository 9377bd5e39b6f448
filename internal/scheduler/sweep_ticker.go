package scheduler

import (
	"context"
	"time"

	"lead_dispatch_backend/platform/logger"
)

const defaultSweepInterval = time.Minute

// RetrySweepTicker enqueues a retry sweep on every tick.
type RetrySweepTicker struct {
	enqueuer SweepEnqueuer
	interval time.Duration
	log      *logger.Logger
	now      func() time.Time
}

func NewRetrySweepTicker(enqueuer SweepEnqueuer, interval time.Duration, log *logger.Logger) *RetrySweepTicker {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if log == nil {
		log = logger.Discard()
	}
	return &RetrySweepTicker{
		enqueuer: enqueuer,
		interval: interval,
		log:      log,
		now:      time.Now,
	}
}

func (t *RetrySweepTicker) Run(ctx context.Context) {
	if t == nil || t.enqueuer == nil {
		return
	}

	t.tick(ctx)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tick(ctx)
		}
	}
}

func (t *RetrySweepTicker) tick(ctx context.Context) {
	if err := t.enqueuer.EnqueueRetrySweep(ctx, t.now(), t.interval); err != nil {
		t.log.Warn("retry sweep enqueue failed", "error", err)
	}
}
