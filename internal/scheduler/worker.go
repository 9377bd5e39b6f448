package scheduler

import (
	"context"
	"time"

	"lead_dispatch_backend/internal/dispatch"
	"lead_dispatch_backend/platform/config"
	"lead_dispatch_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Sweeper replays due dispatch attempts.
type Sweeper interface {
	RetrySweep(ctx context.Context) ([]dispatch.AttemptResult, error)
}

type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	sweeper Sweeper
	log     *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, sweeper Sweeper, log *logger.Logger) (*Worker, error) {
	opt, queue, err := connectionFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	w := newWorker(sweeper, log)
	w.server = server
	return w, nil
}

func newWorker(sweeper Sweeper, log *logger.Logger) *Worker {
	if log == nil {
		log = logger.Discard()
	}
	mux := asynq.NewServeMux()
	w := &Worker{
		mux:     mux,
		sweeper: sweeper,
		log:     log,
	}
	mux.HandleFunc(TaskDispatchRetrySweep, w.handleRetrySweep)
	return w
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleRetrySweep(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseRetrySweepPayload(task)
	if err != nil {
		return err
	}

	results, err := w.sweeper.RetrySweep(ctx)
	if err != nil {
		w.log.Error("retry sweep failed", "requestedAt", payload.RequestedAt, "error", err)
		return err
	}

	summary := dispatch.SummarizeSweep(results)
	if summary.Claimed > 0 {
		w.log.Info("retry sweep task done",
			"claimed", summary.Claimed,
			"succeeded", summary.Succeeded,
			"failed", summary.Failed,
			"lag", time.Since(payload.RequestedAt).Round(time.Millisecond).String())
	}
	return nil
}
