package scheduler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"lead_dispatch_backend/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

type Client struct {
	client *asynq.Client
	queue  string
}

// SweepEnqueuer schedules retry sweeps for the worker.
type SweepEnqueuer interface {
	EnqueueRetrySweep(ctx context.Context, requestedAt time.Time, window time.Duration) error
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	opt, queue, err := connectionFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queue,
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueRetrySweep enqueues one sweep task. Ticks that land inside the same
// window collapse into a single task; a duplicate is not an error.
func (c *Client) EnqueueRetrySweep(ctx context.Context, requestedAt time.Time, window time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}

	// asynq derives the uniqueness key from the payload, so it carries the window start.
	requestedAt = requestedAt.UTC()
	if window > 0 {
		requestedAt = requestedAt.Truncate(window)
	}
	task, err := NewRetrySweepTask(RetrySweepPayload{RequestedAt: requestedAt})
	if err != nil {
		return err
	}

	opts := []asynq.Option{asynq.Queue(c.queue), asynq.MaxRetry(0)}
	if window > 0 {
		opts = append(opts, asynq.Unique(window))
	}

	_, err = c.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

func connectionFromConfig(cfg config.SchedulerConfig) (asynq.RedisClientOpt, string, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return asynq.RedisClientOpt{}, "", fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return asynq.RedisClientOpt{}, "", err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}
	return opt, queue, nil
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, fmt.Errorf("parse redis url: %w", err)
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
