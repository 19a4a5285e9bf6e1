package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"NewsFlow/internal/ports"
)

// CronScheduler drives the pipeline cadences with cron expressions. A job
// that is still running when its next tick arrives is skipped, never stacked.
type CronScheduler struct {
	cron    *cron.Cron
	baseCtx context.Context
	logger  *slog.Logger
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler builds a scheduler in the given timezone.
func NewCronScheduler(loc *time.Location, log *slog.Logger) *CronScheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &CronScheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		logger: log,
	}
}

// Schedule registers a named job under a cron expression.
func (c *CronScheduler) Schedule(name, spec string, job func(context.Context)) error {
	if job == nil {
		return fmt.Errorf("job %s is nil", name)
	}

	var running atomic.Bool
	_, err := c.cron.AddFunc(spec, func() {
		if !running.CompareAndSwap(false, true) {
			c.warn("previous run still in progress, skipping tick", "job", name)
			return
		}
		defer running.Store(false)

		ctx := c.baseCtx
		if ctx == nil {
			ctx = context.Background()
		}
		job(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	return nil
}

// Start launches the cron loop. The context is handed to every job run.
func (c *CronScheduler) Start(ctx context.Context) error {
	c.baseCtx = ctx
	c.cron.Start()
	return nil
}

// Stop halts scheduling and waits for in-flight jobs, bounded by ctx.
func (c *CronScheduler) Stop(ctx context.Context) error {
	done := c.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *CronScheduler) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
