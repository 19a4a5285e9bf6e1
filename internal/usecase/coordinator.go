package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"NewsFlow/internal/config"
	"NewsFlow/internal/ports"
)

// Coordinator owns the three pipeline cadences: ingestion, classification
// and the daily digest. Each cadence runs under its own timeout and never
// overlaps itself; the scheduler skips ticks of a still-running job.
type Coordinator struct {
	scheduler ports.Scheduler
	ingest    *Ingestor
	classify  *ClassifyRunner
	digest    *DigestRunner
	cfg       config.SchedulerConfig
	logger    *slog.Logger
}

// NewCoordinator wires the runners to the scheduler.
func NewCoordinator(sched ports.Scheduler, ingest *Ingestor, classify *ClassifyRunner, digest *DigestRunner, cfg config.SchedulerConfig, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		scheduler: sched,
		ingest:    ingest,
		classify:  classify,
		digest:    digest,
		cfg:       cfg,
		logger:    logger,
	}
}

// Start registers the cadences and launches the scheduler.
func (c *Coordinator) Start(ctx context.Context) error {
	jobs := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{"ingest", c.cfg.IngestCron, c.ingest.Run},
		{"classify", c.cfg.ClassifyCron, c.classify.Run},
		{"digest", c.cfg.DigestCron, c.digest.Run},
	}

	for _, job := range jobs {
		job := job
		err := c.scheduler.Schedule(job.name, job.spec, func(ctx context.Context) {
			c.runJob(ctx, job.name, job.run)
		})
		if err != nil {
			return fmt.Errorf("register %s cadence: %w", job.name, err)
		}
	}

	return c.scheduler.Start(ctx)
}

// Stop tears down the scheduler, waiting for in-flight runs.
func (c *Coordinator) Stop(ctx context.Context) error {
	return c.scheduler.Stop(ctx)
}

// RunOnce executes a single full pass outside the scheduler, in pipeline
// order. Used by the one-shot CLI mode.
func (c *Coordinator) RunOnce(ctx context.Context) error {
	for _, step := range []struct {
		name string
		run  func(context.Context) error
	}{
		{"ingest", c.ingest.Run},
		{"classify", c.classify.Run},
		{"digest", c.digest.Run},
	} {
		if err := step.run(ctx); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}
	return nil
}

func (c *Coordinator) runJob(ctx context.Context, name string, run func(context.Context) error) {
	timeout := c.cfg.RunTimeout
	if timeout <= 0 {
		timeout = 20 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	if err := run(ctx); err != nil {
		c.error("job failed", "job", name, "elapsed", time.Since(started), "error", err)
		return
	}
	c.info("job finished", "job", name, "elapsed", time.Since(started))
}

func (c *Coordinator) info(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Info(msg, args...)
	}
}

func (c *Coordinator) error(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Error(msg, args...)
	}
}
