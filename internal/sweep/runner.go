package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/nyumbahub/nyumba-backend/pkg/logger"
	"github.com/nyumbahub/nyumba-backend/pkg/metrics"
)

const defaultInterval = 5 * time.Minute

// Job is a unit of sweep work executed each cycle.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// RunnerParams configures the sweep loop.
type RunnerParams struct {
	Logger   *logger.Logger
	Job      Job
	Lock     Lock
	Metrics  *metrics.SweepMetrics
	Interval time.Duration
}

// Runner executes the sweep job on a fixed cadence, holding a distributed
// lock so only one instance sweeps at a time.
type Runner struct {
	logg     *logger.Logger
	job      Job
	lock     Lock
	metrics  *metrics.SweepMetrics
	interval time.Duration
}

// NewRunner builds the sweep runner.
func NewRunner(params RunnerParams) (*Runner, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Job == nil {
		return nil, fmt.Errorf("job required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Runner{
		logg:     params.Logger,
		job:      params.Job,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: interval,
	}, nil
}

// Run starts the sweep loop until the context is canceled.
func (r *Runner) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	r.runCycle(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logg.Info(ctx, "sweep runner context canceled")
			return ctx.Err()
		case <-ticker.C:
			r.runCycle(ctx)
		}
	}
}

func (r *Runner) runCycle(ctx context.Context) {
	locked, err := r.lock.Acquire(ctx)
	if err != nil {
		r.logg.Error(ctx, "sweep lock acquire failed", err)
		r.metrics.IncFailure()
		return
	}
	if !locked {
		r.logg.Info(ctx, "another sweep instance is running; skipping this cycle")
		return
	}
	defer func() {
		if relErr := r.lock.Release(ctx); relErr != nil {
			r.logg.Error(ctx, "failed to release sweep lock", relErr)
		}
	}()

	jobCtx := r.logg.WithField(ctx, "job", r.job.Name())
	start := time.Now()
	err = r.job.Run(jobCtx)
	duration := time.Since(start)
	r.metrics.ObserveDuration(r.job.Name(), duration)

	jobCtx = r.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		r.logg.Error(jobCtx, "sweep cycle failed", err)
		r.metrics.IncFailure()
		return
	}
	r.logg.Info(jobCtx, "sweep cycle completed")
}
