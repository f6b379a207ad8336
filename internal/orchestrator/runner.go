package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DefaultPollInterval is how often the runner looks for submitted jobs.
const DefaultPollInterval = 2 * time.Second

// JobProcessor processes every waiting job.
type JobProcessor interface {
	ProcessJobs(ctx context.Context) error
}

// Runner polls for submitted jobs on a fixed interval. Wake triggers an
// immediate cycle.
type Runner struct {
	proc     JobProcessor
	interval time.Duration
	wake     chan struct{}
	logger   zerolog.Logger
}

// NewRunner creates a Runner.
func NewRunner(proc JobProcessor, interval time.Duration, logger zerolog.Logger) *Runner {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Runner{
		proc:     proc,
		interval: interval,
		wake:     make(chan struct{}, 1),
		logger:   logger.With().Str("component", "runner").Logger(),
	}
}

// Wake requests a cycle as soon as the current one finishes. Calls made
// while a wake-up is already pending are coalesced.
func (r *Runner) Wake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info().Dur("interval", r.interval).Msg("starting job runner")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("job runner stopped via context cancellation")
			return ctx.Err()
		case <-ticker.C:
		case <-r.wake:
		}
		r.cycle(ctx)
	}
}

func (r *Runner) cycle(ctx context.Context) {
	r.logger.Debug().Msg("processing spreadsheet jobs")
	start := time.Now()
	if err := r.proc.ProcessJobs(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error().Err(err).Msg("job processing run failed")
		return
	}
	r.logger.Debug().Dur("duration", time.Since(start)).Msg("processing run complete")
}
