package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"hama/estate/internal/metrics"
)

// Runner runs fire-and-forget work in the background. Failures and panics
// are logged and counted, never returned.
type Runner struct {
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewRunner returns a Runner that gives each job at most timeout.
func NewRunner(timeout time.Duration) *Runner {
	return &Runner{timeout: timeout}
}

// Go starts fn on its own goroutine with a fresh context, detached from the
// caller's cancellation.
func (r *Runner) Go(name string, fn func(ctx context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.run(fn); err != nil {
			metrics.BestEffortFailures.WithLabelValues(name).Inc()
			log.Warn().Err(err).Str("task", name).Msg("best-effort task failed")
		}
	}()
}

func (r *Runner) run(fn func(ctx context.Context) error) (err error) {
	ctx := context.Background()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx)
}

// Wait blocks until every started job has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}
