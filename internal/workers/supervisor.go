// Package workers implements the five loops of spec.md §4: Scanner,
// Approver, Synthesizer, Transcoder, and Mover, plus the Supervisor that
// runs them concurrently under one cancellation-linked group.
package workers

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tinkeshwar/videopipeline/internal/logger"
)

// Ticker is any worker loop's single-pass unit of work.
type Ticker interface {
	Tick(ctx context.Context) error
}

// Loop pairs a Ticker with its own interval and name for the Supervisor.
type Loop struct {
	Name     string
	Interval time.Duration
	Worker   Ticker
}

// Supervisor runs each Loop on its own timer inside one errgroup, applying
// the consecutive-failure exponential backoff of spec.md §5 and exiting the
// whole process (a non-nil error from Run) once any loop's consecutive
// failures reach MaxConsecutiveErrors.
type Supervisor struct {
	Loops                []Loop
	BaseRetryDelay       time.Duration
	MaxRetryDelay        time.Duration
	MaxConsecutiveErrors int
}

// Run starts every configured loop and blocks until ctx is canceled or one
// loop exhausts its failure budget.
func (s *Supervisor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, loop := range s.Loops {
		loop := loop
		g.Go(func() error {
			return s.runLoop(gctx, loop)
		})
	}
	return g.Wait()
}

func (s *Supervisor) runLoop(ctx context.Context, loop Loop) error {
	log := logger.With("component", "supervisor", "loop", loop.Name)
	consecutiveErrors := 0

	ticker := time.NewTicker(loop.Interval)
	defer ticker.Stop()

	for {
		if err := loop.Worker.Tick(ctx); err != nil {
			consecutiveErrors++
			delay := backoff(s.BaseRetryDelay, consecutiveErrors, s.MaxRetryDelay)
			log.Warn("tick failed", "error", err, "consecutive_errors", consecutiveErrors, "retry_delay", delay)

			if consecutiveErrors >= s.MaxConsecutiveErrors {
				log.Error("exceeded max consecutive errors, stopping", "max", s.MaxConsecutiveErrors)
				return err
			}

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			continue
		}

		consecutiveErrors = 0

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// backoff doubles base per consecutive failure (1-indexed), capped at max.
func backoff(base time.Duration, failures int, max time.Duration) time.Duration {
	d := base
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
