// Package sched owns the periodic drivers: assess-all, dynamic baseline
// updates, correlation refresh, predictions, motor diagnosis and the
// broadcast ticker.
package sched

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// task is one periodic driver.
type task struct {
	name     string
	interval time.Duration
	fn       func(context.Context) error
}

// Scheduler runs registered drivers on independent tickers. Errors and
// panics are confined to the failing iteration; the loop continues.
type Scheduler struct {
	log     *zap.Logger
	metrics *Metrics
	timeout time.Duration
	tasks   []task
}

// New creates a scheduler; timeout bounds each iteration's repository
// work. metrics may be nil.
func New(timeout time.Duration, metrics *Metrics, log *zap.Logger) *Scheduler {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Scheduler{log: log, metrics: metrics, timeout: timeout}
}

// Register adds a periodic driver.
func (s *Scheduler) Register(name string, interval time.Duration, fn func(context.Context) error) {
	s.tasks = append(s.tasks, task{name: name, interval: interval, fn: fn})
}

// Run blocks until the context is cancelled, driving every registered
// task on its own ticker. Each task runs an initial iteration at start.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, t := range s.tasks {
		t := t
		g.Go(func() error {
			ticker := time.NewTicker(t.interval)
			defer ticker.Stop()
			s.iterate(ctx, t)
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					s.iterate(ctx, t)
				}
			}
		})
	}
	err := g.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}

// iterate runs one driver tick with a deadline, recovering panics so a
// broken driver never kills the loop.
func (s *Scheduler) iterate(ctx context.Context, t task) {
	if ctx.Err() != nil {
		return
	}
	tickCtx := ctx
	var cancel context.CancelFunc
	if s.timeout > 0 {
		tickCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return t.fn(tickCtx)
	}()
	s.metrics.TickDuration.WithLabelValues(t.name).Observe(time.Since(start).Seconds())

	if err != nil && ctx.Err() == nil {
		s.metrics.Failures.WithLabelValues(t.name).Inc()
		s.log.Warn("driver iteration failed", zap.String("driver", t.name), zap.Error(err))
	}
}
