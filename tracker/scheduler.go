package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Cycler runs one poll cycle.
type Cycler interface {
	RunCycle(ctx context.Context) CycleResult
}

// Scheduler runs cycles on a fixed delay measured from the end of the previous
// cycle. Cycles run on the goroutine that called Run, so they never overlap.
type Scheduler struct {
	Cycler   Cycler
	Interval time.Duration
	// RunOnStart runs the first cycle immediately instead of after one interval.
	RunOnStart bool
	// After defaults to time.After.
	After func(time.Duration) <-chan time.Time

	once    sync.Once
	trigger chan chan CycleResult
}

// NewScheduler returns a scheduler for c.
func NewScheduler(c Cycler, interval time.Duration, runOnStart bool) *Scheduler {
	return &Scheduler{Cycler: c, Interval: interval, RunOnStart: runOnStart}
}

func (s *Scheduler) triggers() chan chan CycleResult {
	s.once.Do(func() { s.trigger = make(chan chan CycleResult) })
	return s.trigger
}

func (s *Scheduler) after(d time.Duration) <-chan time.Time {
	if s.After != nil {
		return s.After(d)
	}
	return time.After(d)
}

// Run blocks until ctx is cancelled and returns ctx.Err().
func (s *Scheduler) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = 20 * time.Minute
	}
	slog.Info("match polling started", slog.Duration("interval", interval), slog.Bool("run_on_start", s.RunOnStart), slog.String("component", "tracker"))

	if s.RunOnStart {
		s.Cycler.RunCycle(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			slog.Info("match polling stopped", slog.String("component", "tracker"))
			return ctx.Err()
		case <-s.after(interval):
			s.Cycler.RunCycle(ctx)
		case reply := <-s.triggers():
			reply <- s.Cycler.RunCycle(ctx)
		}
	}
}

// Trigger asks the running scheduler to run a cycle now and waits for its
// result. The next timed cycle is rescheduled from when this one ends.
func (s *Scheduler) Trigger(ctx context.Context) (CycleResult, error) {
	reply := make(chan CycleResult, 1)
	select {
	case s.triggers() <- reply:
	case <-ctx.Done():
		return CycleResult{}, ctx.Err()
	}
	select {
	case r := <-reply:
		return r, nil
	case <-ctx.Done():
		return CycleResult{}, ctx.Err()
	}
}
