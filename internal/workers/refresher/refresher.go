package refresher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Target reloads the incident snapshot.
type Target interface {
	Refresh(ctx context.Context) (int, error)
}

// Worker refreshes the snapshot on a cron schedule. Runs never overlap: the
// next run is scheduled from the end of the previous one.
type Worker struct {
	logger   *slog.Logger
	schedule cron.Schedule
	spec     string
	target   Target
	timeout  time.Duration
	onResult func(records int, err error)

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// New parses spec, a standard five-field cron expression or a descriptor such
// as "@every 5m" or "@hourly".
func New(logger *slog.Logger, spec string, target Target, timeout time.Duration) (*Worker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	spec = strings.TrimSpace(spec)
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse refresh schedule %q: %w", spec, err)
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Worker{
		logger:   logger,
		schedule: sched,
		spec:     spec,
		target:   target,
		timeout:  timeout,
		now:      time.Now,
		after:    time.After,
	}, nil
}

// OnResult registers a callback invoked after every refresh attempt.
func (w *Worker) OnResult(fn func(records int, err error)) {
	w.onResult = fn
}

// Run refreshes immediately, then on every scheduled tick until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("snapshot refresher started", slog.String("schedule", w.spec))
	w.RunOnce(ctx)
	for {
		now := w.now()
		next := w.schedule.Next(now)
		w.logger.Debug("next snapshot refresh", slog.Time("at", next))
		select {
		case <-ctx.Done():
			w.logger.Info("snapshot refresher stopped")
			return
		case <-w.after(next.Sub(now)):
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single bounded refresh.
func (w *Worker) RunOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := w.now()
	n, err := w.target.Refresh(runCtx)
	if err != nil {
		w.logger.Error("snapshot refresh failed", slog.Any("error", err))
	} else {
		w.logger.Info("snapshot refreshed", slog.Int("records", n), slog.Duration("took", w.now().Sub(start)))
	}
	if w.onResult != nil {
		w.onResult(n, err)
	}
}
