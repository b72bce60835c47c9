// Package scheduler drives the one-minute publication sweep that turns due
// PENDING promotions into APPROVED ones and hands them to the dispatcher.
package scheduler

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"promobot/core/logger"
	"promobot/internal/model"
)

// PromotionSource exposes the queries the sweep needs.
type PromotionSource interface {
	FindDue(ctx context.Context, now time.Time) ([]model.Promotion, error)
	UpdateStatus(ctx context.Context, id int64, status model.PromotionStatus) error
}

// Notifier fans a freshly published promotion out to subscribers.
type Notifier interface {
	Dispatch(ctx context.Context, promotionID int64) error
}

// Scheduler runs the sweep on a fixed interval. Stop waits for an in-flight
// sweep to finish; it never interrupts one halfway.
type Scheduler struct {
	promos   PromotionSource
	notifier Notifier
	interval time.Duration
	now      func() time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// New builds a scheduler with the standard one-minute interval.
func New(promos PromotionSource, notifier Notifier) *Scheduler {
	return &Scheduler{
		promos:   promos,
		notifier: notifier,
		interval: time.Minute,
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop. Calling it twice is a no-op.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		go s.run()
	})
}

// Stop halts the loop and blocks until the current sweep, if any, completes.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	<-s.done
}

func (s *Scheduler) run() {
	defer close(s.done)

	logger.Info(context.Background(), "scheduler", "scheduler.started",
		slog.Duration("duration", s.interval),
	)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			logger.Info(context.Background(), "scheduler", "scheduler.stopped")
			return
		case <-ticker.C:
			s.RunSweep(context.Background())
		}
	}
}

// RunSweep executes one publication pass: every due promotion is approved
// and dispatched. Failures are isolated per promotion so one bad row never
// starves the rest of the batch.
func (s *Scheduler) RunSweep(ctx context.Context) {
	now := s.now().UTC()
	due, err := s.promos.FindDue(ctx, now)
	if err != nil {
		logger.Error(ctx, "scheduler", "sweep.query_failed",
			slog.String("err", err.Error()),
		)
		return
	}
	if len(due) == 0 {
		return
	}

	published := 0
	for _, p := range due {
		if err := s.promos.UpdateStatus(ctx, p.ID, model.PromotionApproved); err != nil {
			logger.Error(ctx, "scheduler", "sweep.publish_failed",
				slog.Int64("promotion_id", p.ID),
				slog.String("err", err.Error()),
			)
			continue
		}
		published++

		if err := s.notifier.Dispatch(ctx, p.ID); err != nil {
			logger.Error(ctx, "scheduler", "sweep.dispatch_failed",
				slog.Int64("promotion_id", p.ID),
				slog.String("err", err.Error()),
			)
		}
	}

	logger.Info(ctx, "scheduler", "sweep.done",
		slog.Int("due", len(due)),
		slog.Int("published", published),
	)
}
