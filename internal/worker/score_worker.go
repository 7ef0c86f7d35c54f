package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"cariya/internal/amqp"
	"cariya/internal/core"
	"cariya/internal/services"
)

// MonthProcessor runs month-end processing.
type MonthProcessor interface {
	ProcessMonthRun(ctx context.Context, runID string, target *int) (services.Summary, error)
}

// Consumer delivers queued processing requests.
type Consumer interface {
	ConsumeScoreMonth(ctx context.Context, handler func(context.Context, *amqp.ScoreMonthMessage) error) error
}

// Invalidator drops cached reports after a run changed the ledger.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// ScoreWorker settles months on request from the queue and on a timer.
type ScoreWorker struct {
	processor MonthProcessor
	consumer  Consumer
	reports   Invalidator
	interval  time.Duration

	mu       sync.Mutex
	lastKey  string
	lastTime time.Time
}

// NewScoreWorker creates a worker. consumer and reports may be nil; without
// a consumer only the periodic run is active.
func NewScoreWorker(processor MonthProcessor, consumer Consumer, reports Invalidator, interval time.Duration) *ScoreWorker {
	return &ScoreWorker{
		processor: processor,
		consumer:  consumer,
		reports:   reports,
		interval:  interval,
	}
}

// HandleScoreMonth processes a single score month message from AMQP.
// Requests the processor rejects as invalid are dropped instead of requeued.
func (w *ScoreWorker) HandleScoreMonth(ctx context.Context, msg *amqp.ScoreMonthMessage) error {
	slog.InfoContext(ctx, "Processing score month message",
		"run_id", msg.RunID,
		"queued_at", msg.Timestamp)

	runID := msg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	_, err := w.run(ctx, runID, msg.Month)
	if errors.Is(err, core.ErrInvalidInput) {
		slog.WarnContext(ctx, "Dropping invalid score month request", "run_id", runID, "error", err)
		return nil
	}
	return err
}

// StartupCheck settles the previous month once when the worker starts, so
// a run missed while it was down is caught up.
func (w *ScoreWorker) StartupCheck(ctx context.Context) error {
	sum, err := w.run(ctx, uuid.NewString(), nil)
	if err != nil {
		return fmt.Errorf("startup run: %w", err)
	}
	slog.InfoContext(ctx, "Startup processing completed",
		"month", sum.MonthKey,
		"processed", sum.Processed,
		"failures", len(sum.Failures))
	return nil
}

// ProcessPeriodic settles the previous month. Matches already applied are
// not repeated, so a second run for the same month only refreshes scores.
func (w *ScoreWorker) ProcessPeriodic(ctx context.Context) error {
	sum, err := w.run(ctx, uuid.NewString(), nil)
	if err != nil {
		return err
	}
	slog.DebugContext(ctx, "Periodic processing completed", "month", sum.MonthKey, "matched", sum.Matched)
	return nil
}

// Run consumes queued requests and fires periodic runs until ctx is
// cancelled or the consumer fails.
func (w *ScoreWorker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if w.consumer != nil {
		g.Go(func() error {
			err := w.consumer.ConsumeScoreMonth(ctx, w.HandleScoreMonth)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		slog.InfoContext(ctx, "Skipping AMQP message consumption - no broker configured")
	}

	if w.interval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(w.interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := w.ProcessPeriodic(ctx); err != nil {
						slog.ErrorContext(ctx, "Periodic processing failed", "error", err)
					}
				}
			}
		})
	}

	return g.Wait()
}

func (w *ScoreWorker) run(ctx context.Context, runID string, target *int) (services.Summary, error) {
	// Queue and timer runs never overlap.
	w.mu.Lock()
	defer w.mu.Unlock()

	sum, err := w.processor.ProcessMonthRun(ctx, runID, target)
	if err != nil {
		return services.Summary{}, err
	}
	w.lastKey = sum.MonthKey
	w.lastTime = time.Now()
	if w.reports != nil {
		w.reports.Invalidate(ctx)
	}
	return sum, nil
}

// LastRun reports the month key and time of the last successful run.
func (w *ScoreWorker) LastRun() (string, time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastKey, w.lastTime
}
