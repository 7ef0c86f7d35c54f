package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cariya/internal/amqp"
	"cariya/internal/core"
	"cariya/internal/docstore"
	"cariya/internal/ledger"
	"cariya/internal/scoring"
	"cariya/internal/sheets"

	"github.com/google/uuid"
)

const noUsersMessage = "No users found to process"

type (
	// Failure is a user whose month could not be settled.
	Failure struct {
		UserID string `json:"user_id"`
		Error  string `json:"error"`
		Err    error  `json:"-"`
	}

	// Summary reports a processing run.
	Summary struct {
		RunID       string    `json:"run_id"`
		Month       int       `json:"month"`
		MonthKey    string    `json:"month_key"`
		Processed   int       `json:"processed"`
		Matched     int       `json:"matched"`
		Failures    []Failure `json:"failures"`
		Message     string    `json:"message"`
		ReportRange string    `json:"report_range,omitempty"`
	}
)

// BatchProcessor runs month-end processing across all users.
type BatchProcessor struct {
	store   docstore.Store
	engine  *scoring.Engine
	events  EventPublisher
	reports sheets.DonorReportWriter
}

// NewBatchProcessor creates a processor. events and reports are optional.
func NewBatchProcessor(store docstore.Store, engine *scoring.Engine, events EventPublisher, reports sheets.DonorReportWriter) *BatchProcessor {
	return &BatchProcessor{
		store:   store,
		engine:  engine,
		events:  events,
		reports: reports,
	}
}

// ProcessMonth settles target for every user: the month's milestone flag is
// re-evaluated, the donor match applied and scores recomputed at the current
// month. A nil target means the month before the current one. One user's
// failure is recorded in the summary and does not stop the run.
func (p *BatchProcessor) ProcessMonth(ctx context.Context, target *int) (Summary, error) {
	return p.ProcessMonthRun(ctx, uuid.NewString(), target)
}

// ProcessMonthRun is ProcessMonth with a caller-chosen run id.
func (p *BatchProcessor) ProcessMonthRun(ctx context.Context, runID string, target *int) (Summary, error) {
	if p.store == nil || p.engine == nil {
		return Summary{}, fmt.Errorf("processor not properly initialized")
	}

	window := p.engine.Window()
	month := p.engine.PreviousMonth()
	if target != nil {
		month = *target
	}
	if !window.Contains(month) {
		return Summary{}, fmt.Errorf("%w: month must be between 1 and %d, got %d", core.ErrInvalidInput, window.Len(), month)
	}

	sum := Summary{RunID: runID, Month: month, MonthKey: window.Key(month), Failures: []Failure{}}

	users, err := ledger.New(p.store).ListUsers(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: %w", core.ErrUnrecoverable, err)
	}
	if len(users) == 0 {
		sum.Message = noUsersMessage
		slog.InfoContext(ctx, noUsersMessage, "run_id", runID, "month", sum.MonthKey)
		return sum, nil
	}

	start := time.Now()
	slog.InfoContext(ctx, "Processing month",
		"run_id", runID,
		"month", sum.MonthKey,
		"users", len(users))

	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		st, err := p.engine.SettleMonth(ctx, u.ID, month)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return sum, err
			}
			slog.ErrorContext(ctx, "Failed to settle month for user",
				"run_id", runID,
				"user_id", u.ID,
				"month", sum.MonthKey,
				"error", err)
			sum.Failures = append(sum.Failures, Failure{UserID: u.ID, Error: err.Error(), Err: err})
			continue
		}
		sum.Processed++
		if st.NewlyMatched {
			sum.Matched++
		}
	}

	sum.Message = fmt.Sprintf("Processed %d of %d users for %s", sum.Processed, len(users), sum.MonthKey)
	slog.InfoContext(ctx, "Month processing complete",
		"run_id", runID,
		"month", sum.MonthKey,
		"processed", sum.Processed,
		"matched", sum.Matched,
		"failures", len(sum.Failures),
		"duration_ms", time.Since(start).Milliseconds())

	p.exportReport(ctx, &sum)
	p.announce(ctx, sum)
	return sum, nil
}

func (p *BatchProcessor) exportReport(ctx context.Context, sum *Summary) {
	if p.reports == nil {
		return
	}
	view, err := BuildDonorView(ctx, p.store)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to build donor view", "run_id", sum.RunID, "error", err)
		return
	}
	ref, err := p.reports.WriteDonorView(ctx, sum.MonthKey, view)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to export donor view", "run_id", sum.RunID, "error", err)
		return
	}
	sum.ReportRange = ref
}

func (p *BatchProcessor) announce(ctx context.Context, sum Summary) {
	if p.events == nil {
		return
	}
	msg := amqp.NewLedgerEventMessage(amqp.EventMonthProcessed, "", sum.MonthKey)
	msg.Processed = sum.Processed
	msg.Failures = len(sum.Failures)
	if err := p.events.PublishLedgerEvent(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish month processed event",
			"run_id", sum.RunID,
			"error", err)
	}
}
