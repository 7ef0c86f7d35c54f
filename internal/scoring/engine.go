// Package scoring maintains the per-user derived scores: monthly milestone
// flags, activity points, compliance and donor matches.
//
// Every mutating operation runs inside a single document-store transaction,
// so concurrent writes to the same user are serialized and a failure midway
// leaves nothing behind.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cariya/internal/core"
	"cariya/internal/docstore"
	"cariya/internal/ledger"
)

// Config holds the program parameters the engine scores against.
type Config struct {
	Unit   core.Money
	Window core.Window
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

type Engine struct {
	store  docstore.Store
	unit   core.Money
	window core.Window
	now    func() time.Time
}

func NewEngine(store docstore.Store, cfg Config) *Engine {
	if cfg.Unit == (core.Money{}) {
		cfg.Unit = core.DefaultUnitAmount
	}
	if cfg.Window == (core.Window{}) {
		cfg.Window = core.DefaultWindow()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{store: store, unit: cfg.Unit, window: cfg.Window, now: cfg.Now}
}

func (e *Engine) Window() core.Window { return e.window }

func (e *Engine) Unit() core.Money { return e.unit }

// CurrentMonth is the clamped window position of the clock.
func (e *Engine) CurrentMonth() int {
	return e.window.Current(e.now())
}

// PreviousMonth is the month before CurrentMonth, wrapping to the window end.
func (e *Engine) PreviousMonth() int {
	return e.window.Previous(e.now())
}

type (
	// SavingsResult is the outcome of RecordSavings.
	SavingsResult struct {
		Month           int
		Entry           core.LedgerEntry
		Expected        core.Money
		ComplianceScore int
	}

	// ActivityResult is the outcome of RecordActivity.
	ActivityResult struct {
		Month           int
		Entry           core.ActivityEntry
		ActivityPoints  int
		ComplianceScore int
	}

	// Scores are a user's recomputed totals for a window range.
	Scores struct {
		ActivityPoints  int
		MilestoneScore  int
		ComplianceScore int
	}
)

// RecordSavings adds amount to the user's entry for the month at position
// month, recomputes that month's milestone flag and the user's compliance.
// Positions past the window end are clamped to the end.
func (e *Engine) RecordSavings(ctx context.Context, userID string, month int, amount core.Money) (SavingsResult, error) {
	var res SavingsResult
	err := e.store.RunTransaction(ctx, func(tx docstore.Ops) error {
		l := ledger.New(tx)
		user, err := l.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if err := amount.Validate(); err != nil {
			return fmt.Errorf("%w: savings amount must be non-negative", core.ErrInvalidInput)
		}
		if month < 1 {
			return fmt.Errorf("%w: month must be at least 1, got %d", core.ErrInvalidInput, month)
		}
		month = e.window.Clamp(month)
		key := e.window.Key(month)

		expected, err := core.ExpectedSavings(e.unit, user.NumChildren)
		if err != nil {
			return err
		}

		entry, _, err := l.GetSavings(ctx, userID, key)
		if err != nil {
			return err
		}
		if entry.Savings, err = entry.Savings.Plus(amount); err != nil {
			return err
		}
		total, err := user.TotalSavings.Plus(amount)
		if err != nil {
			return err
		}
		entry.Milestone = core.MilestoneFlag(entry.Savings, expected)
		if err := l.PutSavings(ctx, userID, entry); err != nil {
			return err
		}
		err = l.UpdateUser(ctx, userID, docstore.Fields{
			ledger.FieldTotalSavings: total.Cents,
		})
		if err != nil {
			return err
		}

		scores, err := e.recompute(ctx, l, userID, e.CurrentMonth())
		if err != nil {
			return err
		}
		res = SavingsResult{Month: month, Entry: entry, Expected: expected, ComplianceScore: scores.ComplianceScore}
		return nil
	})
	if err != nil {
		return SavingsResult{}, e.fail(err)
	}

	slog.InfoContext(ctx, "Recorded savings",
		"user_id", userID,
		"month", res.Entry.MonthKey,
		"amount_cents", amount.Cents,
		"month_total_cents", res.Entry.Savings.Cents,
		"milestone", res.Entry.Milestone,
		"compliance_score", res.ComplianceScore)
	return res, nil
}

// RecordActivity stores the activity for the month at position month,
// replacing any earlier one, then recomputes activity points and compliance.
func (e *Engine) RecordActivity(ctx context.Context, userID string, month int, activity, partner string) (ActivityResult, error) {
	entry := core.ActivityEntry{
		Activity: strings.TrimSpace(activity),
		Partner:  strings.TrimSpace(partner),
		Points:   core.ActivityPointValue,
	}
	current := e.CurrentMonth()

	var res ActivityResult
	err := e.store.RunTransaction(ctx, func(tx docstore.Ops) error {
		l := ledger.New(tx)
		if _, err := l.GetUser(ctx, userID); err != nil {
			return err
		}
		if err := entry.Validate(); err != nil {
			return fmt.Errorf("%w: %v", core.ErrInvalidInput, err)
		}
		if month < 1 || month > e.window.Len() {
			return fmt.Errorf("%w: month must be between 1 and %d, got %d", core.ErrInvalidInput, e.window.Len(), month)
		}
		if month > current {
			return fmt.Errorf("%w: month %d is after the current month %d", core.ErrInvalidInput, month, current)
		}
		entry.MonthKey = e.window.Key(month)
		if err := l.PutActivity(ctx, userID, entry); err != nil {
			return err
		}
		scores, err := e.recompute(ctx, l, userID, current)
		if err != nil {
			return err
		}
		res = ActivityResult{
			Month:           month,
			Entry:           entry,
			ActivityPoints:  scores.ActivityPoints,
			ComplianceScore: scores.ComplianceScore,
		}
		return nil
	})
	if err != nil {
		return ActivityResult{}, e.fail(err)
	}

	slog.InfoContext(ctx, "Recorded activity",
		"user_id", userID,
		"month", entry.MonthKey,
		"partner", entry.Partner,
		"activity_points", res.ActivityPoints,
		"compliance_score", res.ComplianceScore)
	return res, nil
}

// RecomputeActivityPoints counts the months in [1, min(windowEnd, window
// length)] that have an activity, persists the count and returns it.
func (e *Engine) RecomputeActivityPoints(ctx context.Context, userID string, windowEnd int) (int, error) {
	var points int
	err := e.store.RunTransaction(ctx, func(tx docstore.Ops) error {
		l := ledger.New(tx)
		if _, err := l.GetUser(ctx, userID); err != nil {
			return err
		}
		var err error
		points, err = e.activityPoints(ctx, l, userID, windowEnd)
		if err != nil {
			return err
		}
		return l.UpdateUser(ctx, userID, docstore.Fields{ledger.FieldActivityPoints: points})
	})
	if err != nil {
		return 0, e.fail(err)
	}
	return points, nil
}

// RecomputeCompliance sums, over months [1, min(windowEnd, window length)],
// the month's milestone flag plus one when an activity exists. The total and
// the sum of milestone flags are persisted on the user.
func (e *Engine) RecomputeCompliance(ctx context.Context, userID string, windowEnd int) (int, error) {
	var score int
	err := e.store.RunTransaction(ctx, func(tx docstore.Ops) error {
		l := ledger.New(tx)
		if _, err := l.GetUser(ctx, userID); err != nil {
			return err
		}
		milestones, compliance, err := e.compliance(ctx, l, userID, windowEnd)
		if err != nil {
			return err
		}
		score = compliance
		return l.UpdateUser(ctx, userID, docstore.Fields{
			ledger.FieldMilestoneScore:  milestones,
			ledger.FieldComplianceScore: compliance,
		})
	})
	if err != nil {
		return 0, e.fail(err)
	}
	return score, nil
}

// ComplianceAt computes the compliance score at windowEnd from the stored
// ledger without writing anything back.
func (e *Engine) ComplianceAt(ctx context.Context, userID string, windowEnd int) (int, error) {
	var score int
	err := e.store.RunTransaction(ctx, func(tx docstore.Ops) error {
		l := ledger.New(tx)
		if _, err := l.GetUser(ctx, userID); err != nil {
			return err
		}
		var err error
		_, score, err = e.compliance(ctx, l, userID, windowEnd)
		return err
	})
	if err != nil {
		return 0, e.fail(err)
	}
	return score, nil
}

// Recompute refreshes activity points, milestone score and compliance at
// windowEnd in one transaction.
func (e *Engine) Recompute(ctx context.Context, userID string, windowEnd int) (Scores, error) {
	var scores Scores
	err := e.store.RunTransaction(ctx, func(tx docstore.Ops) error {
		l := ledger.New(tx)
		if _, err := l.GetUser(ctx, userID); err != nil {
			return err
		}
		var err error
		scores, err = e.recompute(ctx, l, userID, windowEnd)
		return err
	})
	if err != nil {
		return Scores{}, e.fail(err)
	}
	return scores, nil
}

// RecomputeMilestone re-evaluates the milestone flag of the month at
// position month against the user's current expected savings. A month
// without an entry is left untouched and reported as absent.
func (e *Engine) RecomputeMilestone(ctx context.Context, userID string, month int) (int, bool, error) {
	key, err := e.monthKey(month)
	if err != nil {
		return 0, false, err
	}

	var (
		flag   int
		exists bool
	)
	err = e.store.RunTransaction(ctx, func(tx docstore.Ops) error {
		l := ledger.New(tx)
		user, err := l.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		flag, exists, err = e.milestone(ctx, l, user, key)
		return err
	})
	if err != nil {
		return 0, false, e.fail(err)
	}
	return flag, exists, nil
}

// ComputeDonorContribution matches the month's savings 1:1 when the user
// logged an activity that month. The match is recorded on the entry and added
// to the user's donor and savings totals once; later calls for the same
// month return the recorded match without touching the totals.
func (e *Engine) ComputeDonorContribution(ctx context.Context, userID string, month int) (core.Money, error) {
	key, err := e.monthKey(month)
	if err != nil {
		return core.Money{}, err
	}

	var m match
	err = e.store.RunTransaction(ctx, func(tx docstore.Ops) error {
		l := ledger.New(tx)
		user, err := l.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		m, err = e.donorMatch(ctx, l, user, key)
		return err
	})
	if err != nil {
		return core.Money{}, e.fail(err)
	}
	if m.fresh {
		slog.InfoContext(ctx, "Matched donor contribution",
			"user_id", userID,
			"month", key,
			"amount_cents", m.amount.Cents)
	}
	return m.amount, nil
}

// Settlement is the outcome of closing one month for one user.
type Settlement struct {
	Milestone    int
	HasEntry     bool
	DonorMatch   core.Money
	NewlyMatched bool
	Scores       Scores
}

// SettleMonth runs month-end processing for one user in a single
// transaction: the month's milestone flag is re-evaluated, the donor match
// is applied and the user's scores are recomputed at the current month.
func (e *Engine) SettleMonth(ctx context.Context, userID string, month int) (Settlement, error) {
	key, err := e.monthKey(month)
	if err != nil {
		return Settlement{}, err
	}
	current := e.CurrentMonth()

	var st Settlement
	err = e.store.RunTransaction(ctx, func(tx docstore.Ops) error {
		l := ledger.New(tx)
		user, err := l.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if st.Milestone, st.HasEntry, err = e.milestone(ctx, l, user, key); err != nil {
			return err
		}
		m, err := e.donorMatch(ctx, l, user, key)
		if err != nil {
			return err
		}
		st.DonorMatch, st.NewlyMatched = m.amount, m.fresh
		st.Scores, err = e.recompute(ctx, l, userID, current)
		return err
	})
	if err != nil {
		return Settlement{}, e.fail(err)
	}
	return st, nil
}

func (e *Engine) monthKey(month int) (string, error) {
	if !e.window.Contains(month) {
		return "", fmt.Errorf("%w: month must be between 1 and %d, got %d", core.ErrInvalidInput, e.window.Len(), month)
	}
	return e.window.Key(month), nil
}

func (e *Engine) milestone(ctx context.Context, l *ledger.Ledger, user core.User, key string) (int, bool, error) {
	entry, ok, err := l.GetSavings(ctx, user.ID, key)
	if err != nil || !ok {
		return 0, false, err
	}
	expected, err := core.ExpectedSavings(e.unit, user.NumChildren)
	if err != nil {
		return 0, false, err
	}
	flag := core.MilestoneFlag(entry.Savings, expected)
	if flag == entry.Milestone {
		return flag, true, nil
	}
	entry.Milestone = flag
	if err := l.PutSavings(ctx, user.ID, entry); err != nil {
		return 0, false, err
	}
	return flag, true, nil
}

type match struct {
	amount core.Money
	fresh  bool
}

func (e *Engine) donorMatch(ctx context.Context, l *ledger.Ledger, user core.User, key string) (match, error) {
	_, hasActivity, err := l.GetActivity(ctx, user.ID, key)
	if err != nil || !hasActivity {
		return match{}, err
	}
	entry, hasEntry, err := l.GetSavings(ctx, user.ID, key)
	if err != nil || !hasEntry {
		return match{}, err
	}
	if entry.DonorMatched {
		return match{amount: entry.DonorContribution}, nil
	}
	if !entry.Savings.IsPositive() {
		return match{}, nil
	}

	donations, err := user.DonorContributions.Plus(entry.Savings)
	if err != nil {
		return match{}, err
	}
	total, err := user.TotalSavings.Plus(entry.Savings)
	if err != nil {
		return match{}, err
	}

	entry.DonorContribution = entry.Savings
	entry.DonorMatched = true
	if err := l.PutSavings(ctx, user.ID, entry); err != nil {
		return match{}, err
	}
	err = l.UpdateUser(ctx, user.ID, docstore.Fields{
		ledger.FieldDonorContributions: donations.Cents,
		ledger.FieldTotalSavings:       total.Cents,
	})
	if err != nil {
		return match{}, err
	}
	return match{amount: entry.Savings, fresh: true}, nil
}

func (e *Engine) recompute(ctx context.Context, l *ledger.Ledger, userID string, windowEnd int) (Scores, error) {
	points, err := e.activityPoints(ctx, l, userID, windowEnd)
	if err != nil {
		return Scores{}, err
	}
	milestones, compliance, err := e.compliance(ctx, l, userID, windowEnd)
	if err != nil {
		return Scores{}, err
	}
	err = l.UpdateUser(ctx, userID, docstore.Fields{
		ledger.FieldActivityPoints:  points,
		ledger.FieldMilestoneScore:  milestones,
		ledger.FieldComplianceScore: compliance,
	})
	if err != nil {
		return Scores{}, err
	}
	return Scores{ActivityPoints: points, MilestoneScore: milestones, ComplianceScore: compliance}, nil
}

func (e *Engine) activityPoints(ctx context.Context, l *ledger.Ledger, userID string, windowEnd int) (int, error) {
	points := 0
	for m := 1; m <= e.window.Clamp(windowEnd); m++ {
		_, ok, err := l.GetActivity(ctx, userID, e.window.Key(m))
		if err != nil {
			return 0, err
		}
		if ok {
			points += core.ActivityPointValue
		}
	}
	return points, nil
}

// compliance returns the sum of milestone flags and the compliance total.
func (e *Engine) compliance(ctx context.Context, l *ledger.Ledger, userID string, windowEnd int) (int, int, error) {
	var milestones, total int
	for m := 1; m <= e.window.Clamp(windowEnd); m++ {
		key := e.window.Key(m)
		entry, ok, err := l.GetSavings(ctx, userID, key)
		if err != nil {
			return 0, 0, err
		}
		if ok {
			milestones += entry.Milestone
			total += entry.Milestone
		}
		_, ok, err = l.GetActivity(ctx, userID, key)
		if err != nil {
			return 0, 0, err
		}
		if ok {
			total++
		}
	}
	return milestones, total, nil
}

// fail passes domain errors through and marks everything else, storage
// failures included, as unrecoverable.
func (e *Engine) fail(err error) error {
	for _, known := range []error{core.ErrNotFound, core.ErrInvalidInput, core.ErrInvalidFormat, core.ErrConflict, core.ErrUnrecoverable} {
		if errors.Is(err, known) {
			return err
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", core.ErrUnrecoverable, err)
}
