package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cariya/internal/amqp"
	"cariya/internal/core"
	"cariya/internal/docstore"
	"cariya/internal/ledger"
	"cariya/internal/scoring"

	"github.com/google/uuid"
)

// EventPublisher announces ledger changes. Publishing is best effort.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error
}

// UserService orchestrates registration, ledger writes and per-user reads
// across the document store, the scoring engine and AMQP.
type UserService struct {
	store  docstore.Store
	engine *scoring.Engine
	events EventPublisher
}

func NewUserService(store docstore.Store, engine *scoring.Engine, events EventPublisher) *UserService {
	return &UserService{store: store, engine: engine, events: events}
}

type (
	// RegisterRequest carries the raw registration form values.
	RegisterRequest struct {
		FirstName   string `json:"first_name"`
		Surname     string `json:"surname"`
		Phone       string `json:"mobile_number"`
		NumChildren int    `json:"num_children"`
		ChildAges   string `json:"ages_of_children_per_birth_order"`
	}

	// LoginResult identifies the user behind a phone number.
	LoginResult struct {
		UserID string `json:"user_id"`
		Token  string `json:"token"`
	}

	// ComplianceReport is a user's compliance against the best attainable.
	ComplianceReport struct {
		UserID          string `json:"user_id"`
		Month           int    `json:"month"`
		ComplianceScore int    `json:"compliance_score"`
		MaxAttainable   int    `json:"max_attainable"`
	}
)

// Register validates the form, derives the user identifier and stores a new
// user with zero totals. Duplicate phones and identifiers are rejected with
// core.ErrConflict.
func (s *UserService) Register(ctx context.Context, req RegisterRequest) (core.User, error) {
	firstName := strings.TrimSpace(req.FirstName)
	surname := strings.TrimSpace(req.Surname)
	if firstName == "" || surname == "" {
		return core.User{}, fmt.Errorf("%w: first name and surname are required", core.ErrInvalidInput)
	}
	if req.NumChildren < 0 {
		return core.User{}, fmt.Errorf("%w: number of children must be a non-negative integer", core.ErrInvalidInput)
	}
	phone, err := core.NormalizePhone(req.Phone)
	if err != nil {
		return core.User{}, err
	}
	var ages []int
	if req.NumChildren > 0 || strings.TrimSpace(req.ChildAges) != "" {
		ages, err = core.ParseChildAges(req.ChildAges)
		if err != nil {
			return core.User{}, err
		}
	}
	if len(ages) != req.NumChildren {
		return core.User{}, fmt.Errorf("%w: %d ages given for %d children", core.ErrInvalidInput, len(ages), req.NumChildren)
	}
	id, err := core.DeriveIdentifier(firstName, surname, phone, req.NumChildren, req.ChildAges)
	if err != nil {
		return core.User{}, err
	}

	user := core.User{
		ID:          id,
		FirstName:   firstName,
		Surname:     surname,
		Phone:       phone,
		NumChildren: req.NumChildren,
		ChildAges:   ages,
	}

	err = s.store.RunTransaction(ctx, func(tx docstore.Ops) error {
		l := ledger.New(tx)
		if _, taken, err := l.FindByPhone(ctx, phone); err != nil {
			return err
		} else if taken {
			return fmt.Errorf("%w: mobile number %s is already registered", core.ErrConflict, phone)
		}
		exists, err := l.UserExists(ctx, id)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: identifier %s is already registered", core.ErrConflict, id)
		}
		return l.PutUser(ctx, user)
	})
	if err != nil {
		return core.User{}, fmt.Errorf("register user: %w", err)
	}

	slog.InfoContext(ctx, "Registered user", "user_id", id, "num_children", user.NumChildren)
	return user, nil
}

// Login resolves a phone number to its user. Sessions are out of scope: the
// token is an opaque placeholder.
func (s *UserService) Login(ctx context.Context, rawPhone string) (LoginResult, error) {
	phone, err := core.NormalizePhone(rawPhone)
	if err != nil {
		return LoginResult{}, err
	}
	user, ok, err := ledger.New(s.store).FindByPhone(ctx, phone)
	if err != nil {
		return LoginResult{}, fmt.Errorf("login: %w", err)
	}
	if !ok {
		return LoginResult{}, fmt.Errorf("%w: no user with mobile number %s", core.ErrNotFound, phone)
	}
	return LoginResult{UserID: user.ID, Token: uuid.NewString()}, nil
}

// RecordSavings records a contribution and publishes a ledger event.
func (s *UserService) RecordSavings(ctx context.Context, userID string, month int, amount core.Money) (scoring.SavingsResult, error) {
	res, err := s.engine.RecordSavings(ctx, userID, month, amount)
	if err != nil {
		return scoring.SavingsResult{}, err
	}
	msg := amqp.NewLedgerEventMessage(amqp.EventSavingsRecorded, userID, res.Entry.MonthKey)
	msg.AmountCents = amount.Cents
	msg.ComplianceScore = res.ComplianceScore
	s.publish(ctx, msg)
	return res, nil
}

// RecordActivity records the month's activity and publishes a ledger event.
func (s *UserService) RecordActivity(ctx context.Context, userID string, month int, activity, partner string) (scoring.ActivityResult, error) {
	res, err := s.engine.RecordActivity(ctx, userID, month, activity, partner)
	if err != nil {
		return scoring.ActivityResult{}, err
	}
	msg := amqp.NewLedgerEventMessage(amqp.EventActivityRecorded, userID, res.Entry.MonthKey)
	msg.ComplianceScore = res.ComplianceScore
	s.publish(ctx, msg)
	return res, nil
}

// Summary returns the user's monthly savings and scores.
func (s *UserService) Summary(ctx context.Context, userID string) (core.UserSummary, error) {
	l := ledger.New(s.store)
	user, err := l.GetUser(ctx, userID)
	if err != nil {
		return core.UserSummary{}, err
	}
	entries, err := l.ListSavings(ctx, userID)
	if err != nil {
		return core.UserSummary{}, fmt.Errorf("%w: %w", core.ErrUnrecoverable, err)
	}

	var total core.Money
	monthly := make([]core.MonthlyFigures, 0, len(entries))
	for _, e := range entries {
		total = total.Add(e.Savings)
		monthly = append(monthly, core.MonthlyFigures{
			MonthKey:          e.MonthKey,
			UserSavings:       e.Savings,
			DonorContribution: e.DonorContribution,
			Milestone:         e.Milestone,
		})
	}
	return core.UserSummary{
		UserID:          user.ID,
		FirstName:       user.FirstName,
		Surname:         user.Surname,
		TotalSavings:    total,
		Monthly:         monthly,
		ActivityPoints:  user.ActivityPoints,
		MilestoneScore:  user.MilestoneScore,
		ComplianceScore: user.ComplianceScore,
	}, nil
}

// Compliance reports the user's compliance at the current month against the
// maximum attainable so far. It does not write to the store.
func (s *UserService) Compliance(ctx context.Context, userID string) (ComplianceReport, error) {
	month := s.engine.CurrentMonth()
	score, err := s.engine.ComplianceAt(ctx, userID, month)
	if err != nil {
		return ComplianceReport{}, err
	}
	return ComplianceReport{
		UserID:          userID,
		Month:           month,
		ComplianceScore: score,
		MaxAttainable:   2 * month,
	}, nil
}

func (s *UserService) publish(ctx context.Context, msg *amqp.LedgerEventMessage) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishLedgerEvent(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"type", msg.Type,
			"user_id", msg.UserID,
			"error", err)
	}
}
