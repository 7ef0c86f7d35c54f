// Package ledger maps users and their monthly savings and activity entries
// onto document-store collections.
//
// Layout:
//
//	users/{id}
//	users/{id}/monthly_savings/{YYYY-MM}
//	users/{id}/monthly_activities/{YYYY-MM}
package ledger

import (
	"context"
	"errors"
	"fmt"

	"cariya/internal/core"
	"cariya/internal/docstore"
)

const (
	UsersCollection      = "users"
	SavingsCollection    = "monthly_savings"
	ActivitiesCollection = "monthly_activities"
)

// Document field names.
const (
	FieldFirstName          = "first_name"
	FieldSurname            = "surname"
	FieldPhone              = "mobile_number"
	FieldNumChildren        = "num_children"
	FieldChildAges          = "ages_of_children_per_birth_order"
	FieldGeneratedID        = "generated_id"
	FieldTotalSavings       = "savings"
	FieldDonorContributions = "donor_contributions"
	FieldActivityPoints     = "activity_points"
	FieldMilestoneScore     = "milestone_score"
	FieldComplianceScore    = "compliance_score"

	FieldSavings           = "savings"
	FieldMilestone         = "milestone_score"
	FieldDonorContribution = "donor_contribution"
	FieldDonorMatched      = "donor_matched"

	FieldActivity      = "activity"
	FieldPartner       = "partner"
	FieldActivityPoint = "activity_points"
)

// Ledger reads and writes typed records through a docstore.Ops, which is
// either a Store or a transaction handle.
type Ledger struct {
	ops docstore.Ops
}

func New(ops docstore.Ops) *Ledger {
	return &Ledger{ops: ops}
}

func savingsPath(userID string) string {
	return docstore.Sub(UsersCollection, userID, SavingsCollection)
}

func activitiesPath(userID string) string {
	return docstore.Sub(UsersCollection, userID, ActivitiesCollection)
}

// GetUser returns core.ErrNotFound for an unknown id.
func (l *Ledger) GetUser(ctx context.Context, userID string) (core.User, error) {
	doc, err := l.ops.Get(ctx, UsersCollection, userID)
	if err != nil {
		return core.User{}, notFound(err, "user %s", userID)
	}
	return userFromDoc(doc), nil
}

// PutUser writes the full user document.
func (l *Ledger) PutUser(ctx context.Context, u core.User) error {
	if err := l.ops.Set(ctx, UsersCollection, u.ID, userFields(u)); err != nil {
		return fmt.Errorf("put user %s: %w", u.ID, err)
	}
	return nil
}

// UpdateUser merges partial into the user document.
func (l *Ledger) UpdateUser(ctx context.Context, userID string, partial docstore.Fields) error {
	if err := l.ops.Update(ctx, UsersCollection, userID, partial); err != nil {
		return notFound(err, "update user %s", userID)
	}
	return nil
}

// ListUsers returns every user ordered by id.
func (l *Ledger) ListUsers(ctx context.Context) ([]core.User, error) {
	docs, err := l.ops.Query(ctx, UsersCollection)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users := make([]core.User, 0, len(docs))
	for _, d := range docs {
		users = append(users, userFromDoc(d))
	}
	return users, nil
}

// FindByPhone looks a user up by normalized phone number.
func (l *Ledger) FindByPhone(ctx context.Context, phone string) (core.User, bool, error) {
	docs, err := l.ops.Query(ctx, UsersCollection, docstore.Where(FieldPhone, phone))
	if err != nil {
		return core.User{}, false, fmt.Errorf("find user by phone: %w", err)
	}
	if len(docs) == 0 {
		return core.User{}, false, nil
	}
	return userFromDoc(docs[0]), true, nil
}

// UserExists reports whether a user document with id is stored.
func (l *Ledger) UserExists(ctx context.Context, userID string) (bool, error) {
	_, err := l.ops.Get(ctx, UsersCollection, userID)
	return docstore.Exists(err)
}

// GetSavings returns the month's entry and whether it exists.
func (l *Ledger) GetSavings(ctx context.Context, userID, monthKey string) (core.LedgerEntry, bool, error) {
	doc, err := l.ops.Get(ctx, savingsPath(userID), monthKey)
	ok, err := docstore.Exists(err)
	if err != nil || !ok {
		return core.LedgerEntry{MonthKey: monthKey}, false, wrap(err, "get savings %s/%s", userID, monthKey)
	}
	return entryFromDoc(doc), true, nil
}

func (l *Ledger) PutSavings(ctx context.Context, userID string, e core.LedgerEntry) error {
	fields := docstore.Fields{
		FieldSavings:           e.Savings.Cents,
		FieldMilestone:         e.Milestone,
		FieldDonorContribution: e.DonorContribution.Cents,
		FieldDonorMatched:      e.DonorMatched,
	}
	if err := l.ops.Set(ctx, savingsPath(userID), e.MonthKey, fields); err != nil {
		return fmt.Errorf("put savings %s/%s: %w", userID, e.MonthKey, err)
	}
	return nil
}

// ListSavings returns the user's entries ordered by month key.
func (l *Ledger) ListSavings(ctx context.Context, userID string) ([]core.LedgerEntry, error) {
	docs, err := l.ops.Query(ctx, savingsPath(userID))
	if err != nil {
		return nil, fmt.Errorf("list savings %s: %w", userID, err)
	}
	out := make([]core.LedgerEntry, 0, len(docs))
	for _, d := range docs {
		out = append(out, entryFromDoc(d))
	}
	return out, nil
}

// GetActivity returns the month's activity and whether it exists.
func (l *Ledger) GetActivity(ctx context.Context, userID, monthKey string) (core.ActivityEntry, bool, error) {
	doc, err := l.ops.Get(ctx, activitiesPath(userID), monthKey)
	ok, err := docstore.Exists(err)
	if err != nil || !ok {
		return core.ActivityEntry{MonthKey: monthKey}, false, wrap(err, "get activity %s/%s", userID, monthKey)
	}
	return core.ActivityEntry{
		MonthKey: doc.ID,
		Activity: doc.Fields.String(FieldActivity),
		Partner:  doc.Fields.String(FieldPartner),
		Points:   doc.Fields.Int(FieldActivityPoint),
	}, true, nil
}

// PutActivity creates or overwrites the month's activity.
func (l *Ledger) PutActivity(ctx context.Context, userID string, a core.ActivityEntry) error {
	fields := docstore.Fields{
		FieldActivity:      a.Activity,
		FieldPartner:       a.Partner,
		FieldActivityPoint: a.Points,
	}
	if err := l.ops.Set(ctx, activitiesPath(userID), a.MonthKey, fields); err != nil {
		return fmt.Errorf("put activity %s/%s: %w", userID, a.MonthKey, err)
	}
	return nil
}

func userFields(u core.User) docstore.Fields {
	return docstore.Fields{
		FieldFirstName:          u.FirstName,
		FieldSurname:            u.Surname,
		FieldPhone:              u.Phone,
		FieldNumChildren:        u.NumChildren,
		FieldChildAges:          append([]int(nil), u.ChildAges...),
		FieldGeneratedID:        u.ID,
		FieldTotalSavings:       u.TotalSavings.Cents,
		FieldDonorContributions: u.DonorContributions.Cents,
		FieldActivityPoints:     u.ActivityPoints,
		FieldMilestoneScore:     u.MilestoneScore,
		FieldComplianceScore:    u.ComplianceScore,
	}
}

func userFromDoc(d docstore.Document) core.User {
	f := d.Fields
	return core.User{
		ID:                 d.ID,
		FirstName:          f.String(FieldFirstName),
		Surname:            f.String(FieldSurname),
		Phone:              f.String(FieldPhone),
		NumChildren:        f.Int(FieldNumChildren),
		ChildAges:          f.Ints(FieldChildAges),
		TotalSavings:       core.Money{Cents: f.Int64(FieldTotalSavings)},
		DonorContributions: core.Money{Cents: f.Int64(FieldDonorContributions)},
		ActivityPoints:     f.Int(FieldActivityPoints),
		MilestoneScore:     f.Int(FieldMilestoneScore),
		ComplianceScore:    f.Int(FieldComplianceScore),
	}
}

func entryFromDoc(d docstore.Document) core.LedgerEntry {
	f := d.Fields
	return core.LedgerEntry{
		MonthKey:          d.ID,
		Savings:           core.Money{Cents: f.Int64(FieldSavings)},
		Milestone:         f.Int(FieldMilestone),
		DonorContribution: core.Money{Cents: f.Int64(FieldDonorContribution)},
		DonorMatched:      f.Bool(FieldDonorMatched),
	}
}

// notFound maps docstore.ErrNotFound onto core.ErrNotFound.
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("%w: %s", core.ErrNotFound, fmt.Sprintf(format, args...))
	}
	return wrap(err, format, args...)
}

func wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
