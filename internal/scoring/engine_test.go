package scoring

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"cariya/internal/core"
	"cariya/internal/docstore"
	"cariya/internal/docstore/memory"
	"cariya/internal/ledger"
)

func fixedClock(y int, m time.Month) func() time.Time {
	return func() time.Time { return time.Date(y, m, 15, 10, 0, 0, 0, time.UTC) }
}

func newTestEngine(t *testing.T, now func() time.Time) (*Engine, *memory.Store) {
	t.Helper()
	store := memory.New()
	e := NewEngine(store, Config{Unit: core.Units(1000), Window: core.DefaultWindow(), Now: now})
	return e, store
}

func seedUser(t *testing.T, store docstore.Store, id string, children int) {
	t.Helper()
	u := core.User{ID: id, FirstName: "Jane", Surname: "Doe", Phone: "+256701234567", NumChildren: children}
	if err := ledger.New(store).PutUser(context.Background(), u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func getUser(t *testing.T, store docstore.Store, id string) core.User {
	t.Helper()
	u, err := ledger.New(store).GetUser(context.Background(), id)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	return u
}

func TestRecordSavingsAccumulates(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(t, fixedClock(2025, time.February))
	seedUser(t, store, "u1", 1)

	if _, err := e.RecordSavings(ctx, "u1", 1, core.Units(500)); err != nil {
		t.Fatalf("first record: %v", err)
	}
	res, err := e.RecordSavings(ctx, "u1", 1, core.Units(500))
	if err != nil {
		t.Fatalf("second record: %v", err)
	}
	if res.Entry.Savings != core.Units(1000) {
		t.Fatalf("expected accumulated 1000, got %s", res.Entry.Savings)
	}
	if res.Entry.Milestone != 1 {
		t.Fatalf("1000 saved for one child should reach milestone")
	}

	entry, ok, err := ledger.New(store).GetSavings(ctx, "u1", "2025-01")
	if err != nil || !ok {
		t.Fatalf("stored entry missing: ok=%v err=%v", ok, err)
	}
	if entry.Savings != core.Units(1000) {
		t.Fatalf("stored amount = %s, want 1000.00", entry.Savings)
	}
	if got := getUser(t, store, "u1").TotalSavings; got != core.Units(1000) {
		t.Fatalf("user total = %s, want 1000.00", got)
	}
}

func TestRecordSavingsMilestoneBoundary(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(t, fixedClock(2025, time.April))
	seedUser(t, store, "u1", 2)

	res, err := e.RecordSavings(ctx, "u1", 2, core.Money{Cents: core.Units(2000).Cents - 100})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if res.Expected != core.Units(2000) {
		t.Fatalf("expected savings = %s, want 2000.00", res.Expected)
	}
	if res.Entry.Milestone != 0 {
		t.Fatalf("one unit below expected should not reach milestone")
	}
	res, err = e.RecordSavings(ctx, "u1", 2, core.Units(1))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if res.Entry.Milestone != 1 {
		t.Fatalf("exactly expected should reach milestone")
	}
}

func TestRecordSavingsValidation(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(t, fixedClock(2025, time.March))
	seedUser(t, store, "u1", 1)

	if _, err := e.RecordSavings(ctx, "missing", 1, core.Units(10)); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := e.RecordSavings(ctx, "u1", 1, core.Money{Cents: -1}); !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for negative amount, got %v", err)
	}
	if _, err := e.RecordSavings(ctx, "u1", 0, core.Units(10)); !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for month 0, got %v", err)
	}

	res, err := e.RecordSavings(ctx, "u1", 9, core.Units(10))
	if err != nil {
		t.Fatalf("record past window end: %v", err)
	}
	if res.Month != 4 || res.Entry.MonthKey != "2025-04" {
		t.Fatalf("month past the window end should clamp to 4, got %d (%s)", res.Month, res.Entry.MonthKey)
	}
}

func TestRecordActivityValidation(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(t, fixedClock(2025, time.February))
	seedUser(t, store, "u1", 1)

	cases := []struct {
		name     string
		user     string
		month    int
		activity string
		partner  string
		want     error
	}{
		{"unknown user", "missing", 1, "Workshop", "NGO", core.ErrNotFound},
		{"month zero", "u1", 0, "Workshop", "NGO", core.ErrInvalidInput},
		{"month thirteen", "u1", 13, "Workshop", "NGO", core.ErrInvalidInput},
		{"future month", "u1", 3, "Workshop", "NGO", core.ErrInvalidInput},
		{"empty activity", "u1", 1, " ", "NGO", core.ErrInvalidInput},
		{"empty partner", "u1", 1, "Workshop", "", core.ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := e.RecordActivity(ctx, tc.user, tc.month, tc.activity, tc.partner); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if n := store.Len(docstore.Sub(ledger.UsersCollection, "u1", ledger.ActivitiesCollection)); n != 0 {
		t.Fatalf("rejected activities must not be stored, found %d", n)
	}
}

func TestRecordActivityOverwrites(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(t, fixedClock(2025, time.February))
	seedUser(t, store, "u1", 1)

	if _, err := e.RecordActivity(ctx, "u1", 1, "Workshop", "NGO A"); err != nil {
		t.Fatalf("first activity: %v", err)
	}
	res, err := e.RecordActivity(ctx, "u1", 1, "Training", "NGO B")
	if err != nil {
		t.Fatalf("second activity: %v", err)
	}
	if res.ActivityPoints != 1 {
		t.Fatalf("repeat activity in a month must count once, got %d", res.ActivityPoints)
	}
	a, ok, err := ledger.New(store).GetActivity(ctx, "u1", "2025-01")
	if err != nil || !ok {
		t.Fatalf("activity missing: ok=%v err=%v", ok, err)
	}
	if a.Activity != "Training" || a.Partner != "NGO B" || a.Points != 1 {
		t.Fatalf("activity not overwritten: %+v", a)
	}
	if got := getUser(t, store, "u1").ActivityPoints; got != 1 {
		t.Fatalf("persisted activity points = %d, want 1", got)
	}
}

func TestRecomputeCompliance(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(t, fixedClock(2025, time.April))
	seedUser(t, store, "u1", 1)

	for m := 1; m <= 2; m++ {
		if _, err := e.RecordSavings(ctx, "u1", m, core.Units(1000)); err != nil {
			t.Fatalf("savings month %d: %v", m, err)
		}
	}
	if _, err := e.RecordActivity(ctx, "u1", 1, "Workshop", "NGO"); err != nil {
		t.Fatalf("activity: %v", err)
	}

	score, err := e.RecomputeCompliance(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("RecomputeCompliance: %v", err)
	}
	if score != 3 {
		t.Fatalf("compliance at month 2 = %d, want 3", score)
	}
	u := getUser(t, store, "u1")
	if u.ComplianceScore != 3 || u.MilestoneScore != 2 {
		t.Fatalf("persisted scores = %d/%d, want 3/2", u.ComplianceScore, u.MilestoneScore)
	}

	if score, err := e.RecomputeCompliance(ctx, "u1", 40); err != nil || score != 3 {
		t.Fatalf("window end past the window should clamp: score=%d err=%v", score, err)
	}
	if _, err := e.RecomputeCompliance(ctx, "missing", 2); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecomputeActivityPointsMissingMonths(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(t, fixedClock(2025, time.April))
	seedUser(t, store, "u1", 1)

	points, err := e.RecomputeActivityPoints(ctx, "u1", 4)
	if err != nil {
		t.Fatalf("RecomputeActivityPoints: %v", err)
	}
	if points != 0 {
		t.Fatalf("user without activities should have 0 points, got %d", points)
	}

	for _, m := range []int{1, 3} {
		if _, err := e.RecordActivity(ctx, "u1", m, "Workshop", "NGO"); err != nil {
			t.Fatalf("activity month %d: %v", m, err)
		}
	}
	if points, _ := e.RecomputeActivityPoints(ctx, "u1", 2); points != 1 {
		t.Fatalf("points through month 2 = %d, want 1", points)
	}
	if points, _ := e.RecomputeActivityPoints(ctx, "u1", 4); points != 2 {
		t.Fatalf("points through month 4 = %d, want 2", points)
	}
}

func TestComputeDonorContribution(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(t, fixedClock(2025, time.March))
	seedUser(t, store, "u1", 1)

	if _, err := e.RecordSavings(ctx, "u1", 1, core.Units(1000)); err != nil {
		t.Fatalf("savings: %v", err)
	}
	if _, err := e.RecordActivity(ctx, "u1", 1, "Workshop", "NGO"); err != nil {
		t.Fatalf("activity: %v", err)
	}
	before := getUser(t, store, "u1")

	matched, err := e.ComputeDonorContribution(ctx, "u1", 1)
	if err != nil {
		t.Fatalf("ComputeDonorContribution: %v", err)
	}
	if matched != core.Units(1000) {
		t.Fatalf("matched = %s, want 1000.00", matched)
	}
	after := getUser(t, store, "u1")
	if after.DonorContributions.Cents-before.DonorContributions.Cents != core.Units(1000).Cents {
		t.Fatalf("donor total grew by %d cents", after.DonorContributions.Cents-before.DonorContributions.Cents)
	}
	if after.TotalSavings.Cents-before.TotalSavings.Cents != core.Units(1000).Cents {
		t.Fatalf("savings total grew by %d cents", after.TotalSavings.Cents-before.TotalSavings.Cents)
	}

	again, err := e.ComputeDonorContribution(ctx, "u1", 1)
	if err != nil {
		t.Fatalf("repeat match: %v", err)
	}
	if again != matched {
		t.Fatalf("repeat match returned %s, want %s", again, matched)
	}
	if repeat := getUser(t, store, "u1"); repeat.DonorContributions != after.DonorContributions || repeat.TotalSavings != after.TotalSavings {
		t.Fatalf("repeat match changed totals: %+v", repeat)
	}

	entry, _, _ := ledger.New(store).GetSavings(ctx, "u1", "2025-01")
	if !entry.DonorMatched || entry.DonorContribution != core.Units(1000) {
		t.Fatalf("entry not marked as matched: %+v", entry)
	}
}

func TestComputeDonorContributionWithoutActivity(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(t, fixedClock(2025, time.March))
	seedUser(t, store, "u1", 1)

	if _, err := e.RecordSavings(ctx, "u1", 2, core.Units(1000)); err != nil {
		t.Fatalf("savings: %v", err)
	}
	before := getUser(t, store, "u1")

	matched, err := e.ComputeDonorContribution(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("ComputeDonorContribution: %v", err)
	}
	if matched.Cents != 0 {
		t.Fatalf("no activity should mean no match, got %s", matched)
	}
	if after := getUser(t, store, "u1"); after.DonorContributions != before.DonorContributions || after.TotalSavings != before.TotalSavings {
		t.Fatalf("totals changed without a match")
	}

	// Activity without savings: nothing to match.
	if _, err := e.RecordActivity(ctx, "u1", 1, "Workshop", "NGO"); err != nil {
		t.Fatalf("activity: %v", err)
	}
	if matched, err := e.ComputeDonorContribution(ctx, "u1", 1); err != nil || matched.Cents != 0 {
		t.Fatalf("activity without savings: matched=%s err=%v", matched, err)
	}

	if _, err := e.ComputeDonorContribution(ctx, "missing", 1); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := e.ComputeDonorContribution(ctx, "u1", 5); !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for month outside the window, got %v", err)
	}
}

func TestRecomputeMilestone(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(t, fixedClock(2025, time.March))
	seedUser(t, store, "u1", 2)

	if _, exists, err := e.RecomputeMilestone(ctx, "u1", 1); err != nil || exists {
		t.Fatalf("month without entry: exists=%v err=%v", exists, err)
	}

	if _, err := e.RecordSavings(ctx, "u1", 1, core.Units(1000)); err != nil {
		t.Fatalf("savings: %v", err)
	}
	// Fewer children lowers the expectation below what was saved.
	if err := ledger.New(store).UpdateUser(ctx, "u1", docstore.Fields{ledger.FieldNumChildren: 1}); err != nil {
		t.Fatalf("update user: %v", err)
	}
	flag, exists, err := e.RecomputeMilestone(ctx, "u1", 1)
	if err != nil || !exists || flag != 1 {
		t.Fatalf("flag=%d exists=%v err=%v, want 1 true nil", flag, exists, err)
	}
}

type failingStore struct {
	*memory.Store
}

func (failingStore) RunTransaction(context.Context, func(docstore.Ops) error) error {
	return errors.New("disk I/O error")
}

func TestStorageFailuresAreUnrecoverable(t *testing.T) {
	e := NewEngine(failingStore{memory.New()}, Config{Now: fixedClock(2025, time.March)})
	_, err := e.RecordSavings(context.Background(), "u1", 1, core.Units(1))
	if !errors.Is(err, core.ErrUnrecoverable) {
		t.Fatalf("expected ErrUnrecoverable, got %v", err)
	}
}

func TestSettleMonth(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(t, fixedClock(2025, time.March))
	seedUser(t, store, "u1", 1)

	if _, err := e.RecordSavings(ctx, "u1", 2, core.Units(1000)); err != nil {
		t.Fatalf("savings: %v", err)
	}
	if _, err := e.RecordActivity(ctx, "u1", 2, "Workshop", "NGO"); err != nil {
		t.Fatalf("activity: %v", err)
	}

	st, err := e.SettleMonth(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("SettleMonth: %v", err)
	}
	if !st.HasEntry || st.Milestone != 1 {
		t.Fatalf("unexpected milestone result %+v", st)
	}
	if !st.NewlyMatched || st.DonorMatch != core.Units(1000) {
		t.Fatalf("expected a fresh 1000 match, got %+v", st)
	}
	if st.Scores.ComplianceScore != 2 || st.Scores.ActivityPoints != 1 {
		t.Fatalf("unexpected scores %+v", st.Scores)
	}
	u := getUser(t, store, "u1")
	if u.TotalSavings != core.Units(2000) || u.DonorContributions != core.Units(1000) {
		t.Fatalf("unexpected totals %s / %s", u.TotalSavings, u.DonorContributions)
	}

	again, err := e.SettleMonth(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("second SettleMonth: %v", err)
	}
	if again.NewlyMatched || again.DonorMatch != core.Units(1000) {
		t.Fatalf("second settlement must not match again: %+v", again)
	}
	if u := getUser(t, store, "u1"); u.TotalSavings != core.Units(2000) {
		t.Fatalf("second settlement changed savings total to %s", u.TotalSavings)
	}

	if _, err := e.SettleMonth(ctx, "u1", 0); !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for month 0, got %v", err)
	}
}

func TestRecordSavingsRejectsOverflow(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(t, fixedClock(2025, time.February))
	seedUser(t, store, "u1", 1)

	huge, err := core.ParseMoney("90000000000000000")
	if err != nil {
		t.Fatalf("ParseMoney: %v", err)
	}
	if _, err := e.RecordSavings(ctx, "u1", 1, huge); err != nil {
		t.Fatalf("first record: %v", err)
	}
	if _, err := e.RecordSavings(ctx, "u1", 1, huge); !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput on overflow, got %v", err)
	}

	entry, _, err := ledger.New(store).GetSavings(ctx, "u1", "2025-01")
	if err != nil {
		t.Fatalf("get savings: %v", err)
	}
	if entry.Savings != huge || entry.Milestone != 1 {
		t.Fatalf("rejected write changed the month: %+v", entry)
	}
	if got := getUser(t, store, "u1").TotalSavings; got != huge {
		t.Fatalf("user total = %s, want %s", got, huge)
	}
}

func TestComputeDonorContributionRejectsOverflow(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(t, fixedClock(2025, time.February))
	l := ledger.New(store)
	u := core.User{ID: "u1", FirstName: "Jane", Surname: "Doe", Phone: "+256701234567", NumChildren: 1,
		TotalSavings: core.Money{Cents: math.MaxInt64 - 100}}
	if err := l.PutUser(ctx, u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if err := l.PutSavings(ctx, "u1", core.LedgerEntry{MonthKey: "2025-01", Savings: core.Units(1000), Milestone: 1}); err != nil {
		t.Fatalf("seed savings: %v", err)
	}
	if err := l.PutActivity(ctx, "u1", core.ActivityEntry{MonthKey: "2025-01", Activity: "Workshop", Partner: "NGO", Points: 1}); err != nil {
		t.Fatalf("seed activity: %v", err)
	}

	if _, err := e.ComputeDonorContribution(ctx, "u1", 1); !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput on overflow, got %v", err)
	}
	entry, _, _ := l.GetSavings(ctx, "u1", "2025-01")
	if entry.DonorMatched || entry.DonorContribution.Cents != 0 {
		t.Fatalf("rejected match was recorded: %+v", entry)
	}
}

func TestRecordActivityFollowsWindowLength(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	window, err := core.NewWindow(core.NewYearMonth(2025, 1), core.NewYearMonth(2026, 6))
	if err != nil {
		t.Fatalf("NewWindow: %v", err)
	}
	e := NewEngine(store, Config{Unit: core.Units(1000), Window: window, Now: fixedClock(2026, time.March)})
	seedUser(t, store, "u1", 1)

	if e.CurrentMonth() != 15 {
		t.Fatalf("current month = %d, want 15", e.CurrentMonth())
	}
	res, err := e.RecordActivity(ctx, "u1", 14, "Workshop", "NGO")
	if err != nil {
		t.Fatalf("activity in month 14: %v", err)
	}
	if res.Entry.MonthKey != "2026-02" || res.ActivityPoints != 1 || res.ComplianceScore != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	for _, month := range []int{16, 19} {
		if _, err := e.RecordActivity(ctx, "u1", month, "Workshop", "NGO"); !errors.Is(err, core.ErrInvalidInput) {
			t.Fatalf("month %d: expected ErrInvalidInput, got %v", month, err)
		}
	}

	short, shortStore := newTestEngine(t, fixedClock(2025, time.April))
	seedUser(t, shortStore, "u1", 1)
	if _, err := short.RecordActivity(ctx, "u1", 5, "Workshop", "NGO"); !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("month past a four-month window: expected ErrInvalidInput, got %v", err)
	}
}

func TestUnknownUserReportedBeforeInputErrors(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, fixedClock(2025, time.February))

	if _, err := e.RecordActivity(ctx, "missing", 13, "Workshop", "NGO"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("activity: expected ErrNotFound, got %v", err)
	}
	if _, err := e.RecordActivity(ctx, "missing", 1, "", "NGO"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("empty activity: expected ErrNotFound, got %v", err)
	}
	if _, err := e.RecordSavings(ctx, "missing", 0, core.Units(10)); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("savings month 0: expected ErrNotFound, got %v", err)
	}
	if _, err := e.RecordSavings(ctx, "missing", 1, core.Money{Cents: -5}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("negative savings: expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentSavingsSerialize(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(t, fixedClock(2025, time.February))
	seedUser(t, store, "u1", 1)

	const writers = 50
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.RecordSavings(ctx, "u1", 1, core.Units(10))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("RecordSavings: %v", err)
		}
	}

	entry, _, err := ledger.New(store).GetSavings(ctx, "u1", "2025-01")
	if err != nil {
		t.Fatalf("get savings: %v", err)
	}
	if entry.Savings != core.Units(500) {
		t.Fatalf("month total = %s, want 500.00", entry.Savings)
	}
	if got := getUser(t, store, "u1").TotalSavings; got != core.Units(500) {
		t.Fatalf("user total = %s, want 500.00", got)
	}
}

func TestComplianceAtDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine(t, fixedClock(2025, time.March))
	seedUser(t, store, "u1", 1)
	l := ledger.New(store)
	if err := l.PutSavings(ctx, "u1", core.LedgerEntry{MonthKey: "2025-01", Savings: core.Units(1000), Milestone: 1}); err != nil {
		t.Fatalf("seed savings: %v", err)
	}
	if err := l.PutActivity(ctx, "u1", core.ActivityEntry{MonthKey: "2025-02", Activity: "Workshop", Partner: "NGO", Points: 1}); err != nil {
		t.Fatalf("seed activity: %v", err)
	}

	score, err := e.ComplianceAt(ctx, "u1", e.CurrentMonth())
	if err != nil {
		t.Fatalf("ComplianceAt: %v", err)
	}
	if score != 2 {
		t.Fatalf("score = %d, want 2", score)
	}
	if u := getUser(t, store, "u1"); u.ComplianceScore != 0 || u.MilestoneScore != 0 {
		t.Fatalf("ComplianceAt persisted scores: %+v", u)
	}
	if _, err := e.ComplianceAt(ctx, "missing", 1); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
