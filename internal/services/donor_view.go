package services

import (
	"context"
	"fmt"

	"cariya/internal/core"
	"cariya/internal/docstore"
	"cariya/internal/ledger"
)

// BuildDonorView rolls every user's monthly savings and donor matches up
// into the read-only donor view. Users are ordered by id.
func BuildDonorView(ctx context.Context, ops docstore.Ops) (core.DonorView, error) {
	l := ledger.New(ops)
	users, err := l.ListUsers(ctx)
	if err != nil {
		return core.DonorView{}, fmt.Errorf("%w: %w", core.ErrUnrecoverable, err)
	}

	view := core.DonorView{Rows: make([]core.DonorRow, 0, len(users))}
	for _, u := range users {
		entries, err := l.ListSavings(ctx, u.ID)
		if err != nil {
			return core.DonorView{}, fmt.Errorf("%w: %w", core.ErrUnrecoverable, err)
		}
		row := core.DonorRow{
			UserID:                  u.ID,
			FirstName:               u.FirstName,
			Surname:                 u.Surname,
			TotalSavings:            u.TotalSavings,
			TotalDonorContributions: u.DonorContributions,
			Monthly:                 make([]core.MonthlyFigures, 0, len(entries)),
		}
		for _, e := range entries {
			row.TotalUserSavings = row.TotalUserSavings.Add(e.Savings)
			row.Monthly = append(row.Monthly, core.MonthlyFigures{
				MonthKey:          e.MonthKey,
				UserSavings:       e.Savings,
				DonorContribution: e.DonorContribution,
				Milestone:         e.Milestone,
			})
		}
		view.TotalUserSavings = view.TotalUserSavings.Add(row.TotalUserSavings)
		view.TotalDonorContributions = view.TotalDonorContributions.Add(row.TotalDonorContributions)
		view.Rows = append(view.Rows, row)
	}
	return view, nil
}

// DonorView is BuildDonorView over the service's store.
func (s *UserService) DonorView(ctx context.Context) (core.DonorView, error) {
	return BuildDonorView(ctx, s.store)
}
