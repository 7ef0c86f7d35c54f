// Package analytics groups users into compliance tiers and derives
// program-wide trends and insights.
package analytics

import (
	"context"
	"fmt"

	"cariya/internal/core"
	"cariya/internal/docstore"
	"cariya/internal/ledger"
	"cariya/internal/scoring"
)

// NoUsersMessage is reported when there is nobody to segment.
const NoUsersMessage = "No users found to segment"

// Thresholds are absolute compliance scores. A tier is only reachable once
// the maximum attainable score has reached its threshold, so early in the
// window every user is low.
type Thresholds struct {
	High               int
	Moderate           int
	ChildrenAssumption int
}

func DefaultThresholds() Thresholds {
	return Thresholds{High: 18, Moderate: 10, ChildrenAssumption: 1}
}

type (
	// UserScore is one user's line in a tier.
	UserScore struct {
		UserID          string     `json:"user_id"`
		FirstName       string     `json:"first_name"`
		Surname         string     `json:"surname"`
		ComplianceScore int        `json:"compliance_score"`
		TotalSavings    core.Money `json:"total_savings"`
		ActivityPoints  int        `json:"activity_points"`
	}

	Tier struct {
		Users      []UserScore `json:"users"`
		Count      int         `json:"count"`
		Percentage float64     `json:"percentage"`
	}

	Segmentation struct {
		High     Tier `json:"high_compliance"`
		Moderate Tier `json:"moderate_compliance"`
		Low      Tier `json:"low_compliance"`
	}

	Trends struct {
		TotalUsers                int     `json:"total_users"`
		AverageComplianceScore    float64 `json:"average_compliance_score"`
		AverageSavingsPerUser     float64 `json:"average_savings_per_user"`
		ActivityParticipationRate float64 `json:"activity_participation_rate"`
	}

	// Report is the outcome of SegmentAndAnalyze.
	Report struct {
		Month         int          `json:"month"`
		MaxAttainable int          `json:"max_attainable"`
		Segmentation  Segmentation `json:"segmentation"`
		Trends        Trends       `json:"trends"`
		Insights      []string     `json:"insights"`
		Message       string       `json:"message,omitempty"`
	}
)

type Analyzer struct {
	store      docstore.Ops
	engine     *scoring.Engine
	thresholds Thresholds
}

func NewAnalyzer(store docstore.Ops, engine *scoring.Engine, t Thresholds) *Analyzer {
	if t.ChildrenAssumption <= 0 {
		t.ChildrenAssumption = 1
	}
	return &Analyzer{store: store, engine: engine, thresholds: t}
}

// SegmentAndAnalyze classifies every user by stored compliance score at the
// current month M (max attainable 2M) and computes averages, the activity
// participation rate and insights.
func (a *Analyzer) SegmentAndAnalyze(ctx context.Context) (Report, error) {
	month := a.engine.CurrentMonth()
	maxScore := 2 * month
	rep := Report{
		Month:         month,
		MaxAttainable: maxScore,
		Segmentation: Segmentation{
			High:     Tier{Users: []UserScore{}},
			Moderate: Tier{Users: []UserScore{}},
			Low:      Tier{Users: []UserScore{}},
		},
		Insights: []string{},
	}

	users, err := ledger.New(a.store).ListUsers(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("%w: segment users: %w", core.ErrUnrecoverable, err)
	}
	if len(users) == 0 {
		rep.Message = NoUsersMessage
		return rep, nil
	}

	var (
		totalCompliance int
		totalActivities int
		totalSavings    core.Money
	)
	for _, u := range users {
		s := UserScore{
			UserID:          u.ID,
			FirstName:       u.FirstName,
			Surname:         u.Surname,
			ComplianceScore: u.ComplianceScore,
			TotalSavings:    u.TotalSavings,
			ActivityPoints:  u.ActivityPoints,
		}
		tier := &rep.Segmentation.Low
		switch {
		case maxScore >= a.thresholds.High && u.ComplianceScore >= a.thresholds.High:
			tier = &rep.Segmentation.High
		case maxScore >= a.thresholds.Moderate && u.ComplianceScore >= a.thresholds.Moderate:
			tier = &rep.Segmentation.Moderate
		}
		tier.Users = append(tier.Users, s)

		totalCompliance += u.ComplianceScore
		totalActivities += u.ActivityPoints
		totalSavings = totalSavings.Add(u.TotalSavings)
	}

	n := len(users)
	for _, t := range []*Tier{&rep.Segmentation.High, &rep.Segmentation.Moderate, &rep.Segmentation.Low} {
		t.Count = len(t.Users)
		t.Percentage = percent(t.Count, n)
	}
	rep.Trends = Trends{
		TotalUsers:                n,
		AverageComplianceScore:    float64(totalCompliance) / float64(n),
		AverageSavingsPerUser:     totalSavings.Float() / float64(n),
		ActivityParticipationRate: percent(totalActivities, n*month),
	}

	expected := a.engine.Unit().Times(a.thresholds.ChildrenAssumption * month)
	if rep.Segmentation.Low.Percentage > 50 {
		rep.Insights = append(rep.Insights, fmt.Sprintf(
			"%.1f%% of users need intervention to increase engagement. Consider targeted outreach.",
			rep.Segmentation.Low.Percentage))
	}
	if rep.Trends.ActivityParticipationRate < 50 {
		rep.Insights = append(rep.Insights, fmt.Sprintf(
			"Only %.1f%% of possible activities are being completed. Encourage more activity participation.",
			rep.Trends.ActivityParticipationRate))
	}
	if rep.Trends.AverageSavingsPerUser < expected.Float() {
		rep.Insights = append(rep.Insights, fmt.Sprintf(
			"Average savings (%.1f) is below expected (%s per user). Promote savings initiatives.",
			rep.Trends.AverageSavingsPerUser, expected))
	}
	return rep, nil
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
