package core

import (
	"errors"
	"strings"
)

type (
	// User is a registered program participant together with the running
	// totals maintained by scoring.
	User struct {
		ID                 string
		FirstName          string
		Surname            string
		Phone              string
		NumChildren        int
		ChildAges          []int
		TotalSavings       Money
		DonorContributions Money
		ActivityPoints     int
		MilestoneScore     int
		ComplianceScore    int
	}

	// LedgerEntry is a user's savings for one month.
	LedgerEntry struct {
		MonthKey          string
		Savings           Money
		Milestone         int
		DonorContribution Money
		DonorMatched      bool
	}

	// ActivityEntry is the activity logged by a user for one month.
	ActivityEntry struct {
		MonthKey string
		Activity string
		Partner  string
		Points   int
	}
)

// ActivityPointValue is the fixed worth of one monthly activity.
const ActivityPointValue = 1

var (
	ErrEmptyActivity = errors.New("empty activity")
	ErrEmptyPartner  = errors.New("empty partner")
)

func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.Surname)
}

func (a ActivityEntry) Validate() error {
	if strings.TrimSpace(a.Activity) == "" {
		return ErrEmptyActivity
	}
	if len(a.Activity) > 200 {
		return errors.New("activity too long (max 200 characters)")
	}
	if strings.TrimSpace(a.Partner) == "" {
		return ErrEmptyPartner
	}
	return nil
}

// MonthlyFigures is one month of a user's savings as seen by donors.
type MonthlyFigures struct {
	MonthKey          string `json:"month"`
	UserSavings       Money  `json:"user_savings"`
	DonorContribution Money  `json:"donor_contribution"`
	Milestone         int    `json:"milestone_score"`
}

// UserSummary is the read model returned for a single user.
type UserSummary struct {
	UserID          string           `json:"user_id"`
	FirstName       string           `json:"first_name"`
	Surname         string           `json:"surname"`
	TotalSavings    Money            `json:"total_savings"`
	Monthly         []MonthlyFigures `json:"monthly_data"`
	ActivityPoints  int              `json:"activity_points"`
	MilestoneScore  int              `json:"milestone_score"`
	ComplianceScore int              `json:"compliance_score"`
}

// DonorRow is one user's line in the donor view.
type DonorRow struct {
	UserID                  string           `json:"user_id"`
	FirstName               string           `json:"first_name"`
	Surname                 string           `json:"surname"`
	TotalSavings            Money            `json:"total_savings"`
	TotalUserSavings        Money            `json:"total_user_savings"`
	TotalDonorContributions Money            `json:"total_donor_contributions"`
	Monthly                 []MonthlyFigures `json:"monthly_data"`
}

// DonorView is the read-only rollup of every user's savings and matches.
type DonorView struct {
	Rows                    []DonorRow `json:"donor_view"`
	TotalUserSavings        Money      `json:"total_user_savings"`
	TotalDonorContributions Money      `json:"total_donor_contributions"`
}
