package google

import (
	"context"
	"os"
	"testing"
	"time"

	"cariya/internal/core"
)

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), "  ", "Donor View")
	if err == nil {
		t.Fatal("expected error for missing spreadsheet id")
	}
	if err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	for _, k := range []string{"GOOGLE_SERVICE_ACCOUNT_JSON", "GOOGLE_SERVICE_ACCOUNT_FILE", "GOOGLE_APPLICATION_CREDENTIALS"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	if _, err := New(context.Background(), "sheet-id", ""); err == nil {
		t.Fatal("expected error without credentials")
	}
}

func TestWriteDonorView_Uninitialized(t *testing.T) {
	c := &Client{}
	if _, err := c.WriteDonorView(context.Background(), "2025-01", core.DonorView{}); err == nil {
		t.Fatal("expected error for uninitialized service")
	}
}

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		base string
		year int
		want string
	}{
		{"Donor View", 2025, "2025 Donor View"},
		{"2024 Donor View", 2025, "2024 Donor View"},
		{"  Donors ", 2026, "2026 Donors"},
		{"", 2025, ""},
	}
	for _, tt := range tests {
		if got := yearPrefixedName(tt.base, tt.year); got != tt.want {
			t.Errorf("yearPrefixedName(%q, %d) = %q, want %q", tt.base, tt.year, got, tt.want)
		}
	}
}

func TestDonorRows(t *testing.T) {
	view := core.DonorView{
		Rows: []core.DonorRow{
			{
				UserID:                  "JD701234567253",
				FirstName:               "Jane",
				Surname:                 "Doe",
				TotalSavings:            core.Units(3000),
				TotalUserSavings:        core.Units(2000),
				TotalDonorContributions: core.Units(1000),
				Monthly: []core.MonthlyFigures{
					{MonthKey: "2025-02", UserSavings: core.Units(1000)},
					{MonthKey: "2025-01", UserSavings: core.Units(1000), DonorContribution: core.Units(1000)},
				},
			},
			{
				UserID:    "AB700000000131",
				FirstName: "Ann",
				Surname:   "Bee",
				Monthly: []core.MonthlyFigures{
					{MonthKey: "2025-03", UserSavings: core.Units(500)},
				},
			},
		},
		TotalUserSavings:        core.Units(2500),
		TotalDonorContributions: core.Units(1000),
	}

	rows := donorRows("2025-03", view, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	if len(rows) != 5 {
		t.Fatalf("expected title, header, 2 users and totals, got %d rows", len(rows))
	}
	header := rows[1]
	if len(header) != len(fixedHeader)+6 {
		t.Fatalf("expected 3 months x 2 columns, got header %v", header)
	}
	if header[6] != "2025-01 savings" || header[11] != "2025-03 donor" {
		t.Fatalf("month columns not sorted: %v", header)
	}

	jane := rows[2]
	if jane[0] != "JD701234567253" || jane[3] != 3000.0 {
		t.Fatalf("unexpected user row %v", jane)
	}
	if jane[6] != 1000.0 || jane[7] != 1000.0 || jane[9] != 0.0 {
		t.Fatalf("unexpected monthly cells %v", jane[6:])
	}
	ann := rows[3]
	if ann[10] != 500.0 || ann[6] != 0.0 {
		t.Fatalf("missing months should be zero: %v", ann)
	}
	totals := rows[4]
	if totals[0] != "TOTAL" || totals[4] != 2500.0 || totals[5] != 1000.0 {
		t.Fatalf("unexpected totals row %v", totals)
	}
}
