package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"cariya/internal/core"
	ports "cariya/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Base sheet name without year (e.g. "Donor View"); the processed
	// month's year is prefixed.
	donorSheetBase string
	now            func() time.Time
}

// Ensure interface conformance
var _ ports.DonorReportWriter = (*Client)(nil)

// New creates a Sheets client authenticated with service account
// credentials from the environment.
func New(ctx context.Context, spreadsheetID, donorSheetBase string) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	donorSheetBase = strings.TrimSpace(donorSheetBase)
	if donorSheetBase == "" {
		donorSheetBase = "Donor View"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, donorSheetBase: donorSheetBase, now: time.Now}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Uses GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created", "credentials_size", len(credentialsJSON))
	return service, nil
}

// WriteDonorView replaces the contents of the year's donor sheet with view.
func (c *Client) WriteDonorView(ctx context.Context, monthKey string, view core.DonorView) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	ym, err := core.ParseYearMonth(monthKey)
	if err != nil {
		return "", err
	}
	sheet := yearPrefixedName(c.donorSheetBase, ym.Year)

	_, err = c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, sheet+"!A:ZZ", &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to clear sheet %s: %w", sheet, err)
	}

	rows := donorRows(monthKey, view, c.now())
	rng := fmt.Sprintf("%s!A1", sheet)
	vr := &gsheet.ValueRange{Values: rows}
	resp, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to update sheet %s: %w", sheet, err)
	}

	slog.InfoContext(ctx, "Donor view written to sheet",
		"sheet", sheet,
		"month", monthKey,
		"rows", len(view.Rows),
		"updated_range", resp.UpdatedRange)
	return resp.UpdatedRange, nil
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
