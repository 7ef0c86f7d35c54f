package sheets

import (
	"context"

	"cariya/internal/core"
)

// Ports for outbound adapters.
type (
	// DonorReportWriter publishes the donor view produced by a processing
	// run. monthKey is the processed month ("YYYY-MM").
	DonorReportWriter interface {
		WriteDonorView(ctx context.Context, monthKey string, view core.DonorView) (rangeRef string, err error)
	}
)
