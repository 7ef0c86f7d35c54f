package services

import (
	"context"
	"fmt"
	"log/slog"

	"cariya/internal/analytics"
	"cariya/internal/cache"
	"cariya/internal/core"
	"cariya/internal/docstore"
)

const donorViewKey = "donor-view"

// Reports serves the segmentation report and the donor view through
// read-through caches. Writers call Invalidate after a successful change.
type Reports struct {
	store    docstore.Ops
	analyzer *analytics.Analyzer
	segments cache.Cache[analytics.Report]
	donor    cache.Cache[core.DonorView]
}

// NewReports wires the caches. Either cache may be nil to always rebuild.
func NewReports(store docstore.Ops, analyzer *analytics.Analyzer, segments cache.Cache[analytics.Report], donor cache.Cache[core.DonorView]) *Reports {
	return &Reports{store: store, analyzer: analyzer, segments: segments, donor: donor}
}

// Segments returns the tiered compliance report for the current month.
func (r *Reports) Segments(ctx context.Context, month int) (analytics.Report, error) {
	key := fmt.Sprintf("segments:%d", month)
	if r.segments != nil {
		if rep, ok := r.segments.Get(key); ok {
			return rep, nil
		}
	}
	rep, err := r.analyzer.SegmentAndAnalyze(ctx)
	if err != nil {
		return analytics.Report{}, err
	}
	if r.segments != nil {
		r.segments.Set(key, rep)
	}
	return rep, nil
}

func (r *Reports) DonorView(ctx context.Context) (core.DonorView, error) {
	if r.donor != nil {
		if view, ok := r.donor.Get(donorViewKey); ok {
			return view, nil
		}
	}
	view, err := BuildDonorView(ctx, r.store)
	if err != nil {
		return core.DonorView{}, err
	}
	if r.donor != nil {
		r.donor.Set(donorViewKey, view)
	}
	return view, nil
}

// Invalidate drops every cached report.
func (r *Reports) Invalidate(ctx context.Context) {
	if r.segments != nil {
		r.segments.Purge()
	}
	if r.donor != nil {
		r.donor.Purge()
	}
	slog.DebugContext(ctx, "Report caches invalidated", "component", "cache")
}
