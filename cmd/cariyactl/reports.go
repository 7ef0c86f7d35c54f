package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"cariya/internal/backend"
)

func newSegmentsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "segments",
		Short: "Print compliance tiers, trends and insights",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withComponents(cmd, func(ctx context.Context, c *backend.Components) error {
				rep, err := c.Analyzer.SegmentAndAnalyze(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rep)
			})
		},
	}
}

func newDonorViewCmd(opts *rootOptions) *cobra.Command {
	var export bool
	cmd := &cobra.Command{
		Use:   "donor-view",
		Short: "Print every user's savings and donor contributions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withComponents(cmd, func(ctx context.Context, c *backend.Components) error {
				view, err := c.Reports.DonorView(ctx)
				if err != nil {
					return err
				}
				if export {
					if c.Sheets == nil {
						return errors.New("no donor report sheet configured: set GOOGLE_SPREADSHEET_ID")
					}
					ref, err := c.Sheets.WriteDonorView(ctx, c.Engine.Window().Key(c.Engine.CurrentMonth()), view)
					if err != nil {
						return err
					}
					cmd.PrintErrf("Donor view written to %s\n", ref)
				}
				return printJSON(cmd.OutOrStdout(), view)
			})
		},
	}
	cmd.Flags().BoolVar(&export, "export", false, "Also write the view to the configured donor report sheet")
	return cmd
}
