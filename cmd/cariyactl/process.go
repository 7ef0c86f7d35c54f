package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"cariya/internal/backend"
)

func newProcessMonthCmd(opts *rootOptions) *cobra.Command {
	var month int
	cmd := &cobra.Command{
		Use:   "process-month",
		Short: "Settle a program month for every user",
		Long: "Re-evaluates the month's milestone flags, applies donor matches once " +
			"and recomputes scores. Without --month the month before the current one is settled.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var target *int
			if cmd.Flags().Changed("month") {
				target = &month
			}
			return opts.withComponents(cmd, func(ctx context.Context, c *backend.Components) error {
				sum, err := c.Batch.ProcessMonth(ctx, target)
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), sum); err != nil {
					return err
				}
				if len(sum.Failures) > 0 {
					return fmt.Errorf("%d of %d users failed", len(sum.Failures), sum.Processed+len(sum.Failures))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&month, "month", 0, "Window position of the month to settle (1 is the first program month)")
	return cmd
}
