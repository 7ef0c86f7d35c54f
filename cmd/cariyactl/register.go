package main

import (
	"context"

	"github.com/spf13/cobra"

	"cariya/internal/backend"
	"cariya/internal/services"
)

func newRegisterCmd(opts *rootOptions) *cobra.Command {
	var req services.RegisterRequest
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a program participant",
		Example: "  cariyactl register --first-name Jane --surname Doe --phone 0701234567 " +
			"--children 2 --ages 5/3",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withComponents(cmd, func(ctx context.Context, c *backend.Components) error {
				user, err := c.Users.Register(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"message":      "User registered successfully",
					"generated_id": user.ID,
				})
			})
		},
	}
	cmd.Flags().StringVar(&req.FirstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&req.Surname, "surname", "", "Surname")
	cmd.Flags().StringVar(&req.Phone, "phone", "", "Mobile number")
	cmd.Flags().IntVar(&req.NumChildren, "children", 0, "Number of children")
	cmd.Flags().StringVar(&req.ChildAges, "ages", "", "Children's ages in birth order, separated by / or ,")
	for _, name := range []string{"first-name", "surname", "phone"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}
