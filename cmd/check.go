package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check <user-id> <permission>",
	Short: "Report whether a user holds a permission",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDependencies(func(ctx context.Context, deps *Dependencies) error {
			user, err := findUser(ctx, deps, args[0])
			if err != nil {
				return err
			}

			granted, err := deps.Resolver.Can(ctx, user, args[1])
			if err != nil {
				return err
			}

			verdict := "denied"
			if granted {
				verdict = "granted"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[1], verdict)

			primary, err := deps.Resolver.GetPrimaryRole(ctx, user)
			if err != nil {
				return err
			}
			if primary != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "primary role: %s\n", primary.Name)
			}

			return printPermissions(ctx, cmd, deps, user)
		})
	},
}
