package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/frahmantamala/membership-portal/internal/authz"
	"github.com/spf13/cobra"
)

var rolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "Assign, remove or sync the roles of a user",
}

var permissionsCmd = &cobra.Command{
	Use:   "permissions",
	Short: "Give, revoke or sync the direct permissions of a user",
}

var affiliationsCmd = &cobra.Command{
	Use:   "affiliations",
	Short: "Assign, remove or sync the affiliations of a user",
}

type roleOp func(r *authz.Resolver, ctx context.Context, user *authz.User, refs ...authz.RoleRef) (*authz.User, error)
type permissionOp func(r *authz.Resolver, ctx context.Context, user *authz.User, refs ...authz.PermissionRef) (*authz.User, error)
type affiliationOp func(r *authz.Resolver, ctx context.Context, user *authz.User, ids ...int64) (*authz.User, error)

func roleCommand(use, short string, op roleOp) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <user-id> [role...]",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDependencies(func(ctx context.Context, deps *Dependencies) error {
				user, err := findUser(ctx, deps, args[0])
				if err != nil {
					return err
				}
				if _, err := op(deps.Resolver, ctx, user, authz.RoleNames(args[1:]...)...); err != nil {
					return err
				}
				names, err := deps.Resolver.GetRoleNames(ctx, user)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "user %d roles: %s\n", user.ID, strings.Join(names, ", "))
				return nil
			})
		},
	}
}

func permissionCommand(use, short string, op permissionOp) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <user-id> [permission...]",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDependencies(func(ctx context.Context, deps *Dependencies) error {
				user, err := findUser(ctx, deps, args[0])
				if err != nil {
					return err
				}
				if _, err := op(deps.Resolver, ctx, user, authz.PermissionNames(args[1:]...)...); err != nil {
					return err
				}
				return printPermissions(ctx, cmd, deps, user)
			})
		},
	}
}

func affiliationCommand(use, short string, op affiliationOp) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <user-id> [affiliation-id...]",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args[1:])
			if err != nil {
				return err
			}
			return withDependencies(func(ctx context.Context, deps *Dependencies) error {
				user, err := findUser(ctx, deps, args[0])
				if err != nil {
					return err
				}
				if _, err := op(deps.Resolver, ctx, user, ids...); err != nil {
					return err
				}
				current, err := deps.Resolver.GetAffiliationIDs(ctx, user)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "user %d affiliations: %v\n", user.ID, current)
				return nil
			})
		},
	}
}

func findUser(ctx context.Context, deps *Dependencies, raw string) (*authz.User, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q", raw)
	}
	return deps.Resolver.FindUser(ctx, id)
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func printPermissions(ctx context.Context, cmd *cobra.Command, deps *Dependencies, user *authz.User) error {
	perms, err := deps.Resolver.GetAllPermissions(ctx, user)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(perms))
	for _, p := range perms {
		names = append(names, p.Name)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "user %d permissions: %s\n", user.ID, strings.Join(names, ", "))
	return nil
}

func init() {
	rolesCmd.AddCommand(
		roleCommand("assign", "Assign roles; unknown role names fail the command", (*authz.Resolver).AssignRole),
		roleCommand("remove", "Remove roles; unknown role names are ignored", (*authz.Resolver).RemoveRole),
		roleCommand("sync", "Replace the roles of a user", (*authz.Resolver).SyncRoles),
	)
	permissionsCmd.AddCommand(
		permissionCommand("give", "Grant direct permissions", (*authz.Resolver).GivePermissionTo),
		permissionCommand("revoke", "Revoke direct permissions", (*authz.Resolver).RevokePermissionTo),
		permissionCommand("sync", "Replace the direct permissions of a user", (*authz.Resolver).SyncPermissions),
	)
	affiliationsCmd.AddCommand(
		affiliationCommand("assign", "Assign affiliations by id", (*authz.Resolver).AssignAffiliation),
		affiliationCommand("remove", "Remove affiliations by id", (*authz.Resolver).RemoveAffiliation),
		affiliationCommand("sync", "Replace the affiliations of a user", (*authz.Resolver).SyncAffiliations),
	)
}
