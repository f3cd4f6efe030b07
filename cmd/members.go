package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/frahmantamala/membership-portal/internal/member"
	memberPostgres "github.com/frahmantamala/membership-portal/internal/member/postgres"
	"github.com/spf13/cobra"
)

var membersCmd = &cobra.Command{
	Use:   "members",
	Short: "Browse the member directory as a user",
}

var memberFilter member.Filter

var membersListCmd = &cobra.Command{
	Use:   "list <user-id>",
	Short: "List the members a user may see, scoped to their affiliations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDependencies(func(ctx context.Context, deps *Dependencies) error {
			user, err := findUser(ctx, deps, args[0])
			if err != nil {
				return err
			}

			service := member.NewService(memberPostgres.NewMemberRepository(deps.DB, deps.Scoper), deps.Resolver, deps.Logger)
			page, err := service.ListMembers(ctx, user, memberFilter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "user %d members: %d total, page %d, page size %d\n", user.ID, page.Total, page.Page, page.PageSize)
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tEMAIL\tSTATUS\tAFFILIATION")
			for _, m := range page.Members {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\n", m.ID, m.Name, m.Email, m.Status, m.AffiliationID)
			}
			return w.Flush()
		})
	},
}

func init() {
	flags := membersListCmd.Flags()
	flags.Int64Var(&memberFilter.AffiliationID, "affiliation", 0, "only members of this affiliation id")
	flags.StringVar(&memberFilter.AffiliationType, "type", "", "only members of affiliations of this type")
	flags.StringVar(&memberFilter.Search, "search", "", "case-insensitive match on name or email")
	flags.StringVar(&memberFilter.Status, "status", "", "active, inactive or alumni")
	flags.IntVar(&memberFilter.Page, "page", 1, "1-based page number")
	flags.IntVar(&memberFilter.PageSize, "page-size", member.DefaultPageSize, "rows per page")

	membersCmd.AddCommand(membersListCmd)
}
