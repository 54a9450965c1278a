package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"signoff/api/internal/approval"
	"signoff/api/internal/rbac"
)

func newApprovalsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approvals",
		Short: "List and decide team approvals",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List pending approvals of the acting user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			orgID, err := opts.requireOrg()
			if err != nil {
				return err
			}
			return opts.withRuntime(cmd, rbac.ActionRead, func(ctx context.Context, rt *Runtime) error {
				items, err := rt.Tracker.GetApprovalsByUser(ctx, opts.userID, orgID)
				if err != nil {
					return err
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no pending approvals")
					return nil
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "APPROVAL\tDOCUMENT\tWORKFLOW\tREQUESTED")
				for _, a := range items {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.ID, a.DocumentID, a.WorkflowID, formatTime(&a.CreatedAt))
				}
				return w.Flush()
			})
		},
	}

	var comment string
	decide := func(use, short, decision string) *cobra.Command {
		c := &cobra.Command{
			Use:   use + " <approval-id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.withRuntime(cmd, rbac.ActionDecide, func(ctx context.Context, rt *Runtime) error {
					res, err := rt.Coordinator.SubmitTeamDecision(ctx, args[0], opts.userID, decision, comment)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s recorded, team stage %s (%d/%d)\n",
						decision, res.StageStatus, res.ReceivedApprovals, res.RequiredApprovals)
					return nil
				})
			},
		}
		c.Flags().StringVar(&comment, "comment", "", "comment for the document owner")
		return c
	}

	cmd.AddCommand(
		list,
		decide("approve", "Approve as the acting user", approval.DecisionApproved),
		decide("reject", "Reject as the acting user", approval.DecisionRejected),
	)
	return cmd
}
