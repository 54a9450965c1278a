package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"signoff/api/internal/approval"
	"signoff/api/internal/rbac"
)

func newCustomerCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "customer",
		Short: "Record customer decisions",
	}

	var shareID, comment string
	decide := &cobra.Command{
		Use:   "decide <workflow-id> <approved|rejected>",
		Short: "Record the customer's decision on the active customer stage",
		Long: `Decide records the customer's answer for a workflow. --share must match the
share ID of the customer review link. A rejection needs --comment.`,
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{approval.DecisionApproved, approval.DecisionRejected},
		RunE: func(cmd *cobra.Command, args []string) error {
			if shareID == "" {
				return fmt.Errorf("--share is required")
			}
			return opts.withRuntime(cmd, rbac.ActionDecide, func(ctx context.Context, rt *Runtime) error {
				if err := rt.Coordinator.SubmitCustomerDecision(ctx, args[0], shareID, args[1], comment, opts.actor()); err != nil {
					return err
				}
				st, err := rt.Coordinator.GetWorkflowStatus(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "customer %s recorded, current stage: %s\n", args[1], st.CurrentStage)
				return nil
			})
		},
	}
	decide.Flags().StringVar(&shareID, "share", "", "share ID from the customer review link")
	decide.Flags().StringVar(&comment, "comment", "", "customer comment")

	cmd.AddCommand(decide)
	return cmd
}
