package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"signoff/api/internal/rbac"
	"signoff/api/internal/store"
)

func newWorkflowCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Start and inspect approval workflows",
	}

	show := &cobra.Command{
		Use:   "show <workflow-id>",
		Short: "Show stages and decisions of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd, rbac.ActionRead, func(ctx context.Context, rt *Runtime) error {
				st, err := rt.Coordinator.GetWorkflowStatus(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "workflow %s for document %s\n", st.WorkflowID, st.DocumentID)
				fmt.Fprintf(out, "current stage: %s\n", st.CurrentStage)
				if st.FinalStatus != "" {
					fmt.Fprintf(out, "final status: %s at %s\n", st.FinalStatus, formatTime(st.CompletedAt))
				}

				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "STAGE\tSTATUS\tAPPROVALS")
				for _, s := range st.Stages {
					fmt.Fprintf(w, "%s\t%s\t%d/%d\n", s.Kind, s.Status, s.ReceivedApprovals, s.RequiredApprovals)
				}
				if err := w.Flush(); err != nil {
					return err
				}

				if st.Team != nil && len(st.Team.Approvals) > 0 {
					w = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
					fmt.Fprintln(w, "APPROVER\tSTATUS\tCOMMENT")
					for _, a := range st.Team.Approvals {
						comment := ""
						if a.Decision != nil {
							comment = a.Decision.Comment
						}
						fmt.Fprintf(w, "%s\t%s\t%s\n", a.Approver.DisplayName, a.Status, comment)
					}
					if err := w.Flush(); err != nil {
						return err
					}
				}
				if st.Customer != nil {
					fmt.Fprintf(out, "customer: %s %s\n", st.Customer.Choice, st.Customer.Comment)
				}
				return nil
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the workflows of an organization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			orgID, err := opts.requireOrg()
			if err != nil {
				return err
			}
			return opts.withRuntime(cmd, rbac.ActionRead, func(ctx context.Context, rt *Runtime) error {
				items, err := rt.Coordinator.GetWorkflowsByOrganization(ctx, orgID)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "WORKFLOW\tDOCUMENT\tSTAGE\tFINAL\tCREATED")
				for _, wf := range items {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", wf.ID, wf.DocumentID, wf.CurrentStage, wf.FinalStatus, formatTime(&wf.CreatedAt))
				}
				return w.Flush()
			})
		},
	}

	var flags approvalFlags
	create := &cobra.Command{
		Use:   "create <document-id>",
		Short: "Start an approval workflow for a saved document",
		Long: `Create starts a workflow for the document as currently saved and creates
the version under review. At least one of --approver or --customer is needed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := opts.requireOrg()
			if err != nil {
				return err
			}
			settings, err := flags.settings()
			if err != nil {
				return err
			}
			if !settings.Team.Required && !settings.Customer.Required {
				return fmt.Errorf("--approver or --customer is required")
			}
			return opts.withRuntime(cmd, rbac.ActionEdit, func(ctx context.Context, rt *Runtime) error {
				actor := opts.actor()
				workflowID, err := rt.Coordinator.CreateWorkflow(ctx, args[0], orgID, settings, actor)
				if workflowID != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "workflow: %s\n", workflowID)
				}
				if err != nil {
					return err
				}
				status := store.VersionPendingCustomer
				if settings.Team.Required {
					status = store.VersionPendingTeam
				}
				v, err := rt.Bridge.CreateVersionForApproval(ctx, args[0], workflowID, status, actor)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version: %s (v%d, %s)\n", v.ID, v.Version, v.Status)
				return nil
			})
		},
	}
	flags.bind(create)

	cmd.AddCommand(show, list, create)
	return cmd
}
