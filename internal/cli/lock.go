package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"signoff/api/internal/rbac"
)

func newLockCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Inspect and change document edit locks",
	}

	status := &cobra.Command{
		Use:   "status <document-id>",
		Short: "Show the edit lock of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd, rbac.ActionRead, func(ctx context.Context, rt *Runtime) error {
				st, err := rt.Versions.GetEditLockStatus(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !st.Locked {
					fmt.Fprintln(out, "unlocked")
				} else {
					by := ""
					if st.LockedBy != nil {
						by = st.LockedBy.DisplayName
					}
					fmt.Fprintf(out, "locked: %s by %s at %s\n", st.Reason, by, formatTime(st.LockedAt))
				}
				fmt.Fprintf(out, "can request unlock: %t\n", st.CanRequestUnlock)
				if len(st.UnlockRequests) == 0 {
					return nil
				}
				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "REQUEST\tSTATUS\tBY\tREASON")
				for _, req := range st.UnlockRequests {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", req.ID, req.Status, req.RequestedBy.DisplayName, req.Reason)
				}
				return w.Flush()
			})
		},
	}

	unlock := &cobra.Command{
		Use:   "unlock <document-id>",
		Short: "Release the edit lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd, rbac.ActionManageLock, func(ctx context.Context, rt *Runtime) error {
				if err := rt.Bridge.ReleaseEditLock(ctx, args[0], opts.actor()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "document %s unlocked\n", args[0])
				return nil
			})
		},
	}

	var reason string
	request := &cobra.Command{
		Use:   "request <document-id>",
		Short: "Ask the lock holder to release the lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd, rbac.ActionRequestUnlock, func(ctx context.Context, rt *Runtime) error {
				id, err := rt.Versions.RequestUnlock(ctx, args[0], reason, opts.actor())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "unlock request %s filed\n", id)
				return nil
			})
		},
	}
	request.Flags().StringVar(&reason, "reason", "", "why the document needs to be edited")

	approve := &cobra.Command{
		Use:   "approve <document-id> <request-id>",
		Short: "Approve an unlock request and release the lock",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd, rbac.ActionManageLock, func(ctx context.Context, rt *Runtime) error {
				if err := rt.Versions.ApproveUnlockRequest(ctx, args[0], args[1], opts.actor()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "unlock request %s approved\n", args[1])
				return nil
			})
		},
	}

	reject := &cobra.Command{
		Use:   "reject <document-id> <request-id>",
		Short: "Reject an unlock request",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd, rbac.ActionManageLock, func(ctx context.Context, rt *Runtime) error {
				if err := rt.Versions.RejectUnlockRequest(ctx, args[0], args[1], opts.actor()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "unlock request %s rejected\n", args[1])
				return nil
			})
		},
	}

	cmd.AddCommand(status, unlock, request, approve, reject)
	return cmd
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
