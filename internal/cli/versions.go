package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"signoff/api/internal/bridge"
	"signoff/api/internal/rbac"
	"signoff/api/internal/store"
)

func newVersionsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "versions",
		Short: "List, share, preview and prune document versions",
	}

	list := &cobra.Command{
		Use:   "list <document-id>",
		Short: "List versions, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd, rbac.ActionRead, func(ctx context.Context, rt *Runtime) error {
				items, err := rt.Versions.GetVersionHistory(ctx, args[0])
				if err != nil {
					return err
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no versions")
					return nil
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "VERSION\tSTATUS\tFILE\tPAGES\tCREATED\tID")
				for _, v := range items {
					fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n", v.Version, v.Status, v.FileName, v.Metadata.PageCount, formatTime(&v.CreatedAt), v.ID)
				}
				return w.Flush()
			})
		},
	}

	keep := opts.cfg.DraftKeepCount
	prune := &cobra.Command{
		Use:   "prune <document-id>",
		Short: "Delete old draft versions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd, rbac.ActionMaintain, func(ctx context.Context, rt *Runtime) error {
				n, err := rt.Versions.DeleteOldDraftVersions(ctx, args[0], keep)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d draft versions\n", n)
				return nil
			})
		},
	}
	prune.Flags().IntVar(&keep, "keep", keep, "number of newest drafts to keep")

	var kind string
	link := &cobra.Command{
		Use:   "link <version-id>",
		Short: "Print the review link of a version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd, rbac.ActionRead, func(ctx context.Context, rt *Runtime) error {
				url, err := rt.Bridge.CreateShareableLink(ctx, args[0], bridge.LinkKind(kind))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), url)
				return nil
			})
		},
	}
	link.Flags().StringVar(&kind, "kind", string(bridge.LinkCustomer), "link kind (team, customer)")

	preview := &cobra.Command{
		Use:   "preview <document-id>",
		Short: "Render the document as saved without creating a version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd, rbac.ActionEdit, func(ctx context.Context, rt *Runtime) error {
				doc, err := rt.Store.GetDocument(ctx, args[0])
				if err != nil {
					return err
				}
				p, err := rt.Versions.CreatePreview(ctx, doc.OrganizationID, store.ContentSnapshot{
					Title:               doc.Title,
					MainContent:         doc.MainContent,
					ClientName:          doc.ClientName,
					BoilerplateSections: doc.BoilerplateSections,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s, %d pages, %d words, %d bytes\n", p.URL, p.FileName, p.PageCount, p.WordCount, p.SizeBytes)
				return nil
			})
		},
	}

	status := &cobra.Command{
		Use:   "status <version-id> <status>",
		Short: "Set the status of a version",
		Long: `Status overrides a version's status. Approving or rejecting the current
version of a document under review advances its workflow the same way a
decision would.`,
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{store.VersionDraft, store.VersionPendingTeam, store.VersionPendingCustomer, store.VersionApproved, store.VersionRejected},
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd, rbac.ActionManageLock, func(ctx context.Context, rt *Runtime) error {
				if err := rt.Versions.UpdateVersionStatus(ctx, args[0], args[1], opts.actor()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %s is now %s\n", args[0], args[1])
				return nil
			})
		},
	}

	cmd.AddCommand(list, prune, link, preview, status)
	return cmd
}
