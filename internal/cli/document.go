package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"signoff/api/internal/bridge"
	"signoff/api/internal/rbac"
	"signoff/api/internal/store"
)

// approvalFlags collects the approval settings shared by document save and
// workflow create.
type approvalFlags struct {
	approvers       []string
	teamMessage     string
	customer        bool
	customerName    string
	customerEmail   string
	customerCompany string
	customerMessage string
}

func (f *approvalFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&f.approvers, "approver", nil, "team approver as user-id[:name[:email]], repeatable")
	cmd.Flags().StringVar(&f.teamMessage, "team-message", "", "message sent to team approvers")
	cmd.Flags().BoolVar(&f.customer, "customer", false, "require customer approval")
	cmd.Flags().StringVar(&f.customerName, "customer-name", "", "customer contact name")
	cmd.Flags().StringVar(&f.customerEmail, "customer-email", "", "customer contact email")
	cmd.Flags().StringVar(&f.customerCompany, "customer-company", "", "customer contact company")
	cmd.Flags().StringVar(&f.customerMessage, "customer-message", "", "message sent to the customer")
}

func (f *approvalFlags) settings() (store.ApprovalSettings, error) {
	var s store.ApprovalSettings
	for _, raw := range f.approvers {
		a, err := parseApprover(raw)
		if err != nil {
			return s, err
		}
		s.Team.Approvers = append(s.Team.Approvers, a)
	}
	s.Team.Required = len(s.Team.Approvers) > 0
	s.Team.Message = f.teamMessage

	if f.customer || f.customerEmail != "" {
		s.Customer.Required = true
		s.Customer.Message = f.customerMessage
		if f.customerEmail != "" || f.customerName != "" {
			s.Customer.Contact = &store.Contact{Name: f.customerName, Email: f.customerEmail, Company: f.customerCompany}
		}
	}
	return s, nil
}

func parseApprover(raw string) (store.Approver, error) {
	parts := strings.SplitN(raw, ":", 3)
	a := store.Approver{UserID: strings.TrimSpace(parts[0])}
	if a.UserID == "" {
		return a, fmt.Errorf("invalid --approver %q: user ID is empty", raw)
	}
	a.DisplayName = a.UserID
	if len(parts) > 1 && strings.TrimSpace(parts[1]) != "" {
		a.DisplayName = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 {
		a.Email = strings.TrimSpace(parts[2])
	}
	return a, nil
}

func newDocumentCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "document",
		Short: "Save documents and submit them for approval",
	}

	var (
		in          bridge.DocumentInput
		contentFile string
		key         string
		flags       approvalFlags
	)
	save := &cobra.Command{
		Use:   "save",
		Short: "Save a document and start its approval when approvers are given",
		Long: `Save creates a document, or updates the one named by --id, and submits it
for approval when --approver or --customer is set. A locked document is refused.

Pass --idempotency-key to make a retried save resume after the last step
that completed instead of starting over.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			orgID, err := opts.requireOrg()
			if err != nil {
				return err
			}
			if contentFile != "" {
				data, err := os.ReadFile(contentFile)
				if err != nil {
					return fmt.Errorf("read content: %w", err)
				}
				in.MainContent = string(data)
			}
			if strings.TrimSpace(in.Title) == "" {
				return fmt.Errorf("--title is required")
			}
			settings, err := flags.settings()
			if err != nil {
				return err
			}
			in.OrganizationID = orgID

			return opts.withRuntime(cmd, rbac.ActionEdit, func(ctx context.Context, rt *Runtime) error {
				res, err := rt.Bridge.SaveDocumentWithApprovalIntegration(ctx, in, settings, bridge.SaveContext{
					Actor:          opts.actor(),
					OrganizationID: orgID,
					IdempotencyKey: key,
				})
				printSaveResult(cmd, res)
				return err
			})
		},
	}
	save.Flags().StringVar(&in.ID, "id", "", "existing document ID")
	save.Flags().StringVar(&in.Title, "title", "", "document title")
	save.Flags().StringVar(&in.MainContent, "content", "", "document body as HTML")
	save.Flags().StringVar(&contentFile, "content-file", "", "read the document body from a file")
	save.Flags().StringVar(&in.ClientName, "client", "", "client name shown on rendered versions")
	save.Flags().StringArrayVar(&in.BoilerplateSections, "section", nil, "boilerplate section appended to the body, repeatable")
	save.Flags().StringVar(&key, "idempotency-key", "", "key that lets a retried save resume")
	flags.bind(save)

	cmd.AddCommand(save)
	return cmd
}

func printSaveResult(cmd *cobra.Command, res bridge.SaveResult) {
	out := cmd.OutOrStdout()
	if res.DocumentID != "" {
		fmt.Fprintf(out, "document: %s\n", res.DocumentID)
	}
	if res.WorkflowID != "" {
		fmt.Fprintf(out, "workflow: %s\n", res.WorkflowID)
	}
	if res.VersionID != "" {
		fmt.Fprintf(out, "version: %s\n", res.VersionID)
	}
	if res.Links.Team != "" {
		fmt.Fprintf(out, "team link: %s\n", res.Links.Team)
	}
	if res.Links.Customer != "" {
		fmt.Fprintf(out, "customer link: %s\n", res.Links.Customer)
	}
}
