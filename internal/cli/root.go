// Package cli implements the signoff command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"signoff/api/internal/apperr"
	"signoff/api/internal/config"
	"signoff/api/internal/rbac"
	"signoff/api/internal/store"
)

// Opener builds the runtime a command works against.
type Opener func(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Runtime, error)

type rootOptions struct {
	cfg      config.Config
	open     Opener
	logLevel string
	role     string
	userID   string
	userName string
	orgID    string
}

// NewRootCmd returns the signoff command tree. open is called once per
// command that needs the engine.
func NewRootCmd(cfg config.Config, open Opener) *cobra.Command {
	opts := &rootOptions{cfg: cfg, open: open}

	root := &cobra.Command{
		Use:   "signoff",
		Short: "Approval workflow and edit-lock administration",
		Long: `Signoff coordinates team and customer approval of documents, keeps
numbered rendered versions and controls whether a document may be edited.

These commands operate directly on the configured database.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.role, "role", cfg.OperatorRole, "operator role (viewer, editor, approver, admin)")
	root.PersistentFlags().StringVar(&opts.userID, "user", "cli", "acting user ID")
	root.PersistentFlags().StringVar(&opts.userName, "name", "", "acting user display name (defaults to --user)")
	root.PersistentFlags().StringVar(&opts.orgID, "org", "", "organization ID")

	root.AddCommand(
		newMigrateCmd(opts),
		newLockCmd(opts),
		newVersionsCmd(opts),
		newWorkflowCmd(opts),
		newApprovalsCmd(opts),
		newDocumentCmd(opts),
		newCustomerCmd(opts),
	)
	return root
}

// Execute runs the command line against the real infrastructure.
func Execute() error {
	return NewRootCmd(config.Load(), Open).Execute()
}

func (o *rootOptions) actor() store.Actor {
	name := o.userName
	if name == "" {
		name = o.userID
	}
	return store.Actor{UserID: o.userID, DisplayName: name}
}

func (o *rootOptions) logger(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(o.logLevel)}))
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return l
}

func (o *rootOptions) authorize(action rbac.Action) error {
	role := rbac.Normalize(o.role)
	if !rbac.Can(role, action) {
		return apperr.Unauthorized(fmt.Sprintf("role %s may not %s", role, action))
	}
	return nil
}

// withRuntime checks that the operator may perform action, opens the
// runtime, runs fn and closes the runtime again.
func (o *rootOptions) withRuntime(cmd *cobra.Command, action rbac.Action, fn func(ctx context.Context, rt *Runtime) error) error {
	if err := o.authorize(action); err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := o.open(ctx, o.cfg, o.logger(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			rt.Logger.Warn("close runtime", "error", err)
		}
	}()
	return fn(ctx, rt)
}

func (o *rootOptions) requireOrg() (string, error) {
	if strings.TrimSpace(o.orgID) == "" {
		return "", fmt.Errorf("--org is required")
	}
	return o.orgID, nil
}
