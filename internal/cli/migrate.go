package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"signoff/api/internal/rbac"
	"signoff/api/internal/store"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.authorize(rbac.ActionMaintain); err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			db, err := store.Open(ctx, opts.cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("database connection failed: %w", err)
			}
			defer db.Close()

			out := cmd.OutOrStdout()
			if dryRun {
				pending, err := store.PendingMigrations(ctx, db, opts.cfg.MigrationsDir)
				if err != nil {
					return err
				}
				for _, m := range pending {
					fmt.Fprintf(out, "pending %s\n", m.Version)
				}
				fmt.Fprintf(out, "%d pending migrations\n", len(pending))
				return nil
			}

			applied, err := store.ApplyMigrations(ctx, db, opts.cfg.MigrationsDir)
			for _, version := range applied {
				fmt.Fprintf(out, "applied %s\n", version)
			}
			if err != nil {
				return fmt.Errorf("migrations failed: %w", err)
			}
			fmt.Fprintf(out, "%d migrations applied from %s\n", len(applied), opts.cfg.MigrationsDir)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list pending migrations without applying them")
	return cmd
}
