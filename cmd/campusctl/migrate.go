package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"campuslink.app/internal/migrate"
	"campuslink.app/migrations"
)

func newMigrateCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	manager := func(db *sql.DB) *migrate.Manager {
		return migrate.NewManager(db, migrations.SQL(), migrations.Seeds())
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(c *cobra.Command, _ []string) error {
				return opts.withDB(c.Context(), func(ctx context.Context, db *sql.DB) error {
					ran, err := manager(db).Up(ctx)
					for _, name := range ran {
						fmt.Fprintln(c.OutOrStdout(), "applied", name)
					}
					if err == nil && len(ran) == 0 {
						fmt.Fprintln(c.OutOrStdout(), "schema up to date")
					}
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			RunE: func(c *cobra.Command, _ []string) error {
				return opts.withDB(c.Context(), func(ctx context.Context, db *sql.DB) error {
					name, err := manager(db).Down(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintln(c.OutOrStdout(), "rolled back", name)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "seed",
			Short: "Apply pending seed files",
			RunE: func(c *cobra.Command, _ []string) error {
				return opts.withDB(c.Context(), func(ctx context.Context, db *sql.DB) error {
					ran, err := manager(db).Seed(ctx)
					for _, name := range ran {
						fmt.Fprintln(c.OutOrStdout(), "seeded", name)
					}
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "List applied and pending migrations",
			RunE: func(c *cobra.Command, _ []string) error {
				return opts.withDB(c.Context(), func(ctx context.Context, db *sql.DB) error {
					m := manager(db)
					applied, err := m.Status(ctx)
					if err != nil {
						return err
					}
					pending, err := m.Pending(ctx)
					if err != nil {
						return err
					}
					for _, name := range applied {
						fmt.Fprintln(c.OutOrStdout(), "applied ", name)
					}
					for _, name := range pending {
						fmt.Fprintln(c.OutOrStdout(), "pending ", name)
					}
					return nil
				})
			},
		},
	)
	return cmd
}
