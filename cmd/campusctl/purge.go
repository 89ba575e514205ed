package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"campuslink.app/internal/store/pg"
)

func newPurgeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "purge-blacklist",
		Short: "Delete blacklist rows for refresh tokens that have expired",
		RunE: func(c *cobra.Command, _ []string) error {
			return opts.withDB(c.Context(), func(ctx context.Context, db *sql.DB) error {
				n, err := pg.New(db).PurgeExpiredBlacklist(ctx, time.Now())
				if err != nil {
					return err
				}
				fmt.Fprintf(c.OutOrStdout(), "purged %d rows\n", n)
				return nil
			})
		},
	}
}
