package main

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"campuslink.app/internal/obs"
)

type options struct {
	dsn     string
	timeout time.Duration
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "campusctl",
		Short:         "Operator tooling for the CampusLink auth service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if opts.dsn == "" {
				opts.dsn = os.Getenv("DATABASE_URL")
			}
			level := "warn"
			if opts.verbose {
				level = "info"
			}
			_, err := obs.InitLogger(obs.LogConfig{Level: level, Dev: true})
			return err
		},
	}
	root.PersistentFlags().StringVar(&opts.dsn, "dsn", "", "PostgreSQL DSN (default $DATABASE_URL)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall command timeout")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log each applied file")

	root.AddCommand(newMigrateCmd(opts), newSuperuserCmd(opts), newPurgeCmd(opts),
		newSmokeCmd(opts), newHealthCmd(opts))
	return root
}

// withDB opens the database for the duration of fn.
func (o *options) withDB(parent context.Context, fn func(ctx context.Context, db *sql.DB) error) error {
	if o.dsn == "" {
		return errors.New("missing DSN: pass --dsn or set DATABASE_URL")
	}
	ctx, cancel := context.WithTimeout(parent, o.timeout)
	defer cancel()

	db, err := sql.Open("pgx", o.dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return err
	}
	return fn(ctx, db)
}
