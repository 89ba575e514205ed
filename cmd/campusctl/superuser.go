package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"campuslink.app/internal/auth"
	"campuslink.app/internal/store/pg"
)

func newSuperuserCmd(opts *options) *cobra.Command {
	var email, name string
	cmd := &cobra.Command{
		Use:   "create-superuser",
		Short: "Create an administrator account",
		Long: `Create an administrator account. The password is read from
$CAMPUSLINK_SUPERUSER_PASSWORD so it never appears in shell history.`,
		RunE: func(c *cobra.Command, _ []string) error {
			password := os.Getenv("CAMPUSLINK_SUPERUSER_PASSWORD")
			if password == "" {
				return errors.New("CAMPUSLINK_SUPERUSER_PASSWORD is not set")
			}
			return opts.withDB(c.Context(), func(ctx context.Context, db *sql.DB) error {
				u, err := createSuperuser(ctx, pg.New(db), email, name, password)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.OutOrStdout(), "created superuser %s (%s)\n", u.Email, u.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&name, "name", "Administrator", "display name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func createSuperuser(ctx context.Context, store auth.Store, email, name, password string) (*auth.User, error) {
	// The token service is required by the constructor but never signs here.
	tokens, err := auth.NewTokenService(auth.TokenConfig{Secret: []byte(strings.Repeat("x", 32))},
		store.Users(ctx), store.Blacklist(ctx))
	if err != nil {
		return nil, err
	}
	svc, err := auth.NewService(store, tokens)
	if err != nil {
		return nil, err
	}
	if err := svc.SyncGroups(ctx); err != nil {
		return nil, err
	}
	u, err := svc.CreateSuperuser(ctx, email, name, password)
	if err != nil {
		var ve *auth.ValidationError
		if errors.As(err, &ve) {
			return nil, fmt.Errorf("%w: %v", err, ve.Fields)
		}
		return nil, err
	}
	return u, nil
}
