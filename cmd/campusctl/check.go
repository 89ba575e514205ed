package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"campuslink.app/internal/client"
	"campuslink.app/internal/httpapi"
)

const smokePassword = "Sm0ke!Check"

func newSmokeCmd(opts *options) *cobra.Command {
	var baseURL string
	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Run a register/login/refresh/logout round trip against a live API",
		RunE: func(c *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(c.Context(), opts.timeout)
			defer cancel()
			res, err := client.Smoke(ctx, client.New(baseURL, nil), smokePassword)
			if err != nil {
				return fmt.Errorf("smoke failed: %w", err)
			}
			fmt.Fprintf(c.OutOrStdout(), "smoke passed: user=%s permissions=%d rotated=%t\n",
				res.UserID, res.Permissions, res.Rotated)
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:8080", "API base URL")
	return cmd
}

func newHealthCmd(opts *options) *cobra.Command {
	var addr, service string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query the gRPC health service",
		RunE: func(c *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(c.Context(), opts.timeout)
			defer cancel()
			h, err := client.DialHealth(addr)
			if err != nil {
				return err
			}
			defer h.Close()
			ok, err := h.Check(ctx, service)
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("NOT_SERVING")
			}
			fmt.Fprintln(c.OutOrStdout(), "SERVING")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:9090", "gRPC address")
	cmd.Flags().StringVar(&service, "service", httpapi.AuthServiceName, "service name to check")
	return cmd
}
