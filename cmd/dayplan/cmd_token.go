package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/daytrip/daytrip/internal/auth"
	"github.com/daytrip/daytrip/internal/bootstrap"
)

func newTokenCmd() *cobra.Command {
	var (
		clientID string
		scopes   []string
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a service token for the DayTrip API",
		Long: fmt.Sprintf(`Issue a signed service token. The signing key, issuer and audience are
read from JWT_SIGNING_KEY, JWT_ISSUER and JWT_AUDIENCE.

Known scopes: %s`, strings.Join(auth.Scopes, ", ")),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := bootstrap.JWTConfigFromEnv()
			if cfg.SigningKey == "" {
				return errors.New("JWT_SIGNING_KEY is not set")
			}
			svc, err := auth.NewJWTService(cfg)
			if err != nil {
				return err
			}

			token, expiresAt, err := svc.IssueToken(clientID, scopes, ttl)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&clientID, "client", "", "Client id (token subject)")
	cmd.Flags().StringSliceVar(&scopes, "scope", []string{auth.ScopePlan}, "Scopes to grant")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.DefaultTokenTTL, "Token lifetime")
	_ = cmd.MarkFlagRequired("client")
	return cmd
}
