package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"checkin/internal/auth"
	"checkin/internal/config"
)

func tokenCommand(cfg config.App) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an operator token for the maintenance endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.OperatorSigningKey == "" {
				return errors.New("OPERATOR_SIGNING_KEY is not set")
			}
			tok, err := auth.Issue(subject, auth.RoleOperator, cfg.JWTIssuer, cfg.OperatorSigningKey, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok.Value)
			cmd.PrintErrf("expires %s\n", tok.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", cfg.OperatorTokenTTL, "token lifetime")
	return cmd
}
