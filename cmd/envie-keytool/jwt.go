package main

import (
	"os"
	"time"

	"github.com/envie/envie-server/src/middleware"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newJWTCmd() *cobra.Command {
	var (
		secret string
		userID string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "jwt",
		Short: "Mint a user JWT for local development",
		Long: `Signs an HS256 token with the server's JWT_SECRET.

The secret defaults to the JWT_SECRET environment variable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("JWT_SECRET")
			}
			if err := middleware.CheckJWTSecret(secret); err != nil {
				return err
			}
			id, err := uuid.Parse(userID)
			if err != nil {
				return err
			}

			token, err := middleware.GenerateUserToken(secret, id, ttl)
			if err != nil {
				return err
			}
			printField(cmd.OutOrStdout(), "token", token)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "JWT signing secret")
	cmd.Flags().StringVar(&userID, "user", "", "user ID (UUID)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
