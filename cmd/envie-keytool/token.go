package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/envie/envie-server/src/keys"
	"github.com/envie/envie-server/src/models"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Generate, inspect and open CLI tokens",
	}
	cmd.AddCommand(newTokenNewCmd(), newTokenInspectCmd(), newTokenOpenCmd())
	return cmd
}

func newTokenNewCmd() *cobra.Command {
	var (
		projectKey string
		name       string
		expiresIn  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Generate a CLI token",
		Long: `Generates a random CLI token and prints the values derived from it.

With --project-key the project key is sealed to the token and the JSON body
for POST /projects/:id/tokens is printed instead.

Examples:
  # Print a token and its identity
  envie-keytool token new

  # Build a registration request for a 30 day token
  envie-keytool token new --project-key <base64> --name ci --expires-in 720h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := keys.GenerateToken()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if projectKey == "" {
				printTokenIdentity(out, tok)
				printWarning(cmd.ErrOrStderr(), "the token is shown once; the server only keeps the identity hash")
				return nil
			}

			key, err := decodeKeyArg("project-key", projectKey)
			if err != nil {
				return err
			}
			if len(key) != keys.KeySize {
				return fmt.Errorf("--project-key must be %d bytes, got %d", keys.KeySize, len(key))
			}
			sealed, err := keys.SealToToken(tok.PublicKey, key)
			if err != nil {
				return err
			}

			req := models.CreateProjectTokenRequest{
				Name:                name,
				ExpiresAt:           time.Now().Add(expiresIn).UTC().Truncate(time.Second),
				TokenPrefix:         tok.Prefix,
				IdentityIDHash:      tok.IdentityIDHash,
				EncryptedProjectKey: keys.EncodeBlob(sealed),
			}
			body, err := json.MarshalIndent(req, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(body))
			printField(cmd.ErrOrStderr(), "token", tok.Token)
			return nil
		},
	}

	cmd.Flags().StringVar(&projectKey, "project-key", "", "base64 project key to seal to the token")
	cmd.Flags().StringVar(&name, "name", "cli", "token name for the registration request")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 30*24*time.Hour, "token lifetime")
	return cmd
}

func newTokenInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <token>",
		Short: "Show the identity derived from a CLI token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := keys.ParseToken(args[0])
			if err != nil {
				return err
			}
			printTokenIdentity(cmd.OutOrStdout(), tok)
			return nil
		},
	}
}

func newTokenOpenCmd() *cobra.Command {
	var token, blob string

	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open a project key sealed to a CLI token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := keys.ParseToken(token)
			if err != nil {
				return err
			}
			sealed, err := keys.DecodeBlob(blob)
			if err != nil {
				return err
			}
			key, err := keys.OpenForToken(tok.PrivateKey, sealed)
			if err != nil {
				return err
			}
			printField(cmd.OutOrStdout(), "project key", keys.EncodeBlob(key))
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "CLI token")
	cmd.Flags().StringVar(&blob, "blob", "", "sealed project key (base64)")
	_ = cmd.MarkFlagRequired("token")
	_ = cmd.MarkFlagRequired("blob")
	return cmd
}

func printTokenIdentity(w io.Writer, tok *keys.TokenIdentity) {
	printField(w, "token", tok.Token)
	printField(w, "prefix", tok.Prefix)
	printField(w, "identity id", tok.IdentityID)
	printField(w, "identity id hash", tok.IdentityIDHash)
	printField(w, "public key", keys.EncodeBlob(tok.PublicKey))
}
