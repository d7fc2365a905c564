// Command envie-keytool generates and inspects envie key material: device
// identities, CLI tokens, master keys and sealed blobs. It also mints user
// JWTs for local development against envie-server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "envie-keytool",
		Short: "envie-keytool - key material utilities for envie",
		Long: `envie-keytool works with the key formats envie-server stores blind.

Everything runs locally; nothing is sent to a server.

Available Commands:
  keygen    Generate an X25519 device identity
  token     Generate, inspect and open CLI tokens
  master    Derive a master key from a recovery phrase
  seal      Seal stdin to a public key
  open      Open a sealed blob read from stdin
  jwt       Mint a user JWT for local development`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newKeygenCmd(),
		newTokenCmd(),
		newMasterCmd(),
		newSealCmd(),
		newOpenCmd(),
		newJWTCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorColor.Sprint("error:"), err)
		os.Exit(1)
	}
}
