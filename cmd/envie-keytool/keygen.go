package main

import (
	"github.com/envie/envie-server/src/keys"
	"github.com/spf13/cobra"
)

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate an X25519 device identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := keys.GenerateIdentity()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printField(out, "public key", keys.EncodeBlob(id.PublicKey))
			printField(out, "private key", keys.EncodeBlob(id.PrivateKey))
			printWarning(cmd.ErrOrStderr(), "the private key never leaves this device")
			return nil
		},
	}
}
