package main

import (
	"encoding/hex"
	"strings"

	"github.com/envie/envie-server/src/keys"
	"github.com/spf13/cobra"
)

func newMasterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "master",
		Short: "Master key utilities",
	}
	cmd.AddCommand(newMasterDeriveCmd(), newMasterWrapCmd())
	return cmd
}

func newMasterDeriveCmd() *cobra.Command {
	var passphrase string

	cmd := &cobra.Command{
		Use:   "derive <recovery phrase...>",
		Short: "Derive a master key from a recovery phrase",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := keys.DeriveMasterKey(strings.Join(args, " "), passphrase)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printField(out, "master key", keys.EncodeBlob(key))
			printField(out, "master key (hex)", hex.EncodeToString(key))
			return nil
		},
	}

	cmd.Flags().StringVar(&passphrase, "passphrase", "", "optional recovery passphrase")
	return cmd
}

func newMasterWrapCmd() *cobra.Command {
	var masterKey, devicePub string

	cmd := &cobra.Command{
		Use:   "wrap",
		Short: "Seal a master key to a newly approved device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := decodeKeyArg("master-key", masterKey)
			if err != nil {
				return err
			}
			pub, err := decodeKeyArg("device-public-key", devicePub)
			if err != nil {
				return err
			}
			blob, err := keys.WrapMasterKeyForDevice(key, pub)
			if err != nil {
				return err
			}
			printField(cmd.OutOrStdout(), "wrapped master key", keys.EncodeBlob(blob))
			return nil
		},
	}

	cmd.Flags().StringVar(&masterKey, "master-key", "", "base64 master key")
	cmd.Flags().StringVar(&devicePub, "device-public-key", "", "base64 X25519 public key of the device")
	_ = cmd.MarkFlagRequired("master-key")
	_ = cmd.MarkFlagRequired("device-public-key")
	return cmd
}
