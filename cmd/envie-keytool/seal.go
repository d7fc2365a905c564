package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/envie/envie-server/src/keys"
	"github.com/spf13/cobra"
)

// maxSealInput bounds what seal and open read from stdin
const maxSealInput = 1 << 20

func readInput(cmd *cobra.Command) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), maxSealInput+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	if len(data) > maxSealInput {
		return nil, fmt.Errorf("input exceeds %d bytes", maxSealInput)
	}
	return data, nil
}

func newSealCmd() *cobra.Command {
	var to string
	var symmetric string

	cmd := &cobra.Command{
		Use:   "seal",
		Short: "Encrypt stdin to a public key or under a symmetric key",
		Long: `Reads stdin and prints the base64 blob the server would store.

Examples:
  # Wrap a project key for a team (sealed box)
  envie-keytool seal --to <team public key> < project.key

  # Encrypt a config value under a project key
  printf 'postgres://...' | envie-keytool seal --key <project key>`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (to == "") == (symmetric == "") {
				return fmt.Errorf("exactly one of --to or --key is required")
			}
			payload, err := readInput(cmd)
			if err != nil {
				return err
			}

			var blob []byte
			if to != "" {
				pub, err := decodeKeyArg("to", to)
				if err != nil {
					return err
				}
				blob, err = keys.SealTo(pub, payload)
				if err != nil {
					return err
				}
			} else {
				key, err := decodeKeyArg("key", symmetric)
				if err != nil {
					return err
				}
				blob, err = keys.EncryptSymmetric(key, payload)
				if err != nil {
					return err
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), keys.EncodeBlob(blob))
			return nil
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "base64 X25519 public key of the recipient")
	cmd.Flags().StringVar(&symmetric, "key", "", "base64 AES-256 key")
	return cmd
}

func newOpenCmd() *cobra.Command {
	var privateKey string
	var symmetric string

	cmd := &cobra.Command{
		Use:   "open",
		Short: "Decrypt a base64 blob read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (privateKey == "") == (symmetric == "") {
				return fmt.Errorf("exactly one of --private-key or --key is required")
			}
			input, err := readInput(cmd)
			if err != nil {
				return err
			}
			blob, err := keys.DecodeBlob(strings.TrimSpace(string(input)))
			if err != nil {
				return err
			}

			var plaintext []byte
			if privateKey != "" {
				priv, err := decodeKeyArg("private-key", privateKey)
				if err != nil {
					return err
				}
				plaintext, err = keys.OpenSealed(priv, blob)
				if err != nil {
					return err
				}
			} else {
				key, err := decodeKeyArg("key", symmetric)
				if err != nil {
					return err
				}
				plaintext, err = keys.DecryptSymmetric(key, blob)
				if err != nil {
					return err
				}
			}

			_, err = cmd.OutOrStdout().Write(plaintext)
			return err
		},
	}

	cmd.Flags().StringVar(&privateKey, "private-key", "", "base64 X25519 private key of the recipient")
	cmd.Flags().StringVar(&symmetric, "key", "", "base64 AES-256 key")
	return cmd
}
