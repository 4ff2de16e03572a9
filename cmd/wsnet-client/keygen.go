package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ZentaChain/zentalk-wsnet/pkg/crypto"
)

var (
	keygenOut   string
	keygenForce bool
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a secp256k1 account key",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !keygenForce {
			if _, err := os.Stat(keygenOut); err == nil {
				return fmt.Errorf("%s already exists (use --force to overwrite)", keygenOut)
			}
		}

		kp, err := crypto.GenerateKeyPair()
		if err != nil {
			return err
		}
		if err := crypto.SaveKeyToFile(keygenOut, kp); err != nil {
			return fmt.Errorf("failed to save key: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "✅ Key written to %s\n", keygenOut)
		fmt.Fprintf(out, "Public key (hex):    %s\n", kp.PublicKeyHex())
		fmt.Fprintf(out, "Public key (base58): %s\n", kp.PublicKeyBase58())
		fmt.Fprintf(out, "Public key hash:     %s\n", kp.PublicKeyHash())
		return nil
	},
}

func init() {
	keygenCmd.Flags().StringVarP(&keygenOut, "out", "o", "account.key", "key file to write")
	keygenCmd.Flags().BoolVar(&keygenForce, "force", false, "overwrite an existing key file")
	rootCmd.AddCommand(keygenCmd)
}
