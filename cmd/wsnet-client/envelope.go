package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ZentaChain/zentalk-wsnet/pkg/crypto"
	"github.com/ZentaChain/zentalk-wsnet/pkg/envelope"
)

var (
	envKey     string
	envPeer    string
	envKeyFile string
)

// input returns the first argument, or stdin when there is none
func input(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) > 0 {
		return []byte(args[0]), nil
	}
	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return nil, err
	}
	return []byte(strings.TrimRight(string(b), "\r\n")), nil
}

func envelopeMode() (symmetric bool, err error) {
	switch {
	case envKey != "" && envPeer != "":
		return false, errors.New("use either --key or --peer, not both")
	case envKey != "":
		return true, nil
	case envPeer != "":
		if envKeyFile == "" {
			return false, errors.New("--peer requires --key-file")
		}
		return false, nil
	default:
		return false, errors.New("one of --key or --peer is required")
	}
}

var sealCmd = &cobra.Command{
	Use:   "seal [plaintext]",
	Short: "Encrypt into a two segment envelope",
	Long: `Encrypt plaintext (or stdin) into a two segment envelope. With --key the
envelope is symmetric; with --peer and --key-file it is sealed with the
ECDH secret of the local key and the peer's public key.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		symmetric, err := envelopeMode()
		if err != nil {
			return err
		}
		plaintext, err := input(cmd, args)
		if err != nil {
			return err
		}

		var text string
		if symmetric {
			text, err = envelope.SymmEncrypt([]byte(envKey), plaintext)
		} else {
			var kp *crypto.KeyPair
			kp, err = crypto.LoadKeyFromFile(envKeyFile)
			if err != nil {
				return err
			}
			text, err = envelope.Seal(envelope.SchemeECC, kp, envPeer, plaintext)
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	},
}

var openCmd = &cobra.Command{
	Use:   "open [envelope]",
	Short: "Decrypt a two segment envelope",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		symmetric, err := envelopeMode()
		if err != nil {
			return err
		}
		text, err := input(cmd, args)
		if err != nil {
			return err
		}

		var plaintext []byte
		if symmetric {
			plaintext, err = envelope.SymmDecrypt([]byte(envKey), string(text))
		} else {
			var kp *crypto.KeyPair
			kp, err = crypto.LoadKeyFromFile(envKeyFile)
			if err != nil {
				return err
			}
			plaintext, err = envelope.Decrypt(kp, envPeer, string(text))
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(plaintext))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{sealCmd, openCmd} {
		c.Flags().StringVar(&envKey, "key", "", "symmetric passphrase")
		c.Flags().StringVar(&envPeer, "peer", "", "peer public key (hex) for ECDH envelopes")
		c.Flags().StringVar(&envKeyFile, "key-file", "", "local private key file for ECDH envelopes")
		rootCmd.AddCommand(c)
	}
}
