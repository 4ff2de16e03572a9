package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ZentaChain/zentalk-wsnet/pkg/dht"
	"github.com/ZentaChain/zentalk-wsnet/pkg/network"
	"github.com/ZentaChain/zentalk-wsnet/pkg/protocol"
)

var (
	publishTTL  time.Duration
	findAndSave bool
)

var dhtCmd = &cobra.Command{
	Use:   "dht",
	Short: "Store and retrieve DHT values through a transport node",
}

var dhtPutCmd = &cobra.Command{
	Use:   "put <key> <json-value>",
	Short: "Store a JSON value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		value := json.RawMessage(args[1])
		if !json.Valid(value) {
			// plain text is stored as a JSON string
			b, _ := json.Marshal(args[1])
			value = b
		}

		s, err := connectOnce(cmd.Context())
		if err != nil {
			return err
		}
		defer s.close()

		if err := s.client.Put(cmd.Context(), args[0], value); err != nil {
			return fmt.Errorf("dht put failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ Stored %s\n", args[0])
		return nil
	},
}

var dhtGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Retrieve a value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := connectOnce(cmd.Context())
		if err != nil {
			return err
		}
		defer s.close()

		value, err := s.client.Get(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("dht get failed: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(value))
		return nil
	},
}

var dhtPublishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish this account's signed contact record",
	Long: `Publish a signed record with this account's name, public key and
transport node, stored under its public key hash. Peers resolve it with
"dht find".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := connectOnce(cmd.Context())
		if err != nil {
			return err
		}
		defer s.close()

		host, port, err := network.ParseEndpoint(s.client.Status().Endpoint)
		if err != nil {
			return err
		}
		record, err := dht.PublishContact(cmd.Context(), s.client, s.keys, protocol.Contact{
			Name:    s.cfg.Account.Name,
			Address: host,
			Port:    port,
		}, publishTTL)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ Published %s (valid for %s)\n", record.Key, time.Duration(record.TTL)*time.Second)
		return nil
	},
}

var dhtFindCmd = &cobra.Command{
	Use:   "find <pkhash>",
	Short: "Resolve a contact record by public key hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := connectOnce(cmd.Context())
		if err != nil {
			return err
		}
		defer s.close()

		contact, err := dht.FindContact(cmd.Context(), s.client, args[0])
		if err != nil {
			return fmt.Errorf("dht find failed: %w", err)
		}
		out, _ := json.MarshalIndent(contact, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(out))

		if !findAndSave {
			return nil
		}
		db, err := openDB(s.cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.SaveContact(contact); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ Contact %s saved\n", contact.Name)
		return nil
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the session is alive on the transport node",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := connectOnce(cmd.Context())
		if err != nil {
			return err
		}
		defer s.close()

		if !s.client.Ping(cmd.Context()) {
			return fmt.Errorf("no pong from %s", s.client.Status().Endpoint)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pong from %s\n", s.client.Status().Endpoint)
		return nil
	},
}

func init() {
	dhtPublishCmd.Flags().DurationVar(&publishTTL, "ttl", dht.DefaultRecordTTL, "record lifetime")
	dhtFindCmd.Flags().BoolVar(&findAndSave, "save", false, "add the resolved contact to the directory")

	dhtCmd.AddCommand(dhtPutCmd, dhtGetCmd, dhtPublishCmd, dhtFindCmd)
	rootCmd.AddCommand(dhtCmd, pingCmd)
}
