package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ZentaChain/zentalk-wsnet/pkg/crypto"
	"github.com/ZentaChain/zentalk-wsnet/pkg/network"
	"github.com/ZentaChain/zentalk-wsnet/pkg/protocol"
)

var contactCmd = &cobra.Command{
	Use:   "contact",
	Short: "Manage the local contact directory",
}

var contactAddCmd = &cobra.Command{
	Use:   "add <name> <endpoint> <public-key-hex>",
	Short: "Add or update a contact",
	Long: `Add or update a contact. The endpoint is the contact's transport node
(host:port or multiaddr); the public key hash is derived from the key.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		host, port, err := network.ParseEndpoint(args[1])
		if err != nil {
			return err
		}
		pub, err := crypto.ParsePublicKeyHex(args[2])
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		contact := &protocol.Contact{
			Name:      args[0],
			Address:   host,
			Port:      port,
			PKeyHash:  crypto.PublicKeyHashOf(pub),
			PublicKey: fmt.Sprintf("%x", pub.SerializeUncompressed()),
		}
		if err := db.SaveContact(contact); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ Contact %s saved\n", contact.Name)
		return nil
	},
}

var contactListCmd = &cobra.Command{
	Use:   "list",
	Short: "List contacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		contacts, err := db.ListContacts()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tENDPOINT\tPKHASH\tLAST SEEN")
		for _, c := range contacts {
			seen := "never"
			if c.LastSeen > 0 {
				seen = time.Unix(c.LastSeen, 0).Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s:%d\t%s\t%s\n", c.Name, c.Address, c.Port, c.PKeyHash, seen)
		}
		return w.Flush()
	},
}

var contactRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a contact and its queued messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.DeleteContact(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Contact %s removed\n", args[0])
		return nil
	},
}

func init() {
	contactCmd.AddCommand(contactAddCmd, contactListCmd, contactRemoveCmd)
	rootCmd.AddCommand(contactCmd)
}
