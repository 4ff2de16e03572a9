package protocol

import (
	"github.com/ZentaChain/zentalk-wsnet/pkg/crypto"
)

// Action names a request type
type Action string

const (
	ActionRegister Action = "register"
	ActionDHTPut   Action = "dhtput"
	ActionDHTGet   Action = "dhtget"
	ActionPeerMsg  Action = "peermsg"
	ActionPing     Action = "ping"
)

// TxnSize is the number of random bytes in a transaction id
const TxnSize = 8

// GenerateTxn returns a fresh random transaction id (16 hex characters)
func GenerateTxn() (string, error) {
	return crypto.RandomHex(TxnSize)
}

// Contact is a peer known to the caller. The transport only reads it.
type Contact struct {
	Name      string `json:"name"`
	Address   string `json:"address"`
	Port      int    `json:"port"`
	PKeyHash  string `json:"pkeyhash"`
	PublicKey string `json:"publickey"`
}

// ContactRef is the contact form carried inside a peermsg request
type ContactRef struct {
	PKHash string `json:"pkhash"`
}
