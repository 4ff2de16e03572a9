// Package peercomm carries end-to-end encrypted messages between peers over
// the transport's peermsg relay.
//
// Each relayed payload is a PEERMSG wrapper whose data field is an ECC
// envelope sealed with the ECDH secret of the sender and the recipient.
package peercomm

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ZentaChain/zentalk-wsnet/pkg/crypto"
	"github.com/ZentaChain/zentalk-wsnet/pkg/envelope"
	"github.com/ZentaChain/zentalk-wsnet/pkg/protocol"
)

// MessageTypePeer tags relayed peer messages
const MessageTypePeer = "PEERMSG"

// Payload kinds
const (
	KindText      = "text"
	KindFileOffer = "file_offer"
)

var (
	ErrNotPeerMessage    = errors.New("not a peer message")
	ErrMissingPublicKey  = errors.New("contact has no public key")
	ErrSenderKeyMismatch = errors.New("sender public key does not match contact")
	ErrUnknownKind       = errors.New("unknown payload kind")
)

// Transport relays payloads to peers
type Transport interface {
	PeerSend(contact *protocol.Contact, payload any) error
}

// ContactLookup resolves a sender name to a known contact. It returns
// (nil, nil) when the sender is unknown.
type ContactLookup interface {
	LookupContact(name string) (*protocol.Contact, error)
}

// PeerMessage is the relayed wrapper
type PeerMessage struct {
	Type      string `json:"type"`
	Sender    string `json:"sender"`
	PublicKey string `json:"publickey"`
	Data      string `json:"data"`
}

// Payload is the plaintext sealed inside PeerMessage.Data
type Payload struct {
	Kind      string     `json:"kind"`
	Text      string     `json:"text,omitempty"`
	File      *FileOffer `json:"file,omitempty"`
	Timestamp int64      `json:"ts"`
}

// Message is a decrypted inbound peer message
type Message struct {
	Sender    string
	PublicKey string
	Kind      string
	Text      string
	File      *FileOffer
	Timestamp time.Time
}

// Channel seals outbound and opens inbound peer messages
type Channel struct {
	account   string
	keys      *crypto.KeyPair
	transport Transport
	contacts  ContactLookup
	log       *zap.SugaredLogger

	OnMessage   func(*Message)
	OnFileOffer func(sender string, offer *FileOffer)
}

// NewChannel creates a channel for account. contacts and log may be nil.
func NewChannel(account string, keys *crypto.KeyPair, transport Transport, contacts ContactLookup, log *zap.SugaredLogger) *Channel {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Channel{
		account:   account,
		keys:      keys,
		transport: transport,
		contacts:  contacts,
		log:       log,
	}
}

// SendText sends an encrypted text message to contact
func (ch *Channel) SendText(contact *protocol.Contact, text string) error {
	return ch.send(contact, &Payload{Kind: KindText, Text: text})
}

// SendFileOffer announces a file to contact. The transfer itself happens out of band.
func (ch *Channel) SendFileOffer(contact *protocol.Contact, offer *FileOffer) error {
	if err := offer.Validate(); err != nil {
		return err
	}
	return ch.send(contact, &Payload{Kind: KindFileOffer, File: offer})
}

// Seal builds the PEERMSG wrapper for contact without sending it
func (ch *Channel) Seal(contact *protocol.Contact, payload *Payload) (*PeerMessage, error) {
	if contact == nil {
		return nil, errors.New("invalid contact")
	}
	if contact.PublicKey == "" {
		return nil, ErrMissingPublicKey
	}
	if payload.Timestamp == 0 {
		payload.Timestamp = time.Now().UnixMilli()
	}

	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	data, err := envelope.Seal(envelope.SchemeECC, ch.keys, contact.PublicKey, plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to seal message for %s: %w", contact.Name, err)
	}

	return &PeerMessage{
		Type:      MessageTypePeer,
		Sender:    ch.account,
		PublicKey: ch.keys.PublicKeyHex(),
		Data:      data,
	}, nil
}

func (ch *Channel) send(contact *protocol.Contact, payload *Payload) error {
	msg, err := ch.Seal(contact, payload)
	if err != nil {
		return err
	}
	if err := ch.transport.PeerSend(contact, msg); err != nil {
		return err
	}
	ch.log.Debugf("sent %s to %s", payload.Kind, contact.Name)
	return nil
}

// HandlePeerEvent opens a relayed peer message and dispatches it to
// OnMessage or OnFileOffer. Events that are not PEERMSG wrappers return
// ErrNotPeerMessage.
func (ch *Channel) HandlePeerEvent(ev *protocol.PeerEvent) (*Message, error) {
	var pm PeerMessage
	if err := ev.Decode(&pm); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPeerMessage, err)
	}
	if pm.Type != MessageTypePeer || pm.Data == "" {
		return nil, ErrNotPeerMessage
	}

	msg, err := ch.Open(&pm)
	if err != nil {
		ch.log.Warnf("dropping message from %s: %v", pm.Sender, err)
		return nil, err
	}

	switch msg.Kind {
	case KindFileOffer:
		if ch.OnFileOffer != nil {
			ch.OnFileOffer(msg.Sender, msg.File)
		}
	default:
		if ch.OnMessage != nil {
			ch.OnMessage(msg)
		}
	}
	return msg, nil
}

// Open decrypts a PEERMSG wrapper addressed to this account
func (ch *Channel) Open(pm *PeerMessage) (*Message, error) {
	if pm.PublicKey == "" {
		return nil, ErrMissingPublicKey
	}

	if ch.contacts != nil && pm.Sender != "" {
		known, err := ch.contacts.LookupContact(pm.Sender)
		if err != nil {
			return nil, fmt.Errorf("failed to look up sender %s: %w", pm.Sender, err)
		}
		if known != nil && known.PublicKey != "" && known.PublicKey != pm.PublicKey {
			return nil, ErrSenderKeyMismatch
		}
	}

	plaintext, err := envelope.Decrypt(ch.keys, pm.PublicKey, pm.Data)
	if err != nil {
		return nil, err
	}

	var p Payload
	if err := json.Unmarshal(plaintext, &p); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}

	switch p.Kind {
	case KindText:
	case KindFileOffer:
		if err := p.File.Validate(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, p.Kind)
	}

	return &Message{
		Sender:    pm.Sender,
		PublicKey: pm.PublicKey,
		Kind:      p.Kind,
		Text:      p.Text,
		File:      p.File,
		Timestamp: time.UnixMilli(p.Timestamp),
	}, nil
}
