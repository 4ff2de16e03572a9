package dht

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ZentaChain/zentalk-wsnet/pkg/crypto"
	"github.com/ZentaChain/zentalk-wsnet/pkg/protocol"
)

// ErrPublisherMismatch is returned when a contact record is signed by a key
// other than the one its lookup key names.
var ErrPublisherMismatch = errors.New("contact record signed by a different key")

// Store is the subset of the transport client used to publish and find records
type Store interface {
	Put(ctx context.Context, key string, value any) error
	Get(ctx context.Context, key string) (json.RawMessage, error)
}

// ContactKey is the DHT key a contact record is stored under
func ContactKey(pkhash string) string {
	return "contact:" + pkhash
}

// PublishContact signs this account's contact details and stores them under
// its public key hash. Name, public key and hash are filled from kp.
func PublishContact(ctx context.Context, store Store, kp *crypto.KeyPair, contact protocol.Contact, ttl time.Duration) (*Record, error) {
	if ttl <= 0 {
		ttl = DefaultRecordTTL
	}
	contact.PublicKey = kp.PublicKeyHex()
	contact.PKeyHash = kp.PublicKeyHash()

	value, err := json.Marshal(contact)
	if err != nil {
		return nil, err
	}
	record, err := SignRecord(ContactKey(contact.PKeyHash), value, kp, ttl)
	if err != nil {
		return nil, err
	}
	encoded, err := record.Encode()
	if err != nil {
		return nil, err
	}
	if err := store.Put(ctx, record.Key, encoded); err != nil {
		return nil, fmt.Errorf("failed to publish contact %s: %w", contact.Name, err)
	}
	return record, nil
}

// FindContact fetches and verifies the contact record for pkhash
func FindContact(ctx context.Context, store Store, pkhash string) (*protocol.Contact, error) {
	key := ContactKey(pkhash)
	data, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	// some nodes return the stored value as a JSON string
	var wrapped string
	if json.Unmarshal(data, &wrapped) == nil {
		data = json.RawMessage(wrapped)
	}

	record, err := VerifyAndExtract(key, data)
	if err != nil {
		return nil, err
	}

	pub, err := crypto.ParsePublicKeyHex(record.PublicKey)
	if err != nil {
		return nil, err
	}
	if crypto.PublicKeyHashOf(pub) != pkhash {
		return nil, ErrPublisherMismatch
	}

	var contact protocol.Contact
	if err := json.Unmarshal(record.Value, &contact); err != nil {
		return nil, fmt.Errorf("failed to decode contact: %w", err)
	}
	if contact.PKeyHash != pkhash || contact.PublicKey != record.PublicKey {
		return nil, ErrPublisherMismatch
	}
	return &contact, nil
}
