// Package dht holds signed records stored through the transport node's
// dhtput/dhtget operations.
package dht

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ZentaChain/zentalk-wsnet/pkg/crypto"
)

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrExpiredEntry     = errors.New("entry expired")
	ErrMissingPublicKey = errors.New("missing public key")
	ErrKeyMismatch      = errors.New("record key does not match")
)

// DefaultRecordTTL is how long a published record stays valid
const DefaultRecordTTL = 24 * time.Hour

// Record is a DHT value signed by the secp256k1 key of its publisher.
// Readers reject records whose signature or lifetime does not check out.
type Record struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	PublicKey string          `json:"public_key"`
	Signature string          `json:"signature"`
	Timestamp int64           `json:"timestamp"`
	TTL       int64           `json:"ttl"`
	Nonce     string          `json:"nonce"`
}

var now = time.Now

// SignRecord creates a record for key holding value, signed by kp
func SignRecord(key string, value json.RawMessage, kp *crypto.KeyPair, ttl time.Duration) (*Record, error) {
	if kp == nil {
		return nil, ErrMissingPublicKey
	}
	if !json.Valid(value) {
		return nil, fmt.Errorf("record value for %s is not valid JSON", key)
	}

	nonce, err := crypto.RandomHex(16)
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	r := &Record{
		Key:       key,
		Value:     value,
		PublicKey: kp.PublicKeyHex(),
		Timestamp: now().Unix(),
		TTL:       int64(ttl.Seconds()),
		Nonce:     nonce,
	}

	sig, err := kp.Sign(r.signatureMessage())
	if err != nil {
		return nil, err
	}
	r.Signature = hex.EncodeToString(sig)
	return r, nil
}

// Verify checks the record lifetime and signature
func (r *Record) Verify() error {
	if r.PublicKey == "" {
		return ErrMissingPublicKey
	}
	if r.IsExpired() {
		return ErrExpiredEntry
	}

	pub, err := crypto.ParsePublicKeyHex(r.PublicKey)
	if err != nil {
		return err
	}
	sig, err := hex.DecodeString(r.Signature)
	if err != nil {
		return ErrInvalidSignature
	}
	if err := crypto.VerifySignature(pub, r.signatureMessage(), sig); err != nil {
		return ErrInvalidSignature
	}
	return nil
}

// signatureMessage is key || value || publickey || timestamp || ttl || nonce,
// with length prefixes on the variable parts.
func (r *Record) signatureMessage() []byte {
	var msg []byte
	for _, part := range [][]byte{[]byte(r.Key), r.Value, []byte(r.PublicKey)} {
		msg = binary.BigEndian.AppendUint32(msg, uint32(len(part)))
		msg = append(msg, part...)
	}
	msg = binary.BigEndian.AppendUint64(msg, uint64(r.Timestamp))
	msg = binary.BigEndian.AppendUint64(msg, uint64(r.TTL))
	return append(msg, r.Nonce...)
}

// IsExpired reports whether the record lifetime has passed
func (r *Record) IsExpired() bool {
	return now().Unix() > r.Timestamp+r.TTL
}

// Encode encodes the record to JSON
func (r *Record) Encode() (json.RawMessage, error) {
	return json.Marshal(r)
}

// DecodeRecord decodes a record from JSON
func DecodeRecord(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// VerifyAndExtract decodes a record, checks it was stored under key and
// returns the verified record.
func VerifyAndExtract(key string, data []byte) (*Record, error) {
	r, err := DecodeRecord(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	if r.Key != key {
		return nil, ErrKeyMismatch
	}
	if err := r.Verify(); err != nil {
		return nil, fmt.Errorf("record verification failed: %w", err)
	}
	return r, nil
}
