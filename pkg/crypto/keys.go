package crypto

import (
	"encoding/hex"
	"errors"
	"os"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/mr-tron/base58"
)

var (
	ErrInvalidKey       = errors.New("invalid key")
	ErrInvalidPublicKey = errors.New("invalid public key")
	ErrInvalidSignature = errors.New("invalid signature")
)

// PrivateKeySize is the size of a serialized secp256k1 private key
const PrivateKeySize = 32

// KeyPair is a secp256k1 identity key pair.
// It signs the account into the transport and drives ECDH for peer envelopes.
type KeyPair struct {
	private *secp256k1.PrivateKey
	public  *secp256k1.PublicKey
}

// GenerateKeyPair generates a new random secp256k1 key pair
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return &KeyPair{private: priv, public: priv.PubKey()}, nil
}

// KeyPairFromBytes builds a key pair from a raw 32-byte private scalar
func KeyPairFromBytes(b []byte) (*KeyPair, error) {
	if len(b) != PrivateKeySize {
		return nil, ErrInvalidKey
	}
	priv := secp256k1.PrivKeyFromBytes(b)
	if priv.Key.IsZero() {
		return nil, ErrInvalidKey
	}
	return &KeyPair{private: priv, public: priv.PubKey()}, nil
}

// KeyPairFromHex builds a key pair from a hex encoded private key
func KeyPairFromHex(privHex string) (*KeyPair, error) {
	b, err := hex.DecodeString(strings.TrimSpace(privHex))
	if err != nil {
		return nil, ErrInvalidKey
	}
	return KeyPairFromBytes(b)
}

// PrivateKeyHex returns the private scalar as lowercase hex
func (kp *KeyPair) PrivateKeyHex() string {
	return hex.EncodeToString(kp.private.Serialize())
}

// PublicKeyBytes returns the uncompressed SEC1 public key (65 bytes)
func (kp *KeyPair) PublicKeyBytes() []byte {
	return kp.public.SerializeUncompressed()
}

// PublicKeyHex returns the uncompressed public key as hex.
// This is the form peers exchange for ECDH and the one sent as publickeyhex.
func (kp *KeyPair) PublicKeyHex() string {
	return hex.EncodeToString(kp.PublicKeyBytes())
}

// PublicKeyBase58 returns the compressed public key in base58, as used at registration
func (kp *KeyPair) PublicKeyBase58() string {
	return base58.Encode(kp.public.SerializeCompressed())
}

// PublicKeyHash returns the hex BLAKE2b-256 hash of the uncompressed public key
func (kp *KeyPair) PublicKeyHash() string {
	return PublicKeyHashOf(kp.public)
}

// ECDH computes the shared x coordinate between this key and a remote public key
func (kp *KeyPair) ECDH(remote *secp256k1.PublicKey) []byte {
	return secp256k1.GenerateSharedSecret(kp.private, remote)
}

// Sign signs the BLAKE2b-256 digest of data and returns a DER signature
func (kp *KeyPair) Sign(data []byte) ([]byte, error) {
	digest, err := Hash(data)
	if err != nil {
		return nil, err
	}
	return ecdsa.Sign(kp.private, digest).Serialize(), nil
}

// VerifySignature checks a DER signature made by Sign
func VerifySignature(pub *secp256k1.PublicKey, data, sig []byte) error {
	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return ErrInvalidSignature
	}
	digest, err := Hash(data)
	if err != nil {
		return err
	}
	if !parsed.Verify(digest, pub) {
		return ErrInvalidSignature
	}
	return nil
}

// PublicKeyHashOf returns the hex BLAKE2b-256 hash of an uncompressed public key
func PublicKeyHashOf(pub *secp256k1.PublicKey) string {
	hash, _ := HashString(pub.SerializeUncompressed())
	return hash
}

// ParsePublicKeyHex parses a hex encoded compressed or uncompressed public key
func ParsePublicKeyHex(pubHex string) (*secp256k1.PublicKey, error) {
	b, err := hex.DecodeString(strings.TrimSpace(pubHex))
	if err != nil {
		return nil, ErrInvalidPublicKey
	}
	pub, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return nil, ErrInvalidPublicKey
	}
	return pub, nil
}

// ParsePublicKeyBase58 parses a base58 encoded public key
func ParsePublicKeyBase58(pubB58 string) (*secp256k1.PublicKey, error) {
	b, err := base58.Decode(pubB58)
	if err != nil {
		return nil, ErrInvalidPublicKey
	}
	pub, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return nil, ErrInvalidPublicKey
	}
	return pub, nil
}

// SaveKeyToFile writes the hex private key to file with owner-only permissions
func SaveKeyToFile(filename string, kp *KeyPair) error {
	return os.WriteFile(filename, []byte(kp.PrivateKeyHex()+"\n"), 0600)
}

// LoadKeyFromFile loads a hex private key written by SaveKeyToFile
func LoadKeyFromFile(filename string) (*KeyPair, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return KeyPairFromHex(string(data))
}
