package envelope

import (
	"encoding/hex"
	"fmt"

	"github.com/ZentaChain/zentalk-wsnet/pkg/crypto"
)

// CryptoSystem names a key agreement scheme
type CryptoSystem string

const (
	SchemeECC CryptoSystem = "ecc"
	SchemeRSA CryptoSystem = "rsa"
)

// SharedSecret is the raw ECDH x coordinate agreed between two peers
type SharedSecret []byte

// passphrase returns the secret as lowercase hex text, the form fed to the cipher
func (s SharedSecret) passphrase() []byte {
	return []byte(hex.EncodeToString(s))
}

// DeriveSharedSecret agrees a secret between the local key pair and a remote public key
func DeriveSharedSecret(scheme CryptoSystem, local *crypto.KeyPair, remotePubHex string) (SharedSecret, error) {
	if scheme != SchemeECC {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, scheme)
	}
	if local == nil {
		return nil, ErrEmptyKey
	}

	remote, err := crypto.ParsePublicKeyHex(remotePubHex)
	if err != nil {
		return nil, err
	}
	return SharedSecret(local.ECDH(remote)), nil
}

// Encrypt seals plaintext under a shared secret and returns the envelope text
func Encrypt(secret SharedSecret, plaintext []byte) (string, error) {
	if len(secret) == 0 {
		return "", ErrEmptyKey
	}

	ct, err := seal(secret.passphrase(), plaintext)
	if err != nil {
		return "", err
	}

	env := &Envelope{
		Header:     Header{Alg: AlgECDHES, Enc: EncA256KW},
		Ciphertext: ct,
	}
	return env.String(), nil
}

// Seal derives the shared secret for the given scheme and encrypts in one step
func Seal(scheme CryptoSystem, local *crypto.KeyPair, remotePubHex string, plaintext []byte) (string, error) {
	secret, err := DeriveSharedSecret(scheme, local, remotePubHex)
	if err != nil {
		return "", err
	}
	return Encrypt(secret, plaintext)
}

// Decrypt opens an envelope produced by Encrypt on the remote side
func Decrypt(local *crypto.KeyPair, remotePubHex string, text string) ([]byte, error) {
	env, err := Parse(text)
	if err != nil {
		return nil, err
	}

	switch {
	case env.Header.Alg == "":
		return nil, ErrMissingAlg
	case env.Header.Alg != AlgECDHES:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlg, env.Header.Alg)
	case env.Header.Enc != "" && env.Header.Enc != EncA256KW:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEnc, env.Header.Enc)
	}

	secret, err := DeriveSharedSecret(SchemeECC, local, remotePubHex)
	if err != nil {
		return nil, err
	}
	return open(secret.passphrase(), env.Ciphertext)
}

// DecryptECDH decrypts with a recipient key given as hex. When recipientPubHex
// is set it must belong to recipientPrivHex.
func DecryptECDH(recipientPrivHex, recipientPubHex, senderPubHex, text string) ([]byte, error) {
	local, err := crypto.KeyPairFromHex(recipientPrivHex)
	if err != nil {
		return nil, err
	}

	if recipientPubHex != "" {
		pub, err := crypto.ParsePublicKeyHex(recipientPubHex)
		if err != nil {
			return nil, err
		}
		if hex.EncodeToString(pub.SerializeUncompressed()) != local.PublicKeyHex() {
			return nil, crypto.ErrInvalidKey
		}
	}

	return Decrypt(local, senderPubHex, text)
}
