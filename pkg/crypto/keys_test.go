package crypto

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestGenerateKeyPair(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}

	if len(kp.PublicKeyBytes()) != 65 {
		t.Errorf("PublicKeyBytes() length = %d, want 65", len(kp.PublicKeyBytes()))
	}
	if !strings.HasPrefix(kp.PublicKeyHex(), "04") {
		t.Errorf("PublicKeyHex() = %s, want uncompressed prefix 04", kp.PublicKeyHex())
	}
	if len(kp.PublicKeyHash()) != 64 {
		t.Errorf("PublicKeyHash() length = %d, want 64", len(kp.PublicKeyHash()))
	}
}

func TestKeyPairFromHex(t *testing.T) {
	original, _ := GenerateKeyPair()

	restored, err := KeyPairFromHex(original.PrivateKeyHex())
	if err != nil {
		t.Fatalf("KeyPairFromHex() error = %v", err)
	}

	if restored.PublicKeyHex() != original.PublicKeyHex() {
		t.Error("KeyPairFromHex() public key mismatch")
	}
	if restored.PublicKeyHash() != original.PublicKeyHash() {
		t.Error("KeyPairFromHex() public key hash mismatch")
	}
}

func TestKeyPairFromHexInvalid(t *testing.T) {
	inputs := []string{
		"",
		"zz",
		"0102",
		strings.Repeat("00", PrivateKeySize),
	}

	for _, in := range inputs {
		if _, err := KeyPairFromHex(in); err != ErrInvalidKey {
			t.Errorf("KeyPairFromHex(%q) error = %v, want ErrInvalidKey", in, err)
		}
	}
}

func TestPublicKeyEncodings(t *testing.T) {
	kp, _ := GenerateKeyPair()

	fromHex, err := ParsePublicKeyHex(kp.PublicKeyHex())
	if err != nil {
		t.Fatalf("ParsePublicKeyHex() error = %v", err)
	}
	fromB58, err := ParsePublicKeyBase58(kp.PublicKeyBase58())
	if err != nil {
		t.Fatalf("ParsePublicKeyBase58() error = %v", err)
	}

	if !fromHex.IsEqual(fromB58) {
		t.Error("hex and base58 public keys differ")
	}

	if _, err := ParsePublicKeyHex("02abcd"); err != ErrInvalidPublicKey {
		t.Errorf("ParsePublicKeyHex() error = %v, want ErrInvalidPublicKey", err)
	}
}

func TestECDHAgreement(t *testing.T) {
	alice, _ := GenerateKeyPair()
	bob, _ := GenerateKeyPair()

	alicePub, _ := ParsePublicKeyHex(alice.PublicKeyHex())
	bobPub, _ := ParsePublicKeyHex(bob.PublicKeyHex())

	s1 := alice.ECDH(bobPub)
	s2 := bob.ECDH(alicePub)

	if len(s1) != 32 {
		t.Errorf("ECDH() length = %d, want 32", len(s1))
	}
	if !bytes.Equal(s1, s2) {
		t.Error("ECDH() shared secrets differ")
	}
}

func TestSaveLoadKeyFile(t *testing.T) {
	kp, _ := GenerateKeyPair()
	path := filepath.Join(t.TempDir(), "identity.key")

	if err := SaveKeyToFile(path, kp); err != nil {
		t.Fatalf("SaveKeyToFile() error = %v", err)
	}

	loaded, err := LoadKeyFromFile(path)
	if err != nil {
		t.Fatalf("LoadKeyFromFile() error = %v", err)
	}
	if loaded.PrivateKeyHex() != kp.PrivateKeyHex() {
		t.Error("LoadKeyFromFile() returned a different key")
	}
}

func TestSignVerify(t *testing.T) {
	kp, _ := GenerateKeyPair()
	other, _ := GenerateKeyPair()
	data := []byte("contact record")

	sig, err := kp.Sign(data)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	pub, _ := ParsePublicKeyHex(kp.PublicKeyHex())
	if err := VerifySignature(pub, data, sig); err != nil {
		t.Errorf("VerifySignature() error = %v", err)
	}
	if err := VerifySignature(pub, []byte("tampered"), sig); err != ErrInvalidSignature {
		t.Errorf("VerifySignature(tampered) error = %v, want ErrInvalidSignature", err)
	}

	otherPub, _ := ParsePublicKeyHex(other.PublicKeyHex())
	if err := VerifySignature(otherPub, data, sig); err != ErrInvalidSignature {
		t.Errorf("VerifySignature(other key) error = %v, want ErrInvalidSignature", err)
	}
	if err := VerifySignature(pub, data, []byte{0x01, 0x02}); err != ErrInvalidSignature {
		t.Errorf("VerifySignature(garbage) error = %v, want ErrInvalidSignature", err)
	}
}
