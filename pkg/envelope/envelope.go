package envelope

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Header values
const (
	AlgECDHES = "ECDH-ES"
	EncA256KW = "A256KW"
)

// segmentSeparator joins header and cipher text
const segmentSeparator = "."

var (
	ErrMalformedEnvelope = errors.New("envelope: malformed envelope")
	ErrMissingAlg        = errors.New("envelope: missing header alg field")
	ErrMissingEnc        = errors.New("envelope: missing header enc field")
	ErrUnsupportedAlg    = errors.New("envelope: unsupported alg")
	ErrUnsupportedEnc    = errors.New("envelope: unsupported enc")
	ErrUnsupportedScheme = errors.New("envelope: unsupported crypto system")
	ErrEmptyKey          = errors.New("envelope: empty key")
	ErrDecryptionFailed  = errors.New("envelope: decryption failed")
)

// Header describes how the cipher text was produced
type Header struct {
	Alg string `json:"alg,omitempty"`
	Enc string `json:"enc"`
}

// Envelope is a parsed envelope
type Envelope struct {
	Header     Header
	Ciphertext []byte
}

// String serializes the envelope into its two-segment text form
func (e *Envelope) String() string {
	// Marshal of two string fields cannot fail.
	header, _ := json.Marshal(e.Header)
	return base64urlEncode(header) + segmentSeparator + base64urlEncode(e.Ciphertext)
}

// Parse splits and decodes an envelope. It only checks the structure; callers
// check the header values for the operation they perform.
func Parse(text string) (*Envelope, error) {
	segments := strings.Split(text, segmentSeparator)
	if len(segments) != 2 {
		return nil, fmt.Errorf("%w: invalid segment count %d", ErrMalformedEnvelope, len(segments))
	}
	if segments[0] == "" || segments[1] == "" {
		return nil, fmt.Errorf("%w: empty segment", ErrMalformedEnvelope)
	}

	rawHeader, err := base64urlDecode(segments[0])
	if err != nil {
		return nil, fmt.Errorf("%w: header encoding: %v", ErrMalformedEnvelope, err)
	}

	var header Header
	if err := json.Unmarshal(rawHeader, &header); err != nil {
		return nil, fmt.Errorf("%w: header json: %v", ErrMalformedEnvelope, err)
	}

	ciphertext, err := base64urlDecode(segments[1])
	if err != nil {
		return nil, fmt.Errorf("%w: cipher text encoding: %v", ErrMalformedEnvelope, err)
	}

	return &Envelope{Header: header, Ciphertext: ciphertext}, nil
}

// base64urlEncode is standard base64 with + / replaced by - _ and padding dropped
func base64urlEncode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// base64urlDecode accepts both padded and unpadded input
func base64urlDecode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
