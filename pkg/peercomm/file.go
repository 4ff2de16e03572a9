package peercomm

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/blake2b"
)

// ErrInvalidFileOffer rejects an offer missing a required field
var ErrInvalidFileOffer = errors.New("invalid file offer")

// FileOffer announces a file a peer may fetch out of band
type FileOffer struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Hash string `json:"hash"`
	Type string `json:"type,omitempty"`
}

// Validate checks the fields a receiver needs to accept the offer
func (f *FileOffer) Validate() error {
	if f == nil {
		return ErrInvalidFileOffer
	}
	if f.Name == "" {
		return fmt.Errorf("%w: no name", ErrInvalidFileOffer)
	}
	if f.Size <= 0 {
		return fmt.Errorf("%w: no size", ErrInvalidFileOffer)
	}
	if f.Hash == "" {
		return fmt.Errorf("%w: no hash", ErrInvalidFileOffer)
	}
	return nil
}

// NewFileOffer hashes r with BLAKE2b-256 and returns an offer for it
func NewFileOffer(name, fileType string, r io.Reader) (*FileOffer, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return nil, err
	}
	size, err := io.Copy(h, r)
	if err != nil {
		return nil, err
	}
	return &FileOffer{
		Name: name,
		Size: size,
		Hash: hex.EncodeToString(h.Sum(nil)),
		Type: fileType,
	}, nil
}

// FileOfferFromPath builds an offer for the file at path
func FileOfferFromPath(path, fileType string) (*FileOffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return NewFileOffer(filepath.Base(path), fileType, f)
}
