package fabric

import (
	"crypto/rand"
	"fmt"

	"github.com/cloudflare/circl/cipher/ascon"
)

// Sealer protects encoded packets on their way through a Link.
type Sealer interface {
	// Seal returns data encrypted and authenticated, with its random nonce
	// up front.
	Seal(data []byte) ([]byte, error)

	// Open reverses Seal. Tampered, truncated or foreign packets yield nil.
	Open(data []byte) []byte
}

// NewSealer builds the Sealer every packet of a fabric goes through. Without
// a key packets travel in the clear. With one, they are sealed by Ascon128a,
// which takes keys of exactly ascon.KeySize bytes.
func NewSealer(key []byte) (Sealer, error) {
	if len(key) == 0 {
		return clearSealer{}, nil
	}
	if len(key) != ascon.KeySize {
		return nil, fmt.Errorf("sealing needs a %d-byte key, have %d bytes", ascon.KeySize, len(key))
	}
	aead, err := ascon.New(key, ascon.Ascon128a)
	if err != nil {
		return nil, fmt.Errorf("preparing packet sealer: %w", err)
	}
	return &asconSealer{aead: aead}, nil
}

// clearSealer leaves packets untouched.
type clearSealer struct{}

func (clearSealer) Seal(data []byte) ([]byte, error) { return data, nil }
func (clearSealer) Open(data []byte) []byte          { return data }

// asconSealer is safe for concurrent use: aead only holds the key.
type asconSealer struct {
	aead *ascon.Cipher
}

func (s *asconSealer) Seal(data []byte) ([]byte, error) {
	out := make([]byte, ascon.NonceSize, ascon.NonceSize+len(data)+s.aead.Overhead())
	if _, err := rand.Read(out); err != nil {
		return nil, fmt.Errorf("drawing nonce: %w", err)
	}
	return s.aead.Seal(out, out[:ascon.NonceSize], data, nil), nil
}

func (s *asconSealer) Open(data []byte) []byte {
	if len(data) < ascon.NonceSize+s.aead.Overhead() {
		return nil
	}
	plain, err := s.aead.Open(nil, data[:ascon.NonceSize], data[ascon.NonceSize:], nil)
	if err != nil {
		return nil
	}
	return plain
}
