package state

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

type sealer struct {
	aead cipher.AEAD
}

func newSealer(key []byte) (*sealer, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	return &sealer{aead: aead}, nil
}

// seal returns nonce || ciphertext.
func (s *sealer) seal(aad, plain []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plain)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	return s.aead.Seal(nonce, nonce, plain, aad), nil
}

func (s *sealer) open(aad, data []byte) ([]byte, error) {
	ns := s.aead.NonceSize()
	if len(data) < ns+s.aead.Overhead() {
		return nil, errors.New("sealed value too short")
	}

	return s.aead.Open(nil, data[:ns], data[ns:], aad)
}
