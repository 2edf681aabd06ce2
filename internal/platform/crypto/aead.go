package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// ErrCiphertextTampered is returned when an authentication tag does not
// verify. Decryption fails closed: no partial plaintext is ever returned.
var ErrCiphertextTampered = errors.New("ciphertext failed authentication")

// Cipher provides AES-256-GCM authenticated encryption.
//
// Nonces are 96-bit values drawn fresh from crypto/rand for every Seal call.
// Random nonces are safe here because no single key encrypts anywhere near
// the 2^32-operation birthday bound: a DEK encrypts one patient's records and
// a wrapping key encrypts exactly one DEK.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher creates a Cipher from a 32-byte AES-256 key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("cipher: key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher: create GCM: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Seal encrypts plaintext and returns the ciphertext and the fresh nonce
// separately, for callers that store the nonce as record metadata.
func (c *Cipher) Seal(plaintext []byte) (ciphertext, nonce []byte, err error) {
	nonce = make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("cipher: generate nonce: %w", err)
	}
	return c.aead.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// Open decrypts ciphertext under the given nonce. Returns
// ErrCiphertextTampered if the authentication tag does not verify.
func (c *Cipher) Open(ciphertext, nonce []byte) ([]byte, error) {
	if len(nonce) != c.aead.NonceSize() {
		return nil, ErrCiphertextTampered
	}
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrCiphertextTampered
	}
	return plaintext, nil
}

// SealCompact encrypts data and returns the nonce prepended to the
// ciphertext as a single blob. Used for the wrapped DEK, which is stored as
// one opaque column.
func (c *Cipher) SealCompact(data []byte) ([]byte, error) {
	ct, nonce, err := c.Seal(data)
	if err != nil {
		return nil, err
	}
	return append(nonce, ct...), nil
}

// OpenCompact extracts the nonce from the front of blob and decrypts the
// remainder.
func (c *Cipher) OpenCompact(blob []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(blob) < nonceSize {
		return nil, ErrCiphertextTampered
	}
	return c.Open(blob[nonceSize:], blob[:nonceSize])
}

// GenerateDEK returns a fresh random 32-byte data-encryption key.
func GenerateDEK() ([]byte, error) {
	dek := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, dek); err != nil {
		return nil, fmt.Errorf("generate DEK: %w", err)
	}
	return dek, nil
}
