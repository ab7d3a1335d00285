// Package crypt encrypts product secrets and license keys at rest.
// ChaCha20-Poly1305 with a random nonce prepended to the ciphertext;
// the result is base64 so it can live in a VARCHAR column.
package crypt

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

type Cipher struct {
	key []byte
}

// New builds a Cipher from a base64-encoded 32-byte key.
func New(encodedKey string) (*Cipher, error) {
	if encodedKey == "" {
		return nil, fmt.Errorf("encryption key is not configured")
	}
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &Cipher{key: key}, nil
}

func (c *Cipher) Encrypt(plaintext string) (string, error) {
	aead, err := chacha20poly1305.New(c.key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err = rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *Cipher) Decrypt(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	aead, err := chacha20poly1305.New(c.key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}
