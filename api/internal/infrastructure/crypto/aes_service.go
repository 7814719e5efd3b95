// Package crypto implements symmetric encryption for secrets at rest: env
// vars, the object-store secret key, and the source-integration token.
package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
)

// Service encrypts and decrypts byte slices bound to caller-supplied
// associated data (AEAD), so ciphertext from one context cannot be replayed
// into another even with the same key.
type Service interface {
	Encrypt(ctx context.Context, plaintext []byte, associatedData []byte) (string, error)
	Decrypt(ctx context.Context, ciphertextBase64 string, associatedData []byte) ([]byte, error)
}

// AESCryptoService implements Service with AES-256-GCM.
type AESCryptoService struct {
	aead cipher.AEAD
}

// NewAESCryptoService constructs a service from a 32-byte key encoded as hex.
func NewAESCryptoService(hexKey string) (*AESCryptoService, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid key encoding: %w", err)
	}
	if len(key) != 32 {
		return nil, errors.New("crypto: key must be 32 bytes for AES-256")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: block cipher failure: %w", err)
	}
	defer func() {
		for i := range key {
			key[i] = 0
		}
	}()

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: GCM failure: %w", err)
	}
	return &AESCryptoService{aead: aesGCM}, nil
}

// LoadOrCreateMasterKey reads a hex-encoded 32-byte key from path, lazily
// generating and writing a fresh random one (mode 600) on first use.
func LoadOrCreateMasterKey(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return string(bytesTrimSpace(data)), nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("crypto: reading master key: %w", err)
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("crypto: generating master key: %w", err)
	}
	hexKey := hex.EncodeToString(key)
	if err := os.WriteFile(path, []byte(hexKey), 0o600); err != nil {
		return "", fmt.Errorf("crypto: writing master key: %w", err)
	}
	return hexKey, nil
}

func bytesTrimSpace(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && isSpace(b[start]) {
		start++
	}
	for end > start && isSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isSpace(b byte) bool { return b == ' ' || b == '\n' || b == '\r' || b == '\t' }

// Encrypt produces a base64 ciphertext bound to associatedData: decrypting
// with any other associated data fails closed.
func (s *AESCryptoService) Encrypt(ctx context.Context, plaintext []byte, associatedData []byte) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("crypto: nonce generation failure: %w", err)
	}
	ciphertext := s.aead.Seal(nonce, nonce, plaintext, associatedData)
	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt. A missing key or a mismatched associatedData
// fails with an error; it never silently returns wrong or empty plaintext.
func (s *AESCryptoService) Decrypt(ctx context.Context, ciphertextBase64 string, associatedData []byte) ([]byte, error) {
	data, err := base64.URLEncoding.DecodeString(ciphertextBase64)
	if err != nil {
		return nil, fmt.Errorf("crypto: base64 decode failure: %w", err)
	}
	ns := s.aead.NonceSize()
	if len(data) < ns {
		return nil, errors.New("crypto: ciphertext too short")
	}
	nonce, actualCiphertext := data[:ns], data[ns:]
	plaintext, err := s.aead.Open(nil, nonce, actualCiphertext, associatedData)
	if err != nil {
		return nil, errors.New("crypto: integrity violation, ciphertext or associated data does not match")
	}
	return plaintext, nil
}
