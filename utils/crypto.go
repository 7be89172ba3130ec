package utils

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"os"
	"strings"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

// OAuth refresh tokens are sealed at rest with XChaCha20-Poly1305.
// CREDENTIALS_ENCRYPTION_KEY must be 32 bytes, base64 encoded.

var (
	sealKey     []byte
	sealKeyOnce sync.Once
	sealKeyErr  error
)

func loadSealKey() ([]byte, error) {
	sealKeyOnce.Do(func() {
		raw := strings.TrimSpace(os.Getenv("CREDENTIALS_ENCRYPTION_KEY"))
		if raw == "" {
			sealKeyErr = errors.New("CREDENTIALS_ENCRYPTION_KEY is required")
			return
		}
		key, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			sealKeyErr = errors.New("CREDENTIALS_ENCRYPTION_KEY must be base64")
			return
		}
		if len(key) != chacha20poly1305.KeySize {
			sealKeyErr = errors.New("CREDENTIALS_ENCRYPTION_KEY must decode to 32 bytes")
			return
		}
		sealKey = key
	})
	return sealKey, sealKeyErr
}

// SealSecret encrypts plaintext and returns base64(nonce||ciphertext).
func SealSecret(plaintext string) (string, error) {
	key, err := loadSealKey()
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// OpenSecret reverses SealSecret. Tampered or truncated input fails authentication.
func OpenSecret(sealed string) (string, error) {
	key, err := loadSealKey()
	if err != nil {
		return "", err
	}
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize() {
		return "", errors.New("sealed secret too short")
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", errors.New("sealed secret failed authentication")
	}
	return string(plaintext), nil
}
