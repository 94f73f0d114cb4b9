package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Bot tokens may be stored sealed so the config file can live in version
// control or shared volumes without exposing credentials. A sealed token is
// "enc:" + base64(nonce || AES-256-GCM ciphertext); the key comes from the
// TokenKeyEnv environment variable as base64 of exactly 32 bytes.
//
// Plaintext tokens are still accepted; callers decide whether to warn.

const (
	sealedPrefix = "enc:"
	// TokenKeyEnv names the environment variable holding the sealing key.
	TokenKeyEnv = "CIBOT_TOKEN_KEY"
)

var ErrNoTokenKey = errors.New("config: " + TokenKeyEnv + " is not set")

// IsSealed reports whether the stored token carries the sealed prefix.
func IsSealed(stored string) bool {
	return strings.HasPrefix(stored, sealedPrefix)
}

func tokenKey() (cipher.AEAD, error) {
	raw := os.Getenv(TokenKeyEnv)
	if raw == "" {
		return nil, ErrNoTokenKey
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("config: %s is not valid base64: %w", TokenKeyEnv, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("config: %s must decode to 32 bytes, got %d", TokenKeyEnv, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Seal encrypts a plaintext token with the key from the environment.
func Seal(plain string) (string, error) {
	aead, err := tokenKey()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, []byte(plain), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// OpenToken returns the cleartext for a stored token. Plaintext tokens pass
// through unchanged; sealed tokens require the environment key and fail
// loudly on mismatch rather than handing a garbage token to the bot API.
func OpenToken(stored string) (string, error) {
	if !IsSealed(stored) {
		return stored, nil
	}
	aead, err := tokenKey()
	if err != nil {
		return "", err
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("config: sealed token is not valid base64: %w", err)
	}
	if len(raw) < aead.NonceSize() {
		return "", errors.New("config: sealed token too short")
	}
	nonce, ct := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("config: token unseal failed: %w", err)
	}
	return string(plain), nil
}
