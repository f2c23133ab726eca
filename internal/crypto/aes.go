// Package crypto seals secrets stored in alertagent config files with AES-256-GCM.
//
// A sealed value looks like "enc:aes256:<base64(nonce|ciphertext)>". Values
// without that prefix are plain text and pass through Decrypt unchanged, so
// a config file may mix both. The 32-byte master key is read as 64 hex chars
// from ALERT_AGENT_MASTER_KEY; `encryptkey -generate` prints a new one.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// MasterKeyEnv names the environment variable holding the hex master key.
const MasterKeyEnv = "ALERT_AGENT_MASTER_KEY"

const (
	encPrefix = "enc:aes256:"
	keySize   = 32
)

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("crypto: key must be exactly %d bytes, got %d", keySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Encrypt seals plaintext under key. Every call draws a fresh nonce.
func Encrypt(key []byte, plaintext string) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("crypto: failed to generate nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return encPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Plain values are returned as-is.
func Decrypt(key []byte, value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, encPrefix))
	if err != nil {
		return "", fmt.Errorf("crypto: failed to base64-decode encrypted value: %w", err)
	}
	if len(data) < gcm.NonceSize() {
		return "", fmt.Errorf("crypto: ciphertext too short")
	}

	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("crypto: decryption failed (wrong key or corrupted data): %w", err)
	}
	return string(plaintext), nil
}

// IsEncrypted reports whether value carries the enc:aes256: prefix.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, encPrefix)
}

// GenerateKey returns a random master key as 64 hex chars.
func GenerateKey() (string, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("crypto: failed to generate key: %w", err)
	}
	return hex.EncodeToString(key), nil
}

// ParseKey decodes a hex master key.
func ParseKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("crypto: %s is not valid hex: %w", MasterKeyEnv, err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("crypto: %s must be %d hex chars (%d bytes), got %d bytes", MasterKeyEnv, keySize*2, keySize, len(key))
	}
	return key, nil
}

// MasterKeyFromEnv reads and decodes ALERT_AGENT_MASTER_KEY.
func MasterKeyFromEnv() ([]byte, error) {
	hexKey := os.Getenv(MasterKeyEnv)
	if hexKey == "" {
		return nil, fmt.Errorf("crypto: %s is not set; generate one with: encryptkey -generate", MasterKeyEnv)
	}
	return ParseKey(hexKey)
}

// DecryptValue opens value with the master key from the environment. The key
// is only required when value is actually sealed.
func DecryptValue(value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}
	key, err := MasterKeyFromEnv()
	if err != nil {
		return "", fmt.Errorf("crypto: cannot decrypt config value: %w", err)
	}
	return Decrypt(key, value)
}
