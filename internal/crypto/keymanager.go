// Package crypto stores the trading API key encrypted at rest and resolves
// it at startup.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations follows the OWASP minimum for PBKDF2-HMAC-SHA256.
	pbkdf2Iterations = 480_000
	saltLen          = 16
	aesKeyLen        = 32
	currentVersion   = 1
)

// sealedKey is the on-disk format of an encrypted API key. Binary fields
// are base64 (standard encoding).
type sealedKey struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// KeyConfig describes where the API key comes from.
type KeyConfig struct {
	// APIKey is used as-is when set.
	APIKey string
	// EncryptedKeyPath is a file written by EncryptAPIKey.
	EncryptedKeyPath string
	// KeyPassword decrypts EncryptedKeyPath.
	KeyPassword string
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	derived := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}
	return gcm, nil
}

// EncryptAPIKey seals apiKey with a key derived from password
// (PBKDF2-HMAC-SHA256, AES-256-GCM) and returns the JSON file contents.
func EncryptAPIKey(apiKey, password string) ([]byte, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("crypto: api key must not be empty")
	}
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generating salt: %w", err)
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}

	return json.MarshalIndent(sealedKey{
		Version:    currentVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, []byte(apiKey), nil)),
	}, "", "  ")
}

// DecryptAPIKey opens a file produced by EncryptAPIKey.
func DecryptAPIKey(data []byte, password string) (string, error) {
	if password == "" {
		return "", errors.New("crypto: password must not be empty")
	}

	var stored sealedKey
	if err := json.Unmarshal(data, &stored); err != nil {
		return "", fmt.Errorf("crypto: parsing encrypted key: %w", err)
	}
	if stored.Version != currentVersion {
		return "", fmt.Errorf("crypto: unsupported version %d", stored.Version)
	}

	var fields [3][]byte
	for i, enc := range []string{stored.Salt, stored.Nonce, stored.Ciphertext} {
		b, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return "", fmt.Errorf("crypto: decoding field %d: %w", i, err)
		}
		fields[i] = b
	}
	salt, nonce, ciphertext := fields[0], fields[1], fields[2]

	gcm, err := newGCM(password, salt)
	if err != nil {
		return "", err
	}
	if len(nonce) != gcm.NonceSize() {
		return "", fmt.Errorf("crypto: nonce length %d, want %d", len(nonce), gcm.NonceSize())
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("crypto: decryption failed (wrong password?): %w", err)
	}
	return string(plaintext), nil
}

// LoadAPIKey resolves the API key: a plain key wins, otherwise the
// encrypted file is decrypted.
func LoadAPIKey(cfg KeyConfig) (string, error) {
	if k := strings.TrimSpace(cfg.APIKey); k != "" {
		return k, nil
	}
	if cfg.EncryptedKeyPath != "" {
		data, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return "", fmt.Errorf("crypto: reading encrypted key file: %w", err)
		}
		return DecryptAPIKey(data, cfg.KeyPassword)
	}
	return "", errors.New("crypto: no api key configured (set api.key or api.encrypted_key_path)")
}

// Fingerprint returns a short, non-reversible identifier of the key for
// logs and lock names.
func Fingerprint(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:6])
}
