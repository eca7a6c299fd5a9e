package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/manthysbr/ocrflow/internal/core/domain"
)

const (
	sealedPrefix = "enc:v1:"
	keySize      = 32
)

// SecretKey seals settings fields at rest with AES-256-GCM. Each sealed value
// is bound to its field name, so a ciphertext copied into another field fails
// to open.
type SecretKey struct {
	aead cipher.AEAD
}

// SecretKeyPath is where LoadSecretKey keeps the generated key for rc: the
// explicit OCRFLOW_SECRET_KEY_FILE, or a ".key" file beside the settings
// database. An in-memory database has no key file.
func SecretKeyPath(rc domain.RuntimeConfig) string {
	if rc.SecretKeyFile != "" {
		return rc.SecretKeyFile
	}
	if rc.DBPath == "" {
		return ""
	}
	return strings.TrimSuffix(rc.DBPath, filepath.Ext(rc.DBPath)) + ".key"
}

// LoadSecretKey derives the key from rc.SecretKey when set. Otherwise it reads
// the key file at SecretKeyPath(rc), creating it on first use. With neither a
// passphrase nor a key file the key lives only as long as the process, which
// matches an in-memory settings database.
func LoadSecretKey(rc domain.RuntimeConfig) (*SecretKey, error) {
	if rc.SecretKey != "" {
		h := sha256.Sum256([]byte(rc.SecretKey))
		return newSecretKey(h[:])
	}

	path := SecretKeyPath(rc)
	if path == "" {
		key, err := randomKey()
		if err != nil {
			return nil, err
		}
		return newSecretKey(key)
	}

	key, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(key) != keySize {
			return nil, &domain.ConfigError{Setting: "OCRFLOW_SECRET_KEY_FILE", Reason: fmt.Sprintf("%s holds %d bytes, want %d", path, len(key), keySize)}
		}
		return newSecretKey(key)
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("read secret key: %w", err)
	}

	if key, err = randomKey(); err != nil {
		return nil, err
	}
	if err := writeKeyFile(path, key); err != nil {
		return nil, err
	}
	return newSecretKey(key)
}

func randomKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate secret key: %w", err)
	}
	return key, nil
}

// writeKeyFile refuses to replace an existing file.
func writeKeyFile(path string, key []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create secret key: %w", err)
	}
	if _, err := f.Write(key); err != nil {
		f.Close()
		return fmt.Errorf("write secret key: %w", err)
	}
	return f.Close()
}

func newSecretKey(key []byte) (*SecretKey, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return &SecretKey{aead: aead}, nil
}

// Seal encrypts plaintext for the named field. Empty input stays empty.
func (s *SecretKey) Seal(field, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), []byte(field))
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Values without the sealed prefix are returned as is,
// which covers settings written by hand.
func (s *SecretKey) Open(field, value string) (string, error) {
	if !strings.HasPrefix(value, sealedPrefix) {
		return value, nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("open %s: %w", field, err)
	}
	n := s.aead.NonceSize()
	if len(data) < n {
		return "", fmt.Errorf("open %s: ciphertext too short", field)
	}
	plain, err := s.aead.Open(nil, data[:n], data[n:], []byte(field))
	if err != nil {
		return "", fmt.Errorf("open %s: %w", field, err)
	}
	return string(plain), nil
}
