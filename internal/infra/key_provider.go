package infra

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/eliteGoblin/pathfinder/internal/domain"
)

const (
	keyFileName = "store.key"
	keySize     = 32 // 256-bit SQLCipher raw key

	// EnvStoreKey supplies the store key as hex, for CI where no key file persists.
	EnvStoreKey = "PATHFINDER_STORE_KEY"
)

// FileKeyProvider implements domain.KeyProvider using a 0600 file in the data directory.
type FileKeyProvider struct {
	keyPath string
}

// NewFileKeyProvider creates a FileKeyProvider for the given data directory.
func NewFileKeyProvider(dataDir string) *FileKeyProvider {
	return &FileKeyProvider{keyPath: filepath.Join(dataDir, keyFileName)}
}

// GetKey reads the encryption key from the key file.
func (p *FileKeyProvider) GetKey() ([]byte, error) {
	encoded, err := os.ReadFile(p.keyPath)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(encoded)))
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	return key, checkKeySize(key)
}

// StoreKey writes the encryption key with owner-only permissions.
func (p *FileKeyProvider) StoreKey(key []byte) error {
	if err := checkKeySize(key); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p.keyPath), 0700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(key)
	if err := os.WriteFile(p.keyPath, []byte(encoded), 0600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}

// KeyExists checks if the key file exists.
func (p *FileKeyProvider) KeyExists() bool {
	_, err := os.Stat(p.keyPath)
	return err == nil
}

// EnvKeyProvider reads a hex key from the environment. It is read-only.
type EnvKeyProvider struct {
	lookup func(string) (string, bool)
}

// NewEnvKeyProvider creates a provider backed by PATHFINDER_STORE_KEY.
func NewEnvKeyProvider() *EnvKeyProvider {
	return &EnvKeyProvider{lookup: os.LookupEnv}
}

func (p *EnvKeyProvider) GetKey() ([]byte, error) {
	v, ok := p.lookup(EnvStoreKey)
	if !ok {
		return nil, fmt.Errorf("%s not set", EnvStoreKey)
	}
	key, err := hex.DecodeString(strings.TrimSpace(v))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", EnvStoreKey, err)
	}
	return key, checkKeySize(key)
}

func (p *EnvKeyProvider) StoreKey([]byte) error {
	return fmt.Errorf("%s is read-only", EnvStoreKey)
}

func (p *EnvKeyProvider) KeyExists() bool {
	_, ok := p.lookup(EnvStoreKey)
	return ok
}

// ChooseKeyProvider prefers the environment key when set.
func ChooseKeyProvider(dataDir string) domain.KeyProvider {
	env := NewEnvKeyProvider()
	if env.KeyExists() {
		return env
	}
	return NewFileKeyProvider(dataDir)
}

func checkKeySize(key []byte) error {
	if len(key) != keySize {
		return fmt.Errorf("invalid key size: got %d, want %d", len(key), keySize)
	}
	return nil
}

// GenerateKey creates a new random 256-bit key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

// EnsureKey returns the existing key, generating and storing one on first use.
func EnsureKey(provider domain.KeyProvider) ([]byte, error) {
	if provider.KeyExists() {
		return provider.GetKey()
	}
	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := provider.StoreKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

var (
	_ domain.KeyProvider = (*FileKeyProvider)(nil)
	_ domain.KeyProvider = (*EnvKeyProvider)(nil)
)
