package auth

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"filippo.io/age"
	"github.com/zalando/go-keyring"

	"github.com/mrz1836/finora/internal/fileutil"
	finoraerr "github.com/mrz1836/finora/pkg/errors"
)

// Token store kinds accepted in configuration.
const (
	StoreFile    = "file"
	StoreKeyring = "keyring"
	StoreMemory  = "memory"
)

// Keyring service and user names for the keyring store.
const (
	KeyringService = "finora"
	KeyringUser    = "auth_token" // #nosec G101 -- entry name, not a credential
)

// ErrKeyringUnavailable is returned when the OS keyring cannot be used.
var ErrKeyringUnavailable = &finoraerr.FinoraError{
	Code:       "KEYRING_UNAVAILABLE",
	Message:    "OS keyring is not available",
	Suggestion: "set tokens.store to \"file\" in the config",
	ExitCode:   finoraerr.ExitGeneral,
}

// TokenStore persists the bearer token. Get returns "" when no token is
// stored.
type TokenStore interface {
	Get() (string, error)
	Set(token string) error
	Remove() error
}

// MemoryStore keeps the token in memory for the life of the process.
type MemoryStore struct {
	mu    sync.Mutex
	token string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get implements TokenStore.
func (s *MemoryStore) Get() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

// Set implements TokenStore.
func (s *MemoryStore) Set(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

// Remove implements TokenStore.
func (s *MemoryStore) Remove() error {
	return s.Set("")
}

// FileStore keeps the token in an age-encrypted file. The X25519 identity
// used to encrypt it lives in a separate file and is created on first write.
type FileStore struct {
	mu           sync.Mutex
	path         string
	identityPath string
}

// NewFileStore creates a file-backed store.
func NewFileStore(path, identityPath string) *FileStore {
	return &FileStore{path: path, identityPath: identityPath}
}

// Get implements TokenStore.
func (s *FileStore) Get() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ciphertext, err := fileutil.ReadOptional(s.path)
	if err != nil {
		return "", fmt.Errorf("reading token file: %w", err)
	}
	if ciphertext == nil {
		return "", nil
	}

	identity, err := s.loadIdentity(false)
	if err != nil {
		return "", err
	}
	if identity == nil {
		return "", finoraerr.WithDetails(finoraerr.ErrTokenNotFound, map[string]string{
			"reason": "identity file missing",
		})
	}

	r, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return "", fmt.Errorf("decrypting token: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading decrypted token: %w", err)
	}
	return string(plaintext), nil
}

// Set implements TokenStore. An empty token removes the file.
func (s *FileStore) Set(token string) error {
	if token == "" {
		return s.Remove()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	identity, err := s.loadIdentity(true)
	if err != nil {
		return err
	}

	buf := &bytes.Buffer{}
	w, err := age.Encrypt(buf, identity.Recipient())
	if err != nil {
		return fmt.Errorf("initializing encryption: %w", err)
	}
	if _, err := io.WriteString(w, token); err != nil {
		return fmt.Errorf("writing encrypted token: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}

	return fileutil.WriteAtomic(s.path, buf.Bytes(), 0o600)
}

// Remove implements TokenStore. The identity is kept for the next login.
func (s *FileStore) Remove() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fileutil.RemoveIfExists(s.path)
}

// loadIdentity reads the X25519 identity, generating it when create is set.
// It returns nil without error when the file is absent and create is false.
func (s *FileStore) loadIdentity(create bool) (*age.X25519Identity, error) {
	data, err := fileutil.ReadOptional(s.identityPath)
	if err != nil {
		return nil, fmt.Errorf("reading identity file: %w", err)
	}
	if data != nil {
		identity, parseErr := age.ParseX25519Identity(strings.TrimSpace(string(data)))
		if parseErr != nil {
			return nil, fmt.Errorf("parsing identity file: %w", parseErr)
		}
		return identity, nil
	}
	if !create {
		return nil, nil //nolint:nilnil // absent identity is not an error
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating identity: %w", err)
	}
	if err := fileutil.WriteAtomic(s.identityPath, []byte(identity.String()+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("writing identity file: %w", err)
	}
	return identity, nil
}

// Keyring is the subset of an OS keyring the store needs.
type Keyring interface {
	Set(service, user, password string) error
	Get(service, user string) (string, error)
	Delete(service, user string) error
}

// OSKeyring implements Keyring using the OS keychain.
type OSKeyring struct{}

// Set stores a secret in the OS keyring.
func (OSKeyring) Set(service, user, password string) error {
	return keyring.Set(service, user, password)
}

// Get retrieves a secret from the OS keyring.
func (OSKeyring) Get(service, user string) (string, error) {
	return keyring.Get(service, user)
}

// Delete removes a secret from the OS keyring.
func (OSKeyring) Delete(service, user string) error {
	return keyring.Delete(service, user)
}

// KeyringStore keeps the token in an OS keyring.
type KeyringStore struct {
	kr Keyring
}

// NewKeyringStore creates a keyring-backed store.
func NewKeyringStore(kr Keyring) *KeyringStore {
	return &KeyringStore{kr: kr}
}

// Get implements TokenStore.
func (s *KeyringStore) Get() (string, error) {
	token, err := s.kr.Get(KeyringService, KeyringUser)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", finoraerr.WithCause(ErrKeyringUnavailable, err)
	}
	return token, nil
}

// Set implements TokenStore. An empty token removes the entry.
func (s *KeyringStore) Set(token string) error {
	if token == "" {
		return s.Remove()
	}
	if err := s.kr.Set(KeyringService, KeyringUser, token); err != nil {
		return finoraerr.WithCause(ErrKeyringUnavailable, err)
	}
	return nil
}

// Remove implements TokenStore.
func (s *KeyringStore) Remove() error {
	err := s.kr.Delete(KeyringService, KeyringUser)
	if err == nil || errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return finoraerr.WithCause(ErrKeyringUnavailable, err)
}

// ProbeKeyring reports whether kr can round-trip a value.
func ProbeKeyring(kr Keyring) bool {
	const (
		probeService = "finora-probe"
		probeUser    = "probe"
		probeValue   = "test"
	)

	if err := kr.Set(probeService, probeUser, probeValue); err != nil {
		return false
	}
	val, err := kr.Get(probeService, probeUser)
	_ = kr.Delete(probeService, probeUser)
	return err == nil && val == probeValue
}

// NewTokenStore builds the store named by kind. An unavailable keyring
// falls back to the file store.
func NewTokenStore(kind, path, identityPath string, kr Keyring) (TokenStore, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", StoreFile:
		return NewFileStore(path, identityPath), nil
	case StoreMemory:
		return NewMemoryStore(), nil
	case StoreKeyring:
		if kr == nil {
			kr = OSKeyring{}
		}
		if !ProbeKeyring(kr) {
			return NewFileStore(path, identityPath), nil
		}
		return NewKeyringStore(kr), nil
	default:
		return nil, finoraerr.WithDetails(finoraerr.ErrConfigInvalid, map[string]string{
			"tokens.store": kind,
		})
	}
}
