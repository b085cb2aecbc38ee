package client

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrNoStoredCredentials is returned by Update when no credentials exist
// for the project. A missing entry on Load is not an error, it simply means
// an unauthenticated state.
var ErrNoStoredCredentials = errors.New("no stored credentials for project")

// User is the wire identity the API returns from the whoami endpoint
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Credentials is the persisted session triple for one project
type Credentials struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         User   `json:"user"`
}

// CredentialStore persists session credentials scoped by project id, so
// multiple embedded widgets on one host never cross-contaminate sessions.
// Implementations must treat absence as a normal state: Load returns
// (nil, nil) when nothing is stored.
type CredentialStore interface {
	Load(projectID string) (*Credentials, error)
	Save(projectID string, creds Credentials) error
	Update(projectID, accessToken, refreshToken string) error
	Clear(projectID string) error
}

// MemoryStore is an in-process CredentialStore, the default for tests and
// short-lived hosts.
type MemoryStore struct {
	mu    sync.RWMutex
	creds map[string]Credentials
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{creds: make(map[string]Credentials)}
}

func (s *MemoryStore) Load(projectID string) (*Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	creds, ok := s.creds[projectID]
	if !ok {
		return nil, nil
	}
	return &creds, nil
}

func (s *MemoryStore) Save(projectID string, creds Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[projectID] = creds
	return nil
}

func (s *MemoryStore) Update(projectID, accessToken, refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	creds, ok := s.creds[projectID]
	if !ok {
		return ErrNoStoredCredentials
	}
	creds.AccessToken = accessToken
	creds.RefreshToken = refreshToken
	s.creds[projectID] = creds
	return nil
}

func (s *MemoryStore) Clear(projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, projectID)
	return nil
}

// FileStore persists credentials on disk, one file per project, sealed with
// XChaCha20-Poly1305 so tokens are never written in the clear.
type FileStore struct {
	dir  string
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}
}

// NewFileStore builds an encrypted on-disk store. The key must be
// chacha20poly1305.KeySize (32) bytes.
func NewFileStore(dir string, key []byte) (*FileStore, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("credential store key: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("credential store dir: %w", err)
	}
	return &FileStore{dir: dir, aead: aead}, nil
}

func (s *FileStore) Load(projectID string) (*Credentials, error) {
	sealed, err := os.ReadFile(s.path(projectID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	if len(sealed) < chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("credential file for %q is truncated", projectID)
	}
	nonce, box := sealed[:chacha20poly1305.NonceSizeX], sealed[chacha20poly1305.NonceSizeX:]
	plain, err := s.aead.Open(nil, nonce, box, []byte(projectID))
	if err != nil {
		return nil, fmt.Errorf("credential file for %q: %w", projectID, err)
	}

	creds := &Credentials{}
	if err := json.Unmarshal(plain, creds); err != nil {
		return nil, err
	}
	return creds, nil
}

func (s *FileStore) Save(projectID string, creds Credentials) error {
	plain, err := json.Marshal(creds)
	if err != nil {
		return err
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	sealed := s.aead.Seal(nonce, nonce, plain, []byte(projectID))

	return os.WriteFile(s.path(projectID), sealed, 0o600)
}

func (s *FileStore) Update(projectID, accessToken, refreshToken string) error {
	creds, err := s.Load(projectID)
	if err != nil {
		return err
	}
	if creds == nil {
		return ErrNoStoredCredentials
	}
	creds.AccessToken = accessToken
	creds.RefreshToken = refreshToken
	return s.Save(projectID, *creds)
}

func (s *FileStore) Clear(projectID string) error {
	err := os.Remove(s.path(projectID))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *FileStore) path(projectID string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, projectID)
	return filepath.Join(s.dir, "permit_"+safe+".cred")
}
