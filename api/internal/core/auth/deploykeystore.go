package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/infrakt/infrakt/api/internal/core/domain"
)

// FileDeployKeyStore persists DeployKey rows as a flat JSON array, guarded
// by an in-process mutex since the daemon is the sole writer. The
// plaintext key is never written to disk — only its SHA-256 hex digest.
type FileDeployKeyStore struct {
	mu   sync.Mutex
	path string
}

func NewFileDeployKeyStore(path string) *FileDeployKeyStore {
	return &FileDeployKeyStore{path: path}
}

func (s *FileDeployKeyStore) load() ([]*domain.DeployKey, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("auth: reading deploy key store: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var keys []*domain.DeployKey
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("auth: parsing deploy key store: %w", err)
	}
	return keys, nil
}

func (s *FileDeployKeyStore) save(keys []*domain.DeployKey) error {
	data, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

// Create generates a fresh key, stores only its hash, and returns the
// plaintext exactly once.
func (s *FileDeployKeyStore) Create(label string, scopes []string) (string, *domain.DeployKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.load()
	if err != nil {
		return "", nil, err
	}
	for _, k := range keys {
		if k.Label == label && !k.Revoked {
			return "", nil, &domain.ConflictError{Message: fmt.Sprintf("deploy key %q already exists", label)}
		}
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("auth: generating deploy key: %w", err)
	}
	plaintext := "dk_" + base64.RawURLEncoding.EncodeToString(buf)
	sum := sha256.Sum256([]byte(plaintext))

	key := &domain.DeployKey{
		Label:     label,
		KeyHash:   hex.EncodeToString(sum[:]),
		CreatedAt: time.Now().UTC(),
		Scopes:    scopes,
	}
	keys = append(keys, key)
	if err := s.save(keys); err != nil {
		return "", nil, err
	}
	return plaintext, key, nil
}

func (s *FileDeployKeyStore) List() ([]*domain.DeployKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// FindByPlaintext hashes plaintext and looks it up among non-revoked keys
// in constant time per candidate.
func (s *FileDeployKeyStore) FindByPlaintext(plaintext string) (*domain.DeployKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.load()
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256([]byte(plaintext))
	target := hex.EncodeToString(sum[:])
	for _, k := range keys {
		if k.Revoked {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(k.KeyHash), []byte(target)) == 1 {
			return k, nil
		}
	}
	return nil, nil
}

// Revoke marks label's key(s) revoked. Labels are not required to be
// unique across history, so every non-revoked match is revoked.
func (s *FileDeployKeyStore) Revoke(label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.load()
	if err != nil {
		return err
	}
	found := false
	for _, k := range keys {
		if k.Label == label && !k.Revoked {
			k.Revoked = true
			found = true
		}
	}
	if !found {
		return &domain.NotFoundError{Kind: "deploy key", Key: label}
	}
	return s.save(keys)
}

var _ domain.DeployKeyStore = (*FileDeployKeyStore)(nil)
