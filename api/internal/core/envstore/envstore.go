// Package envstore persists an App's environment variables as a per-app
// JSON file of encrypted values under Config.EnvsDir, and renders them
// back into .env content for a deploy.
package envstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/infrakt/infrakt/api/internal/infrastructure/crypto"
)

// Store reads and writes the envs directory, encrypting every value with
// crypto bound to an app-specific associated-data tag.
type Store struct {
	Dir    string
	Crypto crypto.Service
}

func NewStore(dir string, svc crypto.Service) *Store { return &Store{Dir: dir, Crypto: svc} }

func (s *Store) path(appID int64) string {
	return filepath.Join(s.Dir, strconv.FormatInt(appID, 10)+".json")
}

func aad(appID int64) []byte {
	return []byte("app-env:" + strconv.FormatInt(appID, 10))
}

func (s *Store) load(appID int64) (map[string]string, error) {
	data, err := os.ReadFile(s.path(appID))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("envstore: reading %d.json: %w", appID, err)
	}
	var enc map[string]string
	if err := json.Unmarshal(data, &enc); err != nil {
		return nil, fmt.Errorf("envstore: parsing %d.json: %w", appID, err)
	}
	return enc, nil
}

func (s *Store) save(appID int64, enc map[string]string) error {
	if err := os.MkdirAll(s.Dir, 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(enc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(appID), data, 0o600)
}

// List returns the decrypted key/value map for appID, or empty if no file
// exists yet.
func (s *Store) List(ctx context.Context, appID int64) (map[string]string, error) {
	enc, err := s.load(appID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(enc))
	for k, v := range enc {
		plain, err := s.Crypto.Decrypt(ctx, v, aad(appID))
		if err != nil {
			return nil, fmt.Errorf("envstore: decrypting %q: %w", k, err)
		}
		out[k] = string(plain)
	}
	return out, nil
}

// Set merges vars into the app's stored set (empty string deletes the key)
// and persists the result.
func (s *Store) Set(ctx context.Context, appID int64, vars map[string]string) error {
	enc, err := s.load(appID)
	if err != nil {
		return err
	}
	for k, v := range vars {
		if v == "" {
			delete(enc, k)
			continue
		}
		ciphertext, err := s.Crypto.Encrypt(ctx, []byte(v), aad(appID))
		if err != nil {
			return fmt.Errorf("envstore: encrypting %q: %w", k, err)
		}
		enc[k] = ciphertext
	}
	return s.save(appID, enc)
}

// Delete removes a single key.
func (s *Store) Delete(ctx context.Context, appID int64, key string) error {
	enc, err := s.load(appID)
	if err != nil {
		return err
	}
	delete(enc, key)
	return s.save(appID, enc)
}

// RenderDotEnv decrypts the app's stored vars and renders deterministic
// (sorted) `.env` file content, matching the original's
// `env_content_for_app`.
func (s *Store) RenderDotEnv(ctx context.Context, appID int64) (string, error) {
	vars, err := s.List(ctx, appID)
	if err != nil {
		return "", err
	}
	if len(vars) == 0 {
		return "", nil
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, vars[k])
	}
	return b.String(), nil
}
