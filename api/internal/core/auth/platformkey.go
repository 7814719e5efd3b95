// Package auth implements the three-tier credential model: a single
// platform key for the operator, scoped deploy keys for CI/automation, and
// per-app HMAC webhook secrets. None of the three share a code path with
// another — a valid deploy key never satisfies a platform-key check and
// vice versa.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
)

// LoadOrCreatePlatformKey reads the plaintext platform key from path,
// generating and persisting (mode 600) a fresh one on first use.
func LoadOrCreatePlatformKey(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return strings.TrimSpace(string(data)), nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("auth: reading platform key: %w", err)
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: generating platform key: %w", err)
	}
	key := base64.RawURLEncoding.EncodeToString(buf)
	if err := os.WriteFile(path, []byte(key), 0o600); err != nil {
		return "", fmt.Errorf("auth: writing platform key: %w", err)
	}
	return key, nil
}

// VerifyPlatformKey compares provided against expected in constant time,
// hashing both first so the comparison cost never depends on where the
// plaintext prefixes diverge.
func VerifyPlatformKey(provided, expected string) bool {
	if provided == "" || expected == "" {
		return false
	}
	p := sha256.Sum256([]byte(provided))
	e := sha256.Sum256([]byte(expected))
	return subtle.ConstantTimeCompare(p[:], e[:]) == 1
}
