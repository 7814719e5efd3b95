package domain

import "time"

// DeployKey is a hashed scoped API credential stored in a local JSON file,
// not the relational store. The plaintext key is shown exactly once, at
// creation time, and never persisted.
type DeployKey struct {
	Label     string    `json:"label"`
	KeyHash   string    `json:"key_hash"` // sha256 hex of the plaintext key
	CreatedAt time.Time `json:"created_at"`
	Scopes    []string  `json:"scopes"`
	Revoked   bool      `json:"revoked"`
}

// HasScope reports whether the key carries the named scope.
func (k *DeployKey) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// DeployKeyStore manages the flat-file deploy key roster. Implementations
// must serialise writes against concurrent CLI/API mutation.
type DeployKeyStore interface {
	Create(label string, scopes []string) (plaintext string, key *DeployKey, err error)
	List() ([]*DeployKey, error)
	// FindByPlaintext returns the matching non-revoked key, or nil.
	FindByPlaintext(plaintext string) (*DeployKey, error)
	Revoke(label string) error
}
