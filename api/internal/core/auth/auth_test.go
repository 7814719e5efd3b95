package auth_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/infrakt/infrakt/api/internal/core/auth"
	"github.com/infrakt/infrakt/api/internal/core/domain"
)

func TestLoadOrCreatePlatformKey_LazyAndStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api_key.txt")

	k1, err := auth.LoadOrCreatePlatformKey(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(k1) < 32 {
		t.Errorf("expected a substantial key, got %q", k1)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("expected mode 600, got %o", info.Mode().Perm())
	}

	k2, err := auth.LoadOrCreatePlatformKey(path)
	if err != nil {
		t.Fatal(err)
	}
	if k1 != k2 {
		t.Errorf("expected stable key across calls")
	}
}

func TestVerifyPlatformKey(t *testing.T) {
	if !auth.VerifyPlatformKey("secret", "secret") {
		t.Error("expected match")
	}
	if auth.VerifyPlatformKey("secret", "other") {
		t.Error("expected mismatch")
	}
	if auth.VerifyPlatformKey("", "secret") || auth.VerifyPlatformKey("secret", "") {
		t.Error("expected empty inputs to never match")
	}
}

func TestFileDeployKeyStore_CreateFindRevoke(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deploy_keys.json")
	store := auth.NewFileDeployKeyStore(path)

	plaintext, key, err := store.Create("ci-prod", []string{"deploy:trigger"})
	if err != nil {
		t.Fatal(err)
	}
	if key.Label != "ci-prod" || !key.HasScope("deploy:trigger") {
		t.Fatalf("unexpected key: %+v", key)
	}

	found, err := store.FindByPlaintext(plaintext)
	if err != nil {
		t.Fatal(err)
	}
	if found == nil || found.Label != "ci-prod" {
		t.Fatalf("expected to find key by plaintext, got %+v", found)
	}

	if found, _ := store.FindByPlaintext("wrong-key"); found != nil {
		t.Errorf("expected no match for wrong key, got %+v", found)
	}

	if err := store.Revoke("ci-prod"); err != nil {
		t.Fatal(err)
	}
	if found, _ := store.FindByPlaintext(plaintext); found != nil {
		t.Errorf("expected revoked key to no longer match, got %+v", found)
	}

	if err := store.Revoke("does-not-exist"); err == nil {
		t.Error("expected error revoking unknown label")
	}
}

func TestFileDeployKeyStore_DuplicateLabelConflict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deploy_keys.json")
	store := auth.NewFileDeployKeyStore(path)

	if _, _, err := store.Create("ci", nil); err != nil {
		t.Fatal(err)
	}
	_, _, err := store.Create("ci", nil)
	if err == nil {
		t.Fatal("expected conflict creating duplicate label")
	}
	var conflict *domain.ConflictError
	if !asConflict(err, &conflict) {
		t.Errorf("expected *domain.ConflictError, got %T: %v", err, err)
	}
}

func asConflict(err error, target **domain.ConflictError) bool {
	if ce, ok := err.(*domain.ConflictError); ok {
		*target = ce
		return true
	}
	return false
}

func TestFileDeployKeyStore_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deploy_keys.json")
	store1 := auth.NewFileDeployKeyStore(path)
	plaintext, _, err := store1.Create("ci", []string{"deploy:trigger"})
	if err != nil {
		t.Fatal(err)
	}

	store2 := auth.NewFileDeployKeyStore(path)
	found, err := store2.FindByPlaintext(plaintext)
	if err != nil {
		t.Fatal(err)
	}
	if found == nil {
		t.Fatal("expected second store instance to see the persisted key")
	}
}
