package crypto_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/infrakt/infrakt/api/internal/infrastructure/crypto"
)

func TestLoadOrCreateMasterKey_LazyGeneration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "master.key")

	key1, err := crypto.LoadOrCreateMasterKey(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(key1) != 64 { // 32 bytes hex-encoded
		t.Errorf("expected 64 hex chars, got %d", len(key1))
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("expected mode 600, got %o", info.Mode().Perm())
	}

	key2, err := crypto.LoadOrCreateMasterKey(path)
	if err != nil {
		t.Fatal(err)
	}
	if key1 != key2 {
		t.Errorf("expected stable key across calls, got %s then %s", key1, key2)
	}

	if _, err := crypto.NewAESCryptoService(key1); err != nil {
		t.Errorf("expected generated key to be usable: %v", err)
	}
}
