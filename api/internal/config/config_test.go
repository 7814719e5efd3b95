package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	os.Unsetenv("INFRAKT_HOME")
	os.Unsetenv("INFRAKT_LISTEN_ADDR")
	os.Unsetenv("INFRAKT_CORS_ORIGINS")

	cfg := Load()

	if cfg.ListenAddr != ":8080" {
		t.Errorf("expected default listen addr :8080, got %s", cfg.ListenAddr)
	}
	if cfg.DBPath != filepath.Join(cfg.Home, "infrakt.db") {
		t.Errorf("expected db path under home, got %s", cfg.DBPath)
	}
	if len(cfg.CORSOrigins) != 0 {
		t.Errorf("expected no CORS origins by default, got %v", cfg.CORSOrigins)
	}
}

func TestLoad_CustomHomeAndCORS(t *testing.T) {
	os.Setenv("INFRAKT_HOME", "/tmp/infrakt-test-home")
	os.Setenv("INFRAKT_CORS_ORIGINS", "https://a.example.com,https://b.example.com")
	defer os.Unsetenv("INFRAKT_HOME")
	defer os.Unsetenv("INFRAKT_CORS_ORIGINS")

	cfg := Load()

	if cfg.Home != "/tmp/infrakt-test-home" {
		t.Errorf("expected custom home, got %s", cfg.Home)
	}
	if cfg.MasterKeyPath != filepath.Join(cfg.Home, "master.key") {
		t.Errorf("unexpected master key path: %s", cfg.MasterKeyPath)
	}
	want := []string{"https://a.example.com", "https://b.example.com"}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[0] != want[0] || cfg.CORSOrigins[1] != want[1] {
		t.Errorf("expected %v, got %v", want, cfg.CORSOrigins)
	}
}
