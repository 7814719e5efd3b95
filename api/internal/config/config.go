// Package config centralises all environment-derived settings so no
// business logic hardcodes a path, port, or secret.
package config

import (
	"os"
	"path/filepath"
)

// Config holds every dynamic setting the daemon needs at startup, plus the
// derived on-disk layout under Home.
type Config struct {
	ListenAddr string

	// Home is the control-plane's state directory, INFRAKT_HOME or ~/.infrakt.
	Home string

	DBPath         string
	KeysDir        string
	EnvsDir        string
	BackupsDir     string
	MasterKeyPath  string
	APIKeyPath     string
	DeployKeysPath string

	// CORSOrigins is the comma-separated allow-list for browser clients.
	CORSOrigins []string

	// SelfUpdateSecret authenticates the optional self-update webhook route.
	// Empty disables the route.
	SelfUpdateSecret string
	// SelfUpdateComposeFile is the compose file path consulted by the
	// self-update route to pull and restart the daemon's own image.
	SelfUpdateComposeFile string
	// ReleaseImageTag is the image tag the self-update route pulls.
	ReleaseImageTag string

	// RemoteBase is the base directory created on every provisioned host.
	RemoteBase string
}

// Load parses the environment and applies sensible default fallbacks.
func Load() *Config {
	home := getEnv("INFRAKT_HOME", defaultHome())
	return &Config{
		ListenAddr: getEnv("INFRAKT_LISTEN_ADDR", ":8080"),
		Home:       home,

		DBPath:         filepath.Join(home, "infrakt.db"),
		KeysDir:        filepath.Join(home, "keys"),
		EnvsDir:        filepath.Join(home, "envs"),
		BackupsDir:     filepath.Join(home, "backups"),
		MasterKeyPath:  filepath.Join(home, "master.key"),
		APIKeyPath:     filepath.Join(home, "api_key.txt"),
		DeployKeysPath: filepath.Join(home, "deploy_keys.json"),

		CORSOrigins: splitCSV(getEnv("INFRAKT_CORS_ORIGINS", "")),

		SelfUpdateSecret:      getEnv("INFRAKT_SELF_UPDATE_SECRET", ""),
		SelfUpdateComposeFile: getEnv("INFRAKT_SELF_UPDATE_COMPOSE_FILE", "/opt/infrakt/docker-compose.yml"),
		ReleaseImageTag:       getEnv("INFRAKT_RELEASE_IMAGE_TAG", "latest"),

		RemoteBase: getEnv("INFRAKT_REMOTE_BASE", "/opt/infrakt"),
	}
}

func defaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".infrakt"
	}
	return filepath.Join(home, ".infrakt")
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
