package cli

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/infrakt/infrakt/api/internal/config"
)

// cliConfig is infraktctl's own small local config file, distinct from the
// daemon's Config: just enough to avoid retyping --server on every
// invocation.
type cliConfig struct {
	ServerURL string `yaml:"server_url"`
	APIKey    string `yaml:"api_key,omitempty"`
}

func cliConfigPath(cfg *config.Config) string {
	return filepath.Join(cfg.Home, "cli.yaml")
}

func loadCLIConfig(cfg *config.Config) (*cliConfig, error) {
	data, err := os.ReadFile(cliConfigPath(cfg))
	if err != nil {
		return nil, err
	}
	var c cliConfig
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func saveCLIConfig(cfg *config.Config, c *cliConfig) error {
	if err := os.MkdirAll(cfg.Home, 0700); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(cliConfigPath(cfg), data, 0600)
}
