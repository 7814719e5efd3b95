package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/infrakt/infrakt/api/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write infraktctl's local config (server URL and cached platform key)",
	Long: `Writes <home>/cli.yaml so later commands don't need --server on every
invocation. If --api-key is omitted, infraktctl tries to read it from the
daemon's own api_key.txt on this host — the common case right after
infraktd's first boot on the same machine.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().String("server", "", "infraktd base URL, e.g. https://infrakt.example.com")
	initCmd.Flags().String("api-key", "", "platform key; read from the local daemon's api_key.txt if omitted")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	server, _ := cmd.Flags().GetString("server")
	if server == "" {
		return fmt.Errorf("--server is required")
	}

	apiKey, _ := cmd.Flags().GetString("api-key")
	if apiKey == "" {
		data, err := os.ReadFile(cfg.APIKeyPath)
		if err != nil {
			return fmt.Errorf("--api-key not given and %s could not be read: %w", cfg.APIKeyPath, err)
		}
		apiKey = strings.TrimSpace(string(data))
	}

	if err := saveCLIConfig(cfg, &cliConfig{ServerURL: server, APIKey: apiKey}); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", cliConfigPath(cfg))
	return nil
}
