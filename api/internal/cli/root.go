package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// serverFlag and apiKeyFlag are persistent overrides read by newClient,
// taking precedence over the environment and the local cli.yaml.
var (
	serverFlag string
	apiKeyFlag string
)

var rootCmd = &cobra.Command{
	Use:   "infraktctl",
	Short: "infraktctl — operator CLI for a self-hosted infrakt control plane",
	Long: `infraktctl talks to an infraktd daemon over its HTTP API: it holds no
state and runs no business logic of its own.

Common workflow:

  infraktctl init --server https://infrakt.example.com
  infraktctl server add web1 --host 1.2.3.4 --user root
  infraktctl server provision web1
  infraktctl app create myapp --server web1 --image ghcr.io/acme/myapp:latest --port 3000
  infraktctl app deploy myapp
  infraktctl app logs myapp
  infraktctl db create cache1 --server web1 --type redis`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "infraktd base URL (default: cli.yaml, INFRAKT_SERVER_URL, or http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&apiKeyFlag, "api-key", "", "platform key (default: cli.yaml, INFRAKT_API_KEY, or the daemon's api_key.txt)")

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("infraktctl: %w", err)
	}
	return nil
}
