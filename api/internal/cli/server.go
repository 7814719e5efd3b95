package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/infrakt/infrakt/api/internal/api/handlers"
	"github.com/infrakt/infrakt/api/internal/core/domain"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Manage remote servers",
}

func init() {
	rootCmd.AddCommand(serverCmd)

	addCmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a new server",
		Args:  cobra.ExactArgs(1),
		RunE:  runServerAdd,
	}
	addCmd.Flags().String("host", "", "server IP or hostname (required)")
	addCmd.Flags().String("user", "root", "SSH user")
	addCmd.Flags().Int("port", 22, "SSH port")
	addCmd.Flags().String("key", "", "path to SSH private key")
	addCmd.Flags().String("provider", "", "cloud provider label (hetzner, digitalocean, ...)")
	_ = addCmd.MarkFlagRequired("host")
	serverCmd.AddCommand(addCmd)

	serverCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all registered servers",
		RunE:  runServerList,
	})

	rmCmd := &cobra.Command{
		Use:   "rm <name>",
		Short: "Remove a registered server",
		Args:  cobra.ExactArgs(1),
		RunE:  runServerRemove,
	}
	serverCmd.AddCommand(rmCmd)

	serverCmd.AddCommand(&cobra.Command{
		Use:   "provision <name>",
		Short: "Install Docker, Compose, and Traefik on a server",
		Args:  cobra.ExactArgs(1),
		RunE:  runServerProvision,
	})

	serverCmd.AddCommand(&cobra.Command{
		Use:   "wipe <name>",
		Short: "Tear down everything provision installed",
		Args:  cobra.ExactArgs(1),
		RunE:  runServerWipe,
	})

	serverCmd.AddCommand(&cobra.Command{
		Use:   "status <name>",
		Short: "Show a server's lifecycle state and recent resource metrics",
		Args:  cobra.ExactArgs(1),
		RunE:  runServerStatus,
	})

	serverCmd.AddCommand(&cobra.Command{
		Use:   "test-connection <name>",
		Short: "Verify SSH connectivity to a server",
		Args:  cobra.ExactArgs(1),
		RunE:  runServerTestConnection,
	})
}

func runServerAdd(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	host, _ := cmd.Flags().GetString("host")
	user, _ := cmd.Flags().GetString("user")
	port, _ := cmd.Flags().GetInt("port")
	key, _ := cmd.Flags().GetString("key")
	provider, _ := cmd.Flags().GetString("provider")

	req := handlers.CreateServerRequest{
		Name: args[0],
		Host: host,
		Port: port,
		User: user,
	}
	if key != "" {
		req.SSHKeyPath = &key
	}
	if provider != "" {
		req.Provider = &provider
	}

	var s domain.Server
	if err := c.do("POST", "/api/v1/servers", req, &s); err != nil {
		return err
	}
	printJSON(s)
	return nil
}

func runServerList(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	var servers []*domain.Server
	if err := c.do("GET", "/api/v1/servers", nil, &servers); err != nil {
		return err
	}
	printJSON(servers)
	return nil
}

func runServerRemove(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	s, err := resolveServer(c, args[0])
	if err != nil {
		return err
	}
	if err := c.do("DELETE", fmt.Sprintf("/api/v1/servers/%d", s.ID), nil, nil); err != nil {
		return err
	}
	fmt.Printf("Server %q removed\n", args[0])
	return nil
}

func runServerProvision(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	s, err := resolveServer(c, args[0])
	if err != nil {
		return err
	}
	var resp map[string]string
	if err := c.do("POST", fmt.Sprintf("/api/v1/servers/%d/provision", s.ID), map[string]string{}, &resp); err != nil {
		return err
	}
	fmt.Printf("Provisioning %q — poll 'infraktctl server status %s' for progress\n", args[0], args[0])
	return nil
}

func runServerWipe(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	s, err := resolveServer(c, args[0])
	if err != nil {
		return err
	}
	var resp map[string]string
	if err := c.do("POST", fmt.Sprintf("/api/v1/servers/%d/wipe", s.ID), nil, &resp); err != nil {
		return err
	}
	printJSON(resp)
	return nil
}

func runServerStatus(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	s, err := resolveServer(c, args[0])
	if err != nil {
		return err
	}
	var resp map[string]any
	if err := c.do("GET", fmt.Sprintf("/api/v1/servers/%d/status", s.ID), nil, &resp); err != nil {
		return err
	}
	printJSON(resp)
	return nil
}

func runServerTestConnection(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	s, err := resolveServer(c, args[0])
	if err != nil {
		return err
	}
	var resp map[string]any
	if err := c.do("POST", fmt.Sprintf("/api/v1/servers/%d/test-connection", s.ID), nil, &resp); err != nil {
		return err
	}
	printJSON(resp)
	return nil
}
