package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/infrakt/infrakt/api/internal/api/handlers"
	"github.com/infrakt/infrakt/api/internal/core/domain"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage SSH deploy keys used to reach remote servers",
}

// deploySSHKeyRequest mirrors the daemon's unexported deploy-key request body.
type deploySSHKeyRequest struct {
	ServerID int64 `json:"server_id"`
}

func init() {
	rootCmd.AddCommand(keyCmd)

	genCmd := &cobra.Command{
		Use:   "generate <name>",
		Short: "Generate a new Ed25519 SSH key pair",
		Args:  cobra.ExactArgs(1),
		RunE:  runKeyGenerate,
	}
	keyCmd.AddCommand(genCmd)

	keyCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List generated SSH keys",
		RunE:  runKeyList,
	})

	rmCmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Delete an SSH key pair",
		Args:  cobra.ExactArgs(1),
		RunE:  runKeyRemove,
	}
	keyCmd.AddCommand(rmCmd)

	deployCmd := &cobra.Command{
		Use:   "deploy <name>",
		Short: "Append a key's public half to a server's authorized_keys",
		Args:  cobra.ExactArgs(1),
		RunE:  runKeyDeploy,
	}
	deployCmd.Flags().String("server", "", "target server (required)")
	_ = deployCmd.MarkFlagRequired("server")
	keyCmd.AddCommand(deployCmd)
}

func resolveSSHKey(c *Client, name string) (*domain.SSHKey, error) {
	var keys []*domain.SSHKey
	if err := c.do("GET", "/api/v1/ssh-keys", nil, &keys); err != nil {
		return nil, err
	}
	for _, k := range keys {
		if k.Name == name {
			return k, nil
		}
	}
	return nil, fmt.Errorf("SSH key %q not found", name)
}

func runKeyGenerate(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	var k domain.SSHKey
	if err := c.do("POST", "/api/v1/ssh-keys", handlers.CreateSSHKeyRequest{Name: args[0]}, &k); err != nil {
		return err
	}
	printJSON(k)
	return nil
}

func runKeyList(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	var keys []*domain.SSHKey
	if err := c.do("GET", "/api/v1/ssh-keys", nil, &keys); err != nil {
		return err
	}
	printJSON(keys)
	return nil
}

func runKeyRemove(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	k, err := resolveSSHKey(c, args[0])
	if err != nil {
		return err
	}
	if err := c.do("DELETE", fmt.Sprintf("/api/v1/ssh-keys/%d", k.ID), nil, nil); err != nil {
		return err
	}
	fmt.Printf("SSH key %q removed\n", args[0])
	return nil
}

func runKeyDeploy(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	k, err := resolveSSHKey(c, args[0])
	if err != nil {
		return err
	}
	serverName, _ := cmd.Flags().GetString("server")
	server, err := resolveServer(c, serverName)
	if err != nil {
		return err
	}
	var resp map[string]string
	if err := c.do("POST", fmt.Sprintf("/api/v1/ssh-keys/%d/deploy", k.ID), deploySSHKeyRequest{ServerID: server.ID}, &resp); err != nil {
		return err
	}
	printJSON(resp)
	return nil
}
