package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/infrakt/infrakt/api/internal/api/handlers"
)

var ciCmd = &cobra.Command{
	Use:   "ci",
	Short: "CI/CD integration: scoped deploy keys and workflow generation",
}

func init() {
	rootCmd.AddCommand(ciCmd)

	genCmd := &cobra.Command{
		Use:   "generate-key",
		Short: "Generate a deploy-scoped API key for CI use",
		RunE:  runCIGenerateKey,
	}
	genCmd.Flags().String("label", "", "label for this key, e.g. 'github-actions' (required)")
	_ = genCmd.MarkFlagRequired("label")
	ciCmd.AddCommand(genCmd)

	ciCmd.AddCommand(&cobra.Command{
		Use:   "list-keys",
		Short: "List active deploy keys",
		RunE:  runCIListKeys,
	})

	revokeCmd := &cobra.Command{
		Use:   "revoke-key <label>",
		Short: "Revoke a deploy key",
		Args:  cobra.ExactArgs(1),
		RunE:  runCIRevokeKey,
	}
	ciCmd.AddCommand(revokeCmd)

	setupCmd := &cobra.Command{
		Use:   "setup <app>",
		Short: "Print a GitHub Actions workflow that deploys an app",
		Args:  cobra.ExactArgs(1),
		RunE:  runCISetup,
	}
	setupCmd.Flags().String("server", "", "disambiguate if the app name exists on more than one server")
	ciCmd.AddCommand(setupCmd)
}

func runCIGenerateKey(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	label, _ := cmd.Flags().GetString("label")
	req := handlers.CreateDeployKeyRequest{Label: label, Scopes: []string{"deploy"}}
	var resp map[string]any
	if err := c.do("POST", "/api/v1/ci/keys", req, &resp); err != nil {
		return err
	}
	fmt.Printf("Deploy key generated with label %q\n", label)
	fmt.Printf("Key: %v\n", resp["key"])
	fmt.Println("Save this key — it will not be shown again.")
	return nil
}

func runCIListKeys(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	var keys []map[string]any
	if err := c.do("GET", "/api/v1/ci/keys", nil, &keys); err != nil {
		return err
	}
	printJSON(keys)
	return nil
}

func runCIRevokeKey(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	if err := c.do("DELETE", fmt.Sprintf("/api/v1/ci/keys/%s", args[0]), nil, nil); err != nil {
		return err
	}
	fmt.Printf("Deploy key %q revoked\n", args[0])
	return nil
}

func runCISetup(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	serverName, _ := cmd.Flags().GetString("server")
	app, err := resolveApp(c, args[0], serverName)
	if err != nil {
		return err
	}
	workflow, err := c.getText(fmt.Sprintf("/api/v1/ci/apps/%d/workflow", app.ID))
	if err != nil {
		return err
	}
	fmt.Println("Add these GitHub repository secrets:")
	fmt.Println("  INFRAKT_URL        — this infrakt server's base URL")
	fmt.Println("  INFRAKT_DEPLOY_KEY — generated with 'infraktctl ci generate-key'")
	fmt.Println()
	fmt.Println("Workflow file (.github/workflows/deploy.yml):")
	fmt.Println(workflow)
	return nil
}
