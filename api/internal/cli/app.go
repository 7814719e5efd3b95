package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/infrakt/infrakt/api/internal/api/handlers"
	"github.com/infrakt/infrakt/api/internal/core/domain"
)

var appCmd = &cobra.Command{
	Use:   "app",
	Short: "Manage deployable apps",
}

// deployRequest mirrors the daemon's unexported deploy-request body.
type deployRequest struct {
	PinnedCommit string `json:"commit,omitempty"`
}

func init() {
	rootCmd.AddCommand(appCmd)

	createCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Register a new app on a server",
		Args:  cobra.ExactArgs(1),
		RunE:  runAppCreate,
	}
	createCmd.Flags().String("server", "", "server name (required)")
	createCmd.Flags().String("image", "", "container image, e.g. ghcr.io/acme/app:latest")
	createCmd.Flags().String("git-repo", "", "git repository URL to build and deploy from")
	createCmd.Flags().String("branch", "main", "git branch to deploy")
	createCmd.Flags().String("compose-inline", "", "path to a docker-compose.yml to deploy verbatim")
	createCmd.Flags().String("domain", "", "public domain to route to this app")
	createCmd.Flags().Int("port", 0, "container port (required)")
	createCmd.Flags().Bool("auto-deploy", false, "redeploy automatically on push-webhook events")
	createCmd.Flags().Int("replicas", 1, "replica count")
	createCmd.Flags().String("strategy", "restart", "deploy strategy: restart or rolling")
	_ = createCmd.MarkFlagRequired("server")
	_ = createCmd.MarkFlagRequired("port")
	appCmd.AddCommand(createCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List deployable apps",
		RunE:  runAppList,
	}
	listCmd.Flags().String("server", "", "restrict to one server")
	appCmd.AddCommand(listCmd)

	deployCmd := &cobra.Command{
		Use:   "deploy <name>",
		Short: "Trigger a deploy",
		Args:  cobra.ExactArgs(1),
		RunE:  runAppDeploy,
	}
	deployCmd.Flags().String("server", "", "disambiguate if the app name exists on more than one server")
	deployCmd.Flags().String("commit", "", "pin to a specific commit SHA")
	appCmd.AddCommand(deployCmd)

	rollbackCmd := &cobra.Command{
		Use:   "rollback <name>",
		Short: "Roll back to the last successful deployment",
		Args:  cobra.ExactArgs(1),
		RunE:  runAppRollback,
	}
	rollbackCmd.Flags().String("server", "", "disambiguate if the app name exists on more than one server")
	appCmd.AddCommand(rollbackCmd)

	logsCmd := &cobra.Command{
		Use:   "logs <name>",
		Short: "Show or follow container logs",
		Args:  cobra.ExactArgs(1),
		RunE:  runAppLogs,
	}
	logsCmd.Flags().String("server", "", "disambiguate if the app name exists on more than one server")
	logsCmd.Flags().Int("lines", 200, "number of historical lines")
	logsCmd.Flags().Bool("follow", false, "stream new log lines")
	appCmd.AddCommand(logsCmd)

	for _, spec := range []struct {
		use   string
		short string
		path  string
	}{
		{"stop", "Stop an app's container", "stop"},
		{"restart", "Restart an app's container", "restart"},
	} {
		spec := spec
		cmd := &cobra.Command{
			Use:   spec.use + " <name>",
			Short: spec.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runAppAction(cmd, args, spec.path)
			},
		}
		cmd.Flags().String("server", "", "disambiguate if the app name exists on more than one server")
		appCmd.AddCommand(cmd)
	}

	rmCmd := &cobra.Command{
		Use:   "destroy <name>",
		Short: "Stop and delete an app",
		Args:  cobra.ExactArgs(1),
		RunE:  runAppDestroy,
	}
	rmCmd.Flags().String("server", "", "disambiguate if the app name exists on more than one server")
	appCmd.AddCommand(rmCmd)
}

func runAppCreate(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	serverName, _ := cmd.Flags().GetString("server")
	server, err := resolveServer(c, serverName)
	if err != nil {
		return err
	}

	image, _ := cmd.Flags().GetString("image")
	gitRepo, _ := cmd.Flags().GetString("git-repo")
	branch, _ := cmd.Flags().GetString("branch")
	composeInline, _ := cmd.Flags().GetString("compose-inline")
	domainName, _ := cmd.Flags().GetString("domain")
	port, _ := cmd.Flags().GetInt("port")
	autoDeploy, _ := cmd.Flags().GetBool("auto-deploy")
	replicas, _ := cmd.Flags().GetInt("replicas")
	strategy, _ := cmd.Flags().GetString("strategy")

	appType := domain.AppTypeImage
	switch {
	case composeInline != "":
		appType = domain.AppTypeCompose
	case gitRepo != "":
		appType = domain.AppTypeGit
	}

	req := handlers.CreateAppRequest{
		Name:           args[0],
		ServerID:       server.ID,
		Port:           port,
		Branch:         branch,
		Type:           appType,
		AutoDeploy:     autoDeploy,
		Replicas:       replicas,
		DeployStrategy: domain.DeployStrategy(strategy),
	}
	if image != "" {
		req.Image = &image
	}
	if gitRepo != "" {
		req.GitRepo = &gitRepo
	}
	if composeInline != "" {
		req.ComposeInline = &composeInline
	}
	if domainName != "" {
		req.Domain = &domainName
	}

	var a domain.App
	if err := c.do("POST", "/api/v1/apps", req, &a); err != nil {
		return err
	}
	printJSON(a)
	return nil
}

func runAppList(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	serverName, _ := cmd.Flags().GetString("server")
	path := "/api/v1/apps"
	if serverName != "" {
		server, err := resolveServer(c, serverName)
		if err != nil {
			return err
		}
		path = fmt.Sprintf("/api/v1/apps?server_id=%d", server.ID)
	}
	var apps []*domain.App
	if err := c.do("GET", path, nil, &apps); err != nil {
		return err
	}
	printJSON(apps)
	return nil
}

func appFromFlags(c *Client, cmd *cobra.Command, name string) (*domain.App, error) {
	serverName, _ := cmd.Flags().GetString("server")
	return resolveApp(c, name, serverName)
}

func runAppDeploy(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	app, err := appFromFlags(c, cmd, args[0])
	if err != nil {
		return err
	}
	commit, _ := cmd.Flags().GetString("commit")
	req := deployRequest{PinnedCommit: commit}
	var resp map[string]any
	if err := c.do("POST", fmt.Sprintf("/api/v1/apps/%d/deploy", app.ID), req, &resp); err != nil {
		return err
	}
	printJSON(resp)
	return nil
}

func runAppRollback(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	app, err := appFromFlags(c, cmd, args[0])
	if err != nil {
		return err
	}
	var resp map[string]any
	if err := c.do("POST", fmt.Sprintf("/api/v1/apps/%d/rollback", app.ID), nil, &resp); err != nil {
		return err
	}
	printJSON(resp)
	return nil
}

func runAppLogs(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	app, err := appFromFlags(c, cmd, args[0])
	if err != nil {
		return err
	}
	lines, _ := cmd.Flags().GetInt("lines")
	follow, _ := cmd.Flags().GetBool("follow")
	path := fmt.Sprintf("/api/v1/apps/%d/logs?lines=%d", app.ID, lines)
	if follow {
		path += "&follow=true"
		return c.stream(path, func(line string) {
			fmt.Println(line)
		})
	}
	var resp map[string]any
	if err := c.do("GET", path, nil, &resp); err != nil {
		return err
	}
	printJSON(resp)
	return nil
}

func runAppAction(cmd *cobra.Command, args []string, action string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	app, err := appFromFlags(c, cmd, args[0])
	if err != nil {
		return err
	}
	if err := c.do("POST", fmt.Sprintf("/api/v1/apps/%d/%s", app.ID, action), nil, nil); err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", action, args[0])
	return nil
}

func runAppDestroy(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	app, err := appFromFlags(c, cmd, args[0])
	if err != nil {
		return err
	}
	if err := c.do("DELETE", fmt.Sprintf("/api/v1/apps/%d", app.ID), nil, nil); err != nil {
		return err
	}
	fmt.Printf("App %q destroyed\n", args[0])
	return nil
}
