package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Manage a server's reverse-proxy routes",
}

// addRouteRequest mirrors the daemon's unexported add-route request body.
type addRouteRequest struct {
	ServerID int64  `json:"server_id"`
	Domain   string `json:"domain"`
	Port     int    `json:"port"`
	AppName  string `json:"app_name"`
}

func init() {
	rootCmd.AddCommand(proxyCmd)

	addCmd := &cobra.Command{
		Use:   "add <domain>",
		Short: "Route a domain to an app",
		Args:  cobra.ExactArgs(1),
		RunE:  runProxyAdd,
	}
	addCmd.Flags().String("server", "", "server name (required)")
	addCmd.Flags().String("app", "", "app name this domain points to (required)")
	addCmd.Flags().Int("port", 0, "container port (required)")
	_ = addCmd.MarkFlagRequired("server")
	_ = addCmd.MarkFlagRequired("app")
	_ = addCmd.MarkFlagRequired("port")
	proxyCmd.AddCommand(addCmd)

	rmCmd := &cobra.Command{
		Use:   "remove <domain>",
		Short: "Remove a domain route",
		Args:  cobra.ExactArgs(1),
		RunE:  runProxyRemove,
	}
	rmCmd.Flags().String("server", "", "server name (required)")
	_ = rmCmd.MarkFlagRequired("server")
	proxyCmd.AddCommand(rmCmd)

	domainsCmd := &cobra.Command{
		Use:   "domains",
		Short: "List routed domains on a server",
		RunE:  runProxyDomains,
	}
	domainsCmd.Flags().String("server", "", "server name (required)")
	_ = domainsCmd.MarkFlagRequired("server")
	proxyCmd.AddCommand(domainsCmd)

	reloadCmd := &cobra.Command{
		Use:   "reload",
		Short: "Restart the proxy container on a server",
		RunE:  runProxyReload,
	}
	reloadCmd.Flags().String("server", "", "server name (required)")
	_ = reloadCmd.MarkFlagRequired("server")
	proxyCmd.AddCommand(reloadCmd)
}

func runProxyAdd(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	serverName, _ := cmd.Flags().GetString("server")
	appName, _ := cmd.Flags().GetString("app")
	port, _ := cmd.Flags().GetInt("port")
	server, err := resolveServer(c, serverName)
	if err != nil {
		return err
	}
	req := addRouteRequest{ServerID: server.ID, Domain: args[0], Port: port, AppName: appName}
	var resp map[string]string
	if err := c.do("POST", "/api/v1/proxy/routes", req, &resp); err != nil {
		return err
	}
	printJSON(resp)
	return nil
}

func runProxyRemove(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	serverName, _ := cmd.Flags().GetString("server")
	server, err := resolveServer(c, serverName)
	if err != nil {
		return err
	}
	if err := c.do("DELETE", fmt.Sprintf("/api/v1/servers/%d/proxy/domains/%s", server.ID, args[0]), nil, nil); err != nil {
		return err
	}
	fmt.Printf("Removed domain %q from %q\n", args[0], serverName)
	return nil
}

func runProxyDomains(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	serverName, _ := cmd.Flags().GetString("server")
	server, err := resolveServer(c, serverName)
	if err != nil {
		return err
	}
	var domains []string
	if err := c.do("GET", fmt.Sprintf("/api/v1/servers/%d/proxy/domains", server.ID), nil, &domains); err != nil {
		return err
	}
	printJSON(domains)
	return nil
}

func runProxyReload(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	serverName, _ := cmd.Flags().GetString("server")
	server, err := resolveServer(c, serverName)
	if err != nil {
		return err
	}
	var resp map[string]string
	if err := c.do("POST", fmt.Sprintf("/api/v1/servers/%d/proxy/reload", server.ID), nil, &resp); err != nil {
		return err
	}
	printJSON(resp)
	return nil
}
