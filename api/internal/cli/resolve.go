package cli

import (
	"fmt"

	"github.com/infrakt/infrakt/api/internal/core/domain"
)

// resolveServer finds a Server by name. The API indexes servers by id, not
// name, so the CLI (which takes names, matching the original commands)
// lists and filters client-side.
func resolveServer(c *Client, name string) (*domain.Server, error) {
	var servers []*domain.Server
	if err := c.do("GET", "/api/v1/servers", nil, &servers); err != nil {
		return nil, err
	}
	for _, s := range servers {
		if s.Name == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("server %q not found", name)
}

// resolveApp finds an App by name, optionally scoped to a server name to
// disambiguate apps with the same name on different servers.
func resolveApp(c *Client, appName, serverName string) (*domain.App, error) {
	var apps []*domain.App
	path := "/api/v1/apps"
	if serverName != "" {
		server, err := resolveServer(c, serverName)
		if err != nil {
			return nil, err
		}
		path = fmt.Sprintf("/api/v1/apps?server_id=%d", server.ID)
	}
	if err := c.do("GET", path, nil, &apps); err != nil {
		return nil, err
	}
	var match *domain.App
	for _, a := range apps {
		if a.Name != appName {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("app %q is ambiguous across servers, pass --server", appName)
		}
		match = a
	}
	if match == nil {
		return nil, fmt.Errorf("app %q not found", appName)
	}
	return match, nil
}
