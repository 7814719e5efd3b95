// Package cli implements infraktctl, a thin HTTP client against infraktd's
// API. No business logic lives here: every command marshals a request,
// calls a route the router already exposes, and prints the response.
package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/infrakt/infrakt/api/internal/config"
)

// apiError wraps a non-2xx infraktd response.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("infraktd: %s (status %d)", e.Body, e.Status)
}

// Client is the CLI's one HTTP collaborator. Every subcommand goes through
// it rather than calling net/http directly.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// newClient resolves the server URL and platform key from, in order: the
// --server/--api-key flags, INFRAKT_SERVER_URL/INFRAKT_API_KEY, the local
// cli.yaml written by "infraktctl init", and finally the daemon's own
// api_key.txt (the common case when infraktctl runs on the same host as
// infraktd, right after its first boot).
func newClient() (*Client, error) {
	cfg := config.Load()
	local, _ := loadCLIConfig(cfg)

	serverURL := serverFlag
	if serverURL == "" {
		serverURL = os.Getenv("INFRAKT_SERVER_URL")
	}
	if serverURL == "" && local != nil {
		serverURL = local.ServerURL
	}
	if serverURL == "" {
		serverURL = "http://localhost:8080"
	}

	apiKey := apiKeyFlag
	if apiKey == "" {
		apiKey = os.Getenv("INFRAKT_API_KEY")
	}
	if apiKey == "" && local != nil {
		apiKey = local.APIKey
	}
	if apiKey == "" {
		data, err := os.ReadFile(cfg.APIKeyPath)
		if err != nil {
			return nil, fmt.Errorf("no platform key available (tried --api-key, INFRAKT_API_KEY, %s, %s): %w", cliConfigPath(cfg), cfg.APIKeyPath, err)
		}
		apiKey = strings.TrimSpace(string(data))
	}

	return &Client{
		baseURL: strings.TrimRight(serverURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// do issues a request against path, marshaling body (if non-nil) as the
// JSON request body and unmarshaling a JSON response into out (if non-nil
// and the response has a body).
func (c *Client) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("X-API-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var eb struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &eb) == nil && eb.Error != "" {
			return &apiError{Status: resp.StatusCode, Body: eb.Error}
		}
		return &apiError{Status: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// getText issues a GET request and returns the raw response body as text,
// for endpoints that don't return JSON (the generated workflow YAML).
func (c *Client) getText(path string) (string, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("X-API-Key", c.apiKey)
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("connecting to %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 300 {
		return "", &apiError{Status: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	return string(respBody), nil
}

// stream issues a GET request and invokes onLine for each "data: ..." line
// of an SSE response, returning when the server closes the stream, the
// request context is cancelled, or an "event: done" frame arrives.
func (c *Client) stream(path string, onLine func(string)) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-API-Key", c.apiKey)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return &apiError{Status: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "data: "):
			onLine(strings.TrimPrefix(line, "data: "))
		case line == "event: done":
			return nil
		}
	}
	return scanner.Err()
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
