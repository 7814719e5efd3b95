// Package source wraps the GitHub REST API calls the Deploy State Machine
// and the onboarding flow need: token validation, repo listing, webhook
// provisioning, and rewriting a clone URL to carry a token. The REST
// client itself is intentionally the standard library's http.Client — a
// third-party GitHub SDK is out of scope, this package is a thin,
// single-purpose wrapper around a handful of endpoints.
package source

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const apiBase = "https://api.github.com"

// RequiredScopes are the OAuth scopes ValidateToken checks the token
// carries before accepting it.
var RequiredScopes = []string{"repo", "admin:repo_hook"}

// Client calls the GitHub REST API on behalf of a single integration
// token.
type Client struct {
	httpClient *http.Client
	token      string
}

func NewClient(token string) *Client {
	return &Client{httpClient: &http.Client{Timeout: 15 * time.Second}, token: token}
}

func (c *Client) authHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
}

// ValidateToken confirms the token is accepted by GitHub and carries every
// scope in RequiredScopes, returning the authenticated username.
func ValidateToken(token string) (string, error) {
	c := NewClient(token)
	req, err := http.NewRequest(http.MethodGet, apiBase+"/user", nil)
	if err != nil {
		return "", err
	}
	c.authHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("source: contacting github: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return "", fmt.Errorf("source: invalid github token")
	}

	var user struct {
		Login string `json:"login"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return "", fmt.Errorf("source: decoding github user: %w", err)
	}

	granted := map[string]bool{}
	for _, s := range strings.Split(resp.Header.Get("x-oauth-scopes"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			granted[s] = true
		}
	}
	var missing []string
	for _, s := range RequiredScopes {
		if !granted[s] {
			missing = append(missing, s)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("source: missing required scope(s): %s", strings.Join(missing, ", "))
	}
	return user.Login, nil
}

// Repo is the subset of a GitHub repository object the app-creation flow
// presents to the operator.
type Repo struct {
	FullName      string `json:"full_name"`
	Name          string `json:"name"`
	Private       bool   `json:"private"`
	DefaultBranch string `json:"default_branch"`
	Description   string `json:"description"`
	HTMLURL       string `json:"html_url"`
	CloneURL      string `json:"clone_url"`
}

// ListRepos returns every repository the token can see, following GitHub's
// Link-header pagination until exhausted.
func (c *Client) ListRepos() ([]Repo, error) {
	var all []Repo
	next := apiBase + "/user/repos?sort=updated&direction=desc&type=all&per_page=100"

	for next != "" {
		req, err := http.NewRequest(http.MethodGet, next, nil)
		if err != nil {
			return nil, err
		}
		c.authHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("source: listing repos: %w", err)
		}
		var page []Repo
		decodeErr := json.NewDecoder(resp.Body).Decode(&page)
		link := resp.Header.Get("Link")
		resp.Body.Close()
		if decodeErr != nil {
			return nil, fmt.Errorf("source: decoding repo page: %w", decodeErr)
		}
		all = append(all, page...)
		next = nextPageURL(link)
	}
	return all, nil
}

// nextPageURL extracts the rel="next" URL from a GitHub Link header.
func nextPageURL(link string) string {
	if link == "" {
		return ""
	}
	for _, part := range strings.Split(link, ",") {
		if !strings.Contains(part, `rel="next"`) {
			continue
		}
		segs := strings.SplitN(part, ";", 2)
		return strings.Trim(strings.TrimSpace(segs[0]), "<>")
	}
	return ""
}

// CreateWebhook registers a push-event webhook on owner/repo pointed at
// webhookURL, signed with secret. Returns the GitHub-assigned hook ID.
func (c *Client) CreateWebhook(owner, repo, webhookURL, secret string) (int64, error) {
	body := map[string]any{
		"name":   "web",
		"active": true,
		"events": []string{"push"},
		"config": map[string]any{
			"url":          webhookURL,
			"content_type": "json",
			"secret":       secret,
			"insecure_ssl": "0",
		},
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequest(http.MethodPost,
		fmt.Sprintf("%s/repos/%s/%s/hooks", apiBase, owner, repo), strings.NewReader(string(buf)))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("source: creating webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return 0, fmt.Errorf("source: github rejected webhook creation (status %d)", resp.StatusCode)
	}
	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return 0, fmt.Errorf("source: decoding webhook response: %w", err)
	}
	return created.ID, nil
}

// DeleteWebhook removes hookID from owner/repo.
func (c *Client) DeleteWebhook(owner, repo string, hookID int64) error {
	req, err := http.NewRequest(http.MethodDelete,
		fmt.Sprintf("%s/repos/%s/%s/hooks/%d", apiBase, owner, repo, hookID), nil)
	if err != nil {
		return err
	}
	c.authHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("source: deleting webhook: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("source: github rejected webhook deletion (status %d)", resp.StatusCode)
	}
	return nil
}

// InjectTokenInURL rewrites a github.com HTTPS clone URL to carry token as
// the userinfo component, so `git clone`/`git fetch` authenticate without
// a credential helper. Non-GitHub URLs pass through unchanged.
func InjectTokenInURL(repoURL, token string) string {
	u, err := url.Parse(repoURL)
	if err != nil {
		return repoURL
	}
	host := strings.ToLower(u.Hostname())
	if host != "github.com" && host != "www.github.com" {
		return repoURL
	}
	u.User = url.User(token)
	return u.String()
}
