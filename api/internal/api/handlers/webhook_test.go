package handlers_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/infrakt/infrakt/api/internal/api/handlers"
	"github.com/infrakt/infrakt/api/internal/core/deploy"
	"github.com/infrakt/infrakt/api/internal/core/domain"
	"github.com/infrakt/infrakt/api/internal/core/remote"
	"github.com/infrakt/infrakt/api/internal/telemetry"
)

type fakeApps struct {
	mu   sync.Mutex
	apps []*domain.App
}

func (f *fakeApps) Create(ctx context.Context, a *domain.App) error { return nil }
func (f *fakeApps) Get(ctx context.Context, id int64) (*domain.App, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.apps {
		if a.ID == id {
			cp := *a
			return &cp, nil
		}
	}
	return nil, &domain.NotFoundError{Kind: "app", Key: strconv.FormatInt(id, 10)}
}
func (f *fakeApps) GetByNameAndServer(ctx context.Context, name string, serverID int64) (*domain.App, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeApps) ListDeployable(ctx context.Context) ([]*domain.App, error) { return nil, nil }
func (f *fakeApps) ListByServer(ctx context.Context, serverID int64) ([]*domain.App, error) {
	return nil, nil
}
func (f *fakeApps) ListByGitRepoAndBranch(ctx context.Context, gitRepo, branch string) ([]*domain.App, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.App
	for _, a := range f.apps {
		if a.GitRepo != nil && *a.GitRepo == gitRepo && a.Branch == branch {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}
func (f *fakeApps) Update(ctx context.Context, a *domain.App) error { return nil }
func (f *fakeApps) UpdateStatus(ctx context.Context, id int64, status domain.AppStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.apps {
		if a.ID == id {
			a.Status = status
		}
	}
	return nil
}
func (f *fakeApps) Delete(ctx context.Context, id int64) error { return nil }

type fakeServers struct {
	servers map[int64]*domain.Server
}

func (f *fakeServers) Create(ctx context.Context, s *domain.Server) error { return nil }
func (f *fakeServers) Get(ctx context.Context, id int64) (*domain.Server, error) {
	s, ok := f.servers[id]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "server", Key: strconv.FormatInt(id, 10)}
	}
	cp := *s
	return &cp, nil
}
func (f *fakeServers) GetByName(ctx context.Context, name string) (*domain.Server, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeServers) List(ctx context.Context) ([]*domain.Server, error) { return nil, nil }
func (f *fakeServers) UpdateStatus(ctx context.Context, id int64, status domain.ServerStatus) error {
	return nil
}
func (f *fakeServers) Delete(ctx context.Context, id int64) error { return nil }

type fakeDeployments struct {
	mu   sync.Mutex
	next int64
	rows map[int64]*domain.Deployment
}

func newFakeDeployments() *fakeDeployments {
	return &fakeDeployments{rows: map[int64]*domain.Deployment{}}
}

func (f *fakeDeployments) Create(ctx context.Context, d *domain.Deployment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	d.ID = f.next
	cp := *d
	f.rows[d.ID] = &cp
	return nil
}
func (f *fakeDeployments) Get(ctx context.Context, id int64) (*domain.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.rows[id]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "deployment", Key: strconv.FormatInt(id, 10)}
	}
	cp := *d
	return &cp, nil
}
func (f *fakeDeployments) ListByApp(ctx context.Context, appID int64) ([]*domain.Deployment, error) {
	return nil, nil
}
func (f *fakeDeployments) LastSuccessful(ctx context.Context, appID int64) (*domain.Deployment, error) {
	return nil, nil
}
func (f *fakeDeployments) Finish(ctx context.Context, id int64, status domain.DeploymentStatus, commitHash, imageUsed *string, log string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.rows[id]
	if !ok {
		return &domain.NotFoundError{Kind: "deployment", Key: strconv.FormatInt(id, 10)}
	}
	d.Status = status
	d.CommitHash = commitHash
	d.ImageUsed = imageUsed
	d.Log = log
	return nil
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func newTestHandler(apps *fakeApps, servers *fakeServers, deployments *fakeDeployments, runner remote.Runner) *handlers.GithubWebhookHandler {
	engine := &deploy.Engine{
		Apps:        apps,
		Servers:     servers,
		Deployments: deployments,
		Hub:         telemetry.NewHub(),
		Connect: func(ctx context.Context, s *domain.Server) (remote.Runner, error) {
			return runner, nil
		},
	}
	logger := slog.New(slog.NewTextHandler(testWriter{}, nil))
	return handlers.NewGithubWebhookHandler(apps, engine, logger)
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func postWebhook(t *testing.T, h *handlers.GithubWebhookHandler, event string, body []byte, sig string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/deploy/github-webhook", strings.NewReader(string(body)))
	req.Header.Set("X-GitHub-Event", event)
	if sig != "" {
		req.Header.Set("X-Hub-Signature-256", sig)
	}
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

func TestGithubWebhook_Ping(t *testing.T) {
	h := newTestHandler(&fakeApps{}, &fakeServers{servers: map[int64]*domain.Server{}}, newFakeDeployments(), remote.NewFakeRunner("host1"))
	rec := postWebhook(t, h, "ping", []byte(`{}`), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["message"] != "pong" {
		t.Errorf("expected pong, got %v", body)
	}
}

func TestGithubWebhook_NonPushIgnored(t *testing.T) {
	h := newTestHandler(&fakeApps{}, &fakeServers{servers: map[int64]*domain.Server{}}, newFakeDeployments(), remote.NewFakeRunner("host1"))
	rec := postWebhook(t, h, "issues", []byte(`{}`), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestGithubWebhook_MissingSignatureRejected(t *testing.T) {
	h := newTestHandler(&fakeApps{}, &fakeServers{servers: map[int64]*domain.Server{}}, newFakeDeployments(), remote.NewFakeRunner("host1"))
	rec := postWebhook(t, h, "push", []byte(`{}`), "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGithubWebhook_NoMatchingApp(t *testing.T) {
	h := newTestHandler(&fakeApps{}, &fakeServers{servers: map[int64]*domain.Server{}}, newFakeDeployments(), remote.NewFakeRunner("host1"))
	body := []byte(`{"ref":"refs/heads/main","repository":{"clone_url":"https://github.com/acme/demo.git"}}`)
	rec := postWebhook(t, h, "push", body, sign("irrelevant", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["message"] != "No matching app for this repo/branch" {
		t.Errorf("unexpected message: %v", resp)
	}
}

func TestGithubWebhook_WrongSignatureSkipsApp(t *testing.T) {
	repo := "https://github.com/acme/demo.git"
	secret := "s3cret"
	app := &domain.App{ID: 1, Name: "web", ServerID: 1, GitRepo: &repo, Branch: "main", WebhookSecret: &secret, AutoDeploy: true, Image: strPtr("nginx")}
	apps := &fakeApps{apps: []*domain.App{app}}
	servers := &fakeServers{servers: map[int64]*domain.Server{1: {ID: 1, Host: "10.0.0.1", Port: 22, User: "deploy"}}}
	h := newTestHandler(apps, servers, newFakeDeployments(), remote.NewFakeRunner("host1"))

	body := []byte(`{"ref":"refs/heads/main","repository":{"clone_url":"https://github.com/acme/demo.git"}}`)
	rec := postWebhook(t, h, "push", body, sign("wrong-secret", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["message"] != "No matching app for this repo/branch" {
		t.Errorf("expected no match for bad signature, got %v", resp)
	}
}

func TestGithubWebhook_AutoDeployDisabled(t *testing.T) {
	repo := "https://github.com/acme/demo.git"
	secret := "s3cret"
	app := &domain.App{ID: 1, Name: "web", ServerID: 1, GitRepo: &repo, Branch: "main", WebhookSecret: &secret, AutoDeploy: false, Image: strPtr("nginx")}
	apps := &fakeApps{apps: []*domain.App{app}}
	servers := &fakeServers{servers: map[int64]*domain.Server{1: {ID: 1, Host: "10.0.0.1", Port: 22, User: "deploy"}}}
	h := newTestHandler(apps, servers, newFakeDeployments(), remote.NewFakeRunner("host1"))

	body := []byte(`{"ref":"refs/heads/main","repository":{"clone_url":"https://github.com/acme/demo.git"}}`)
	rec := postWebhook(t, h, "push", body, sign(secret, body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["message"] != "Auto-deploy disabled for 'web'" {
		t.Errorf("unexpected message: %v", resp)
	}
}

func TestGithubWebhook_TriggersDeployOnMatch(t *testing.T) {
	repo := "https://github.com/acme/demo.git"
	secret := "s3cret"
	app := &domain.App{ID: 1, Name: "web", ServerID: 1, GitRepo: &repo, Branch: "main", WebhookSecret: &secret, AutoDeploy: true, Image: strPtr("nginx")}
	apps := &fakeApps{apps: []*domain.App{app}}
	servers := &fakeServers{servers: map[int64]*domain.Server{1: {ID: 1, Host: "10.0.0.1", Port: 22, User: "deploy"}}}
	deployments := newFakeDeployments()
	h := newTestHandler(apps, servers, deployments, remote.NewFakeRunner("host1"))

	body := []byte(`{"ref":"refs/heads/main","repository":{"clone_url":"https://github.com/acme/demo.git"}}`)
	rec := postWebhook(t, h, "push", body, sign(secret, body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["message"] != "Deploy triggered for 'web'" {
		t.Errorf("unexpected message: %v", resp)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		deployments.mu.Lock()
		n := len(deployments.rows)
		deployments.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	deployments.mu.Lock()
	defer deployments.mu.Unlock()
	if len(deployments.rows) != 1 {
		t.Fatalf("expected background trigger to create one deployment, got %d", len(deployments.rows))
	}
}

func strPtr(s string) *string { return &s }
