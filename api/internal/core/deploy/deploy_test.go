package deploy_test

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/infrakt/infrakt/api/internal/core/deploy"
	"github.com/infrakt/infrakt/api/internal/core/domain"
	"github.com/infrakt/infrakt/api/internal/core/remote"
	"github.com/infrakt/infrakt/api/internal/telemetry"
)

type fakeApps struct {
	mu   sync.Mutex
	apps map[int64]*domain.App
}

func newFakeApps(apps ...*domain.App) *fakeApps {
	f := &fakeApps{apps: map[int64]*domain.App{}}
	for _, a := range apps {
		f.apps[a.ID] = a
	}
	return f
}

func (f *fakeApps) Create(ctx context.Context, a *domain.App) error { return nil }
func (f *fakeApps) Get(ctx context.Context, id int64) (*domain.App, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.apps[id]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "app", Key: strconv.FormatInt(id, 10)}
	}
	cp := *a
	return &cp, nil
}
func (f *fakeApps) GetByNameAndServer(ctx context.Context, name string, serverID int64) (*domain.App, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeApps) ListDeployable(ctx context.Context) ([]*domain.App, error) { return nil, nil }
func (f *fakeApps) ListByServer(ctx context.Context, serverID int64) ([]*domain.App, error) {
	return nil, nil
}
func (f *fakeApps) ListByGitRepoAndBranch(ctx context.Context, gitRepo, branch string) ([]*domain.App, error) {
	return nil, nil
}
func (f *fakeApps) Update(ctx context.Context, a *domain.App) error { return nil }
func (f *fakeApps) UpdateStatus(ctx context.Context, id int64, status domain.AppStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.apps[id]; ok {
		a.Status = status
	}
	return nil
}
func (f *fakeApps) Delete(ctx context.Context, id int64) error { return nil }

type fakeServers struct {
	mu      sync.Mutex
	servers map[int64]*domain.Server
}

func newFakeServers(servers ...*domain.Server) *fakeServers {
	f := &fakeServers{servers: map[int64]*domain.Server{}}
	for _, s := range servers {
		f.servers[s.ID] = s
	}
	return f
}

func (f *fakeServers) Create(ctx context.Context, s *domain.Server) error { return nil }
func (f *fakeServers) Get(ctx context.Context, id int64) (*domain.Server, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
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

func newEngine(apps domain.AppRepository, servers domain.ServerRepository, deployments domain.DeploymentRepository, runner remote.Runner) *deploy.Engine {
	return &deploy.Engine{
		Apps:        apps,
		Servers:     servers,
		Deployments: deployments,
		Hub:         telemetry.NewHub(),
		Connect: func(ctx context.Context, s *domain.Server) (remote.Runner, error) {
			return runner, nil
		},
	}
}

// S1: deploying an image app writes a compose file referencing the image
// and issues `docker compose up -d --pull always`.
func TestTrigger_ImageDeploy(t *testing.T) {
	ctx := context.Background()
	image := "nginx:1.27"
	app := &domain.App{ID: 1, Name: "demo", ServerID: 1, Port: 8080, Image: &image, DeployStrategy: domain.StrategyRestart}
	apps := newFakeApps(app)
	servers := newFakeServers(&domain.Server{ID: 1, Host: "10.0.0.5", Port: 22, User: "deploy"})
	deployments := newFakeDeployments()
	runner := remote.NewFakeRunner("host1")

	e := newEngine(apps, servers, deployments, runner)
	id, err := e.Trigger(ctx, 1, deploy.TriggerOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dep, _ := deployments.Get(ctx, id)
	if dep.Status != domain.DeploymentSuccess {
		t.Errorf("expected success, got %s", dep.Status)
	}
	if dep.ImageUsed == nil || *dep.ImageUsed != image {
		t.Errorf("expected image used %q, got %v", image, dep.ImageUsed)
	}

	composePath := "/opt/infrakt/apps/demo/docker-compose.yml"
	content, ok := runner.Files[composePath]
	if !ok {
		t.Fatalf("expected compose file at %s", composePath)
	}
	if !strings.Contains(content, image) {
		t.Errorf("expected compose to reference image %q, got:\n%s", image, content)
	}

	found := false
	for _, c := range runner.Commands {
		if strings.Contains(c, "docker compose up -d --pull always") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected pull-always compose up command, got %v", runner.Commands)
	}
}

// S2: deploying a fresh git-sourced app clones the repo and captures HEAD.
func TestTrigger_SourceDeployCapturesHead(t *testing.T) {
	ctx := context.Background()
	repo := "https://github.com/acme/demo.git"
	app := &domain.App{ID: 2, Name: "web", ServerID: 1, Port: 3000, GitRepo: &repo, Branch: "main", DeployStrategy: domain.StrategyRestart}
	apps := newFakeApps(app)
	servers := newFakeServers(&domain.Server{ID: 1, Host: "10.0.0.6", Port: 22, User: "deploy"})
	deployments := newFakeDeployments()
	runner := remote.NewFakeRunner("host1")
	runner.Responses["test -d '/opt/infrakt/apps/web/repo'/.git"] = remote.FakeResponse{ExitCode: 1}
	commit := "abcdef1234567890abcdef1234567890abcdef12"
	runner.Responses["cd '/opt/infrakt/apps/web/repo' && git rev-parse HEAD"] = remote.FakeResponse{Stdout: commit + "\n"}

	e := newEngine(apps, servers, deployments, runner)
	id, err := e.Trigger(ctx, 2, deploy.TriggerOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dep, _ := deployments.Get(ctx, id)
	if dep.CommitHash == nil || *dep.CommitHash != commit {
		t.Errorf("expected commit %q, got %v", commit, dep.CommitHash)
	}

	cloneFound := false
	for _, c := range runner.Commands {
		if strings.HasPrefix(c, "git clone -b 'main'") {
			cloneFound = true
		}
	}
	if !cloneFound {
		t.Errorf("expected clone command, got %v", runner.Commands)
	}
}

// S3: rolling back resets to the pinned commit, never to the branch tip.
func TestTrigger_RollbackToPinnedCommit(t *testing.T) {
	ctx := context.Background()
	repo := "https://github.com/acme/demo.git"
	app := &domain.App{ID: 3, Name: "api", ServerID: 1, Port: 4000, GitRepo: &repo, Branch: "main"}
	apps := newFakeApps(app)
	servers := newFakeServers(&domain.Server{ID: 1, Host: "10.0.0.7", Port: 22, User: "deploy"})
	deployments := newFakeDeployments()
	runner := remote.NewFakeRunner("host1")
	runner.Responses["test -d '/opt/infrakt/apps/api/repo'/.git"] = remote.FakeResponse{ExitCode: 0}
	runner.Responses["cd '/opt/infrakt/apps/api/repo' && git rev-parse HEAD"] = remote.FakeResponse{Stdout: "deadbeef11"}

	e := newEngine(apps, servers, deployments, runner)
	pinned := "1234567"
	if _, err := e.Trigger(ctx, 3, deploy.TriggerOptions{PinnedCommit: pinned}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resetFound := false
	for _, c := range runner.Commands {
		if c == "cd '/opt/infrakt/apps/api/repo' && git fetch origin && git reset --hard '"+pinned+"'" {
			resetFound = true
		}
		if strings.Contains(c, "origin/main") {
			t.Errorf("rollback must not fetch the branch tip, got command %q", c)
		}
	}
	if !resetFound {
		t.Errorf("expected git reset --hard to the pinned commit, got %v", runner.Commands)
	}
}

// An invalid pinned commit must be rejected before any remote side effect.
func TestTrigger_RejectsInvalidPinnedCommitBeforeSideEffects(t *testing.T) {
	ctx := context.Background()
	repo := "https://github.com/acme/demo.git"
	app := &domain.App{ID: 4, Name: "worker", ServerID: 1, Port: 5000, GitRepo: &repo, Branch: "main"}
	apps := newFakeApps(app)
	servers := newFakeServers(&domain.Server{ID: 1, Host: "10.0.0.8", Port: 22, User: "deploy"})
	deployments := newFakeDeployments()
	runner := remote.NewFakeRunner("host1")

	e := newEngine(apps, servers, deployments, runner)
	if _, err := e.Trigger(ctx, 4, deploy.TriggerOptions{PinnedCommit: "not-valid!!"}); err == nil {
		t.Fatal("expected error for invalid pinned commit")
	}
	if len(runner.Commands) != 0 {
		t.Errorf("expected no remote commands before validation failure, got %v", runner.Commands)
	}
}

// An app declaring neither image, git repo, nor inline compose is rejected
// before a Deployment row is even created.
func TestTrigger_RejectsAppWithNoSource(t *testing.T) {
	ctx := context.Background()
	app := &domain.App{ID: 5, Name: "bare", ServerID: 1, Port: 6000}
	apps := newFakeApps(app)
	servers := newFakeServers(&domain.Server{ID: 1, Host: "10.0.0.9", Port: 22, User: "deploy"})
	deployments := newFakeDeployments()
	runner := remote.NewFakeRunner("host1")

	e := newEngine(apps, servers, deployments, runner)
	if _, err := e.Trigger(ctx, 5, deploy.TriggerOptions{}); err == nil {
		t.Fatal("expected validation error")
	}
	if len(deployments.rows) != 0 {
		t.Errorf("expected no deployment row created, got %d", len(deployments.rows))
	}
}
