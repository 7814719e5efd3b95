// Package deploy implements the deploy state machine: the single code path
// that realises an App's declared source (image, git repo, or inline
// compose) on its Server and records the outcome as a Deployment. The CLI,
// the authenticated HTTP API, and the push-webhook ingest handler all call
// Engine.Trigger rather than each driving SSH commands themselves.
package deploy

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/infrakt/infrakt/api/internal/core/compose"
	"github.com/infrakt/infrakt/api/internal/core/domain"
	"github.com/infrakt/infrakt/api/internal/core/reconcile"
	"github.com/infrakt/infrakt/api/internal/core/remote"
	"github.com/infrakt/infrakt/api/internal/core/source"
	"github.com/infrakt/infrakt/api/internal/infrastructure/crypto"
	"github.com/infrakt/infrakt/api/internal/telemetry"
)

// appBase is the fixed parent directory for every app's working tree on a
// managed host.
const appBase = "/opt/infrakt/apps"

// sourceTokenAAD binds the encrypted source-integration token at rest; the
// handler that saves the token must encrypt with this same associated data.
var sourceTokenAAD = []byte("source-integration-token")

// AppDir validates name and returns its fixed remote working directory.
func AppDir(name string) (string, error) {
	if err := compose.ValidateName(name); err != nil {
		return "", err
	}
	return appBase + "/" + name, nil
}

// Connector opens a Runner against a Server. Production wiring dials a real
// SSH connection; tests substitute one backed by remote.FakeRunner.
type Connector func(ctx context.Context, s *domain.Server) (remote.Runner, error)

// DefaultConnect dials the managed host over SSH using the Server's
// configured key path.
func DefaultConnect(ctx context.Context, s *domain.Server) (remote.Runner, error) {
	keyPath := ""
	if s.SSHKeyPath != nil {
		keyPath = *s.SSHKeyPath
	}
	return remote.Dial(ctx, remote.Target{Host: s.Host, Port: s.Port, User: s.User, KeyPath: keyPath})
}

// TriggerOptions carries the per-invocation overrides layered on top of an
// App's persisted declaration.
type TriggerOptions struct {
	// PinnedCommit, when set, rolls a git-sourced app back to this commit
	// instead of fetching the branch tip.
	PinnedCommit string
	// EnvContent, when non-empty, is uploaded as the app's .env before
	// materialisation.
	EnvContent string
	// ComposeOverride, when non-empty, is written as docker-compose.yml
	// verbatim instead of a generated or repository-provided one.
	ComposeOverride string
}

// DeployResult carries what a single deploy attempt observed.
type DeployResult struct {
	Log        []string
	CommitHash *string
	ImageUsed  *string
}

// Engine owns the per-app serialization lock table and the collaborators
// the state machine needs: repositories to read the declared App and record
// the Deployment, the crypto service to decrypt a stored source token, and
// the Log Broadcaster that streams progress to live subscribers.
type Engine struct {
	Apps               domain.AppRepository
	Servers            domain.ServerRepository
	Deployments        domain.DeploymentRepository
	SourceIntegrations domain.SourceIntegrationRepository
	Crypto             crypto.Service
	Hub                *telemetry.Broadcaster
	Connect            Connector

	locks sync.Map // appID -> *sync.Mutex
}

// NewEngine wires an Engine with the default SSH connector.
func NewEngine(apps domain.AppRepository, servers domain.ServerRepository, deployments domain.DeploymentRepository, sourceIntegrations domain.SourceIntegrationRepository, cryptoSvc crypto.Service, hub *telemetry.Broadcaster) *Engine {
	return &Engine{
		Apps:               apps,
		Servers:            servers,
		Deployments:        deployments,
		SourceIntegrations: sourceIntegrations,
		Crypto:             cryptoSvc,
		Hub:                hub,
		Connect:            DefaultConnect,
	}
}

func (e *Engine) lockFor(appID int64) *sync.Mutex {
	v, _ := e.locks.LoadOrStore(appID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Trigger runs one deploy attempt for appID, serialized against any other
// in-flight deploy of the same app (concurrent triggers queue behind the
// app's lock rather than racing the same compose project). It always
// creates a Deployment row before doing anything remote, so a connection
// failure is still recorded.
func (e *Engine) Trigger(ctx context.Context, appID int64, opts TriggerOptions) (int64, error) {
	app, err := e.Apps.Get(ctx, appID)
	if err != nil {
		return 0, err
	}
	if !app.HasExactlyOneSource() && opts.ComposeOverride == "" {
		return 0, &domain.ValidationError{Field: "app", Message: "exactly one of image, git_repo, or compose_inline must be set"}
	}
	server, err := e.Servers.Get(ctx, app.ServerID)
	if err != nil {
		return 0, err
	}

	mu := e.lockFor(app.ID)
	mu.Lock()
	defer mu.Unlock()

	dep := &domain.Deployment{
		AppID:     app.ID,
		Status:    domain.DeploymentInProgress,
		StartedAt: time.Now().UTC(),
	}
	if err := e.Deployments.Create(ctx, dep); err != nil {
		return 0, err
	}
	key := strconv.FormatInt(dep.ID, 10)
	e.Hub.Register(key)
	_ = e.Apps.UpdateStatus(ctx, app.ID, domain.AppDeploying)

	publish := func(line string) { e.Hub.Publish(key, line) }

	runner, connErr := e.Connect(ctx, server)
	var result DeployResult
	var deployErr error
	if connErr != nil {
		line := fmt.Sprintf("[%s] failed to connect to %s: %v", time.Now().UTC().Format(time.RFC3339), server.Host, connErr)
		result.Log = []string{line}
		publish(line)
		deployErr = &domain.DeploymentError{App: app.Name, Log: result.Log, Err: connErr}
	} else {
		defer runner.Close()
		result, deployErr = e.deployApp(ctx, runner, app, opts, publish)
	}

	status := domain.DeploymentSuccess
	newAppStatus := domain.AppRunning
	if deployErr != nil {
		status = domain.DeploymentFailed
		newAppStatus = domain.AppError
	}
	_ = e.Deployments.Finish(ctx, dep.ID, status, result.CommitHash, result.ImageUsed, strings.Join(result.Log, "\n"))
	e.Hub.Finish(key)
	e.Hub.ScheduleCleanup(key)
	_ = e.Apps.UpdateStatus(ctx, app.ID, newAppStatus)

	return dep.ID, deployErr
}

// deployApp runs the validate -> ensure_dir -> upload_env -> materialise ->
// apply -> gate_health sequence against an already-open Runner.
func (e *Engine) deployApp(ctx context.Context, r remote.Runner, app *domain.App, opts TriggerOptions, logFn func(string)) (DeployResult, error) {
	var lines []string
	result := DeployResult{}
	log := func(msg string) {
		line := fmt.Sprintf("[%s] %s", time.Now().UTC().Format(time.RFC3339), msg)
		lines = append(lines, line)
		if logFn != nil {
			logFn(line)
		}
	}
	fail := func(err error) (DeployResult, error) {
		result.Log = lines
		return result, &domain.DeploymentError{App: app.Name, Log: lines, Err: err}
	}

	appPath, err := AppDir(app.Name)
	if err != nil {
		return fail(err)
	}

	branch := app.Branch
	if branch == "" {
		branch = "main"
	}
	if err := compose.ValidateBranch(branch); err != nil {
		return fail(err)
	}
	pinned := opts.PinnedCommit
	if pinned != "" {
		if err := compose.ValidateCommit(pinned); err != nil {
			return fail(err)
		}
	}

	log(fmt.Sprintf("Starting deployment of %q", app.Name))

	if _, err := r.RunChecked(ctx, "mkdir -p "+remote.Quote(appPath), 30*time.Second); err != nil {
		return fail(err)
	}

	if opts.EnvContent != "" {
		if err := r.UploadString(ctx, opts.EnvContent, appPath+"/.env"); err != nil {
			return fail(err)
		}
		log("Uploaded .env")
	}

	hasGit := app.GitRepo != nil && *app.GitRepo != ""
	hasImage := app.Image != nil && *app.Image != ""
	hasCompose := opts.ComposeOverride != "" || (app.ComposeInline != nil && *app.ComposeInline != "")

	switch {
	case hasGit:
		if err := e.deployFromGit(ctx, r, app, appPath, branch, pinned, opts, log, &result); err != nil {
			return fail(err)
		}
	case hasImage:
		if err := e.deployFromImage(ctx, r, app, appPath, log, &result); err != nil {
			return fail(err)
		}
	case hasCompose:
		content := opts.ComposeOverride
		if content == "" {
			content = *app.ComposeInline
		}
		if err := e.deployFromComposeOverride(ctx, r, appPath, content, log); err != nil {
			return fail(err)
		}
	default:
		return fail(fmt.Errorf("no deployment source specified for %q", app.Name))
	}

	if app.DeployStrategy == domain.StrategyRolling && app.HealthCheckURL != nil && *app.HealthCheckURL != "" {
		if err := e.gateHealth(ctx, r, app, appPath, log); err != nil {
			return fail(err)
		}
	}

	log("Deployment complete")
	result.Log = lines
	return result, nil
}

func (e *Engine) deployFromGit(ctx context.Context, r remote.Runner, app *domain.App, appPath, branch, pinned string, opts TriggerOptions, log func(string), result *DeployResult) error {
	gitRepo := *app.GitRepo
	if err := compose.ValidateRepoURL(gitRepo); err != nil {
		return err
	}

	if e.SourceIntegrations != nil && e.Crypto != nil {
		if si, err := e.SourceIntegrations.Get(ctx); err == nil && si != nil {
			if token, derr := e.Crypto.Decrypt(ctx, si.TokenEncrypted, sourceTokenAAD); derr == nil {
				gitRepo = source.InjectTokenInURL(gitRepo, string(token))
			}
		}
	}

	repoPath := appPath + "/repo"
	qRepo := remote.Quote(repoPath)
	qAppPath := remote.Quote(appPath)

	_, _, code, _ := r.Run(ctx, "test -d "+qRepo+"/.git", 10*time.Second)
	if code == 0 {
		if pinned != "" {
			log(fmt.Sprintf("Rolling back to commit %s", pinned))
			cmd := fmt.Sprintf("cd %s && git fetch origin && git reset --hard %s", qRepo, remote.Quote(pinned))
			if _, err := r.RunChecked(ctx, cmd, 120*time.Second); err != nil {
				return err
			}
		} else {
			log("Pulling latest changes")
			cmd := fmt.Sprintf("cd %s && git fetch origin && git reset --hard origin/%s", qRepo, remote.Quote(branch))
			if _, err := r.RunChecked(ctx, cmd, 120*time.Second); err != nil {
				return err
			}
		}
	} else {
		log(fmt.Sprintf("Cloning %s (branch: %s)", *app.GitRepo, branch))
		cmd := fmt.Sprintf("git clone -b %s %s %s", remote.Quote(branch), remote.Quote(gitRepo), qRepo)
		if _, err := r.RunChecked(ctx, cmd, 120*time.Second); err != nil {
			return err
		}
	}

	stdout, err := r.RunChecked(ctx, "cd "+qRepo+" && git rev-parse HEAD", 30*time.Second)
	if err != nil {
		return err
	}
	commit := strings.TrimSpace(stdout)
	if len(commit) > 40 {
		commit = commit[:40]
	}
	result.CommitHash = &commit

	_, _, hasComposeFile, _ := r.Run(ctx, "test -f "+qRepo+"/docker-compose.yml", 10*time.Second)
	if hasComposeFile == 0 && opts.ComposeOverride == "" {
		log("Using docker-compose.yml from repository")
		cmd := fmt.Sprintf("cd %s && docker compose --env-file %s/.env up -d --build --remove-orphans", qRepo, qAppPath)
		if _, err := r.RunChecked(ctx, cmd, 600*time.Second); err != nil {
			return err
		}
		return nil
	}

	content := opts.ComposeOverride
	if content == "" {
		spec := compose.AppSpec{
			Name:                app.Name,
			Port:                app.Port,
			BuildContext:        "./repo",
			CPULimit:            strOr(app.CPULimit),
			MemoryLimit:         strOr(app.MemoryLimit),
			Replicas:            app.Replicas,
			DeployStrategy:      string(app.DeployStrategy),
			HealthCheckURL:      strOr(app.HealthCheckURL),
			HealthCheckInterval: intOr(app.HealthCheckInterval),
		}
		rendered, err := compose.RenderApp(spec)
		if err != nil {
			return err
		}
		content = rendered
	}
	if err := r.UploadString(ctx, content, appPath+"/docker-compose.yml"); err != nil {
		return err
	}
	log("Generated docker-compose.yml")
	cmd := fmt.Sprintf("cd %s && docker compose up -d --build --remove-orphans", qAppPath)
	_, err = r.RunChecked(ctx, cmd, 600*time.Second)
	return err
}

func (e *Engine) deployFromImage(ctx context.Context, r remote.Runner, app *domain.App, appPath string, log func(string), result *DeployResult) error {
	image := *app.Image
	var content string
	var err error
	if app.Type.IsDatabase() {
		content, err = renderDatabaseCompose(app, image)
	} else {
		spec := compose.AppSpec{
			Name:                app.Name,
			Port:                app.Port,
			Image:               image,
			CPULimit:            strOr(app.CPULimit),
			MemoryLimit:         strOr(app.MemoryLimit),
			Replicas:            app.Replicas,
			DeployStrategy:      string(app.DeployStrategy),
			HealthCheckURL:      strOr(app.HealthCheckURL),
			HealthCheckInterval: intOr(app.HealthCheckInterval),
		}
		content, err = compose.RenderApp(spec)
	}
	if err != nil {
		return err
	}
	if err := r.UploadString(ctx, content, appPath+"/docker-compose.yml"); err != nil {
		return err
	}
	log(fmt.Sprintf("Deploying image: %s", image))
	cmd := fmt.Sprintf("cd %s && docker compose up -d --pull always --remove-orphans", remote.Quote(appPath))
	if _, err := r.RunChecked(ctx, cmd, 300*time.Second); err != nil {
		return err
	}
	result.ImageUsed = &image
	return nil
}

func (e *Engine) deployFromComposeOverride(ctx context.Context, r remote.Runner, appPath, content string, log func(string)) error {
	if err := r.UploadString(ctx, content, appPath+"/docker-compose.yml"); err != nil {
		return err
	}
	log("Using provided compose override")
	cmd := fmt.Sprintf("cd %s && docker compose up -d --remove-orphans", remote.Quote(appPath))
	_, err := r.RunChecked(ctx, cmd, 300*time.Second)
	return err
}

// gateHealth retries the reconciled container status up to 10 times, 5
// seconds apart. It mirrors the original engine's behaviour of gating on
// actual container state rather than probing HealthCheckURL directly: the
// URL's presence is the gate flag, the container state is the signal.
func (e *Engine) gateHealth(ctx context.Context, r remote.Runner, app *domain.App, appPath string, log func(string)) error {
	log("Waiting for health check to pass...")
	const maxRetries = 10
	for attempt := 1; attempt <= maxRetries; attempt++ {
		select {
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
		status, _, err := reconcile.Reconcile(ctx, r, appPath)
		if err == nil && status == domain.AppRunning {
			log(fmt.Sprintf("Health check passed (attempt %d)", attempt))
			return nil
		}
		log(fmt.Sprintf("Health check pending... (attempt %d/%d)", attempt, maxRetries))
	}
	log("Health check failed after all retries, rolling back")
	r.Run(ctx, fmt.Sprintf("cd %s && docker compose down", remote.Quote(appPath)), 60*time.Second)
	return fmt.Errorf("rolling deploy of %q failed health check after %d attempts", app.Name, maxRetries)
}

// renderDatabaseCompose builds the persistent-volume compose manifest for a
// database-type app, using the engine's fixed mount path rather than the
// generic (volume-less) app template.
func renderDatabaseCompose(app *domain.App, image string) (string, error) {
	engine := app.Type.Engine()
	_, volume, _, ok := compose.DBDefaults(engine)
	if !ok {
		return "", fmt.Errorf("deploy: unsupported database engine %q", engine)
	}
	return compose.RenderDatabase(compose.DBSpec{
		Type:   engine,
		Name:   app.Name,
		Image:  image,
		Port:   app.Port,
		Volume: volume,
	})
}

func strOr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func intOr(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// Stop brings an app's compose project down without removing volumes.
func Stop(ctx context.Context, r remote.Runner, appName string) error {
	path, err := AppDir(appName)
	if err != nil {
		return err
	}
	_, err = r.RunChecked(ctx, "cd "+remote.Quote(path)+" && docker compose down", 60*time.Second)
	return err
}

// Restart restarts an app's running containers in place.
func Restart(ctx context.Context, r remote.Runner, appName string) error {
	path, err := AppDir(appName)
	if err != nil {
		return err
	}
	_, err = r.RunChecked(ctx, "cd "+remote.Quote(path)+" && docker compose restart", 60*time.Second)
	return err
}

// Destroy tears down an app's compose project including volumes and
// removes its working directory. The compose-down step is best-effort: a
// missing directory or an already-gone project is not an error, matching
// the idempotent-destroy decision for repeated calls.
func Destroy(ctx context.Context, r remote.Runner, appName string) error {
	path, err := AppDir(appName)
	if err != nil {
		return err
	}
	q := remote.Quote(path)
	r.Run(ctx, "cd "+q+" && docker compose down -v --remove-orphans", 60*time.Second)
	_, err = r.RunChecked(ctx, "rm -rf "+q, 30*time.Second)
	return err
}

// Logs returns the last n lines of combined container output for appName;
// n <= 0 means 100, and n is capped at 10000.
func Logs(ctx context.Context, r remote.Runner, appName string, n int) (string, error) {
	path, err := AppDir(appName)
	if err != nil {
		return "", err
	}
	n = clampLines(n)
	cmd := fmt.Sprintf("cd %s && docker compose logs --tail=%d --no-color", remote.Quote(path), n)
	return r.RunChecked(ctx, cmd, 30*time.Second)
}

// StreamLogs tails container output in real time until ctx is cancelled.
func StreamLogs(ctx context.Context, r remote.Runner, appName string, n int) (<-chan string, error) {
	path, err := AppDir(appName)
	if err != nil {
		return nil, err
	}
	n = clampLines(n)
	cmd := fmt.Sprintf("cd %s && docker compose logs -f --tail=%d --no-color", remote.Quote(path), n)
	return r.ExecStream(ctx, cmd)
}

func clampLines(n int) int {
	if n <= 0 {
		return 100
	}
	if n > 10000 {
		return 10000
	}
	return n
}
