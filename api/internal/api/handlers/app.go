// api/internal/api/handlers/app.go
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/infrakt/infrakt/api/internal/core/deploy"
	"github.com/infrakt/infrakt/api/internal/core/domain"
)

type CreateAppRequest struct {
	Name           string               `json:"name" validate:"required,max=100"`
	ServerID       int64                `json:"server_id" validate:"required"`
	Domain         *string              `json:"domain,omitempty"`
	Port           int                  `json:"port" validate:"required,min=1,max=65535"`
	GitRepo        *string              `json:"git_repo,omitempty"`
	Branch         string               `json:"branch"`
	Image          *string              `json:"image,omitempty"`
	ComposeInline  *string              `json:"compose_inline,omitempty"`
	Type           domain.AppType       `json:"app_type" validate:"required"`
	AutoDeploy     bool                 `json:"auto_deploy"`
	CPULimit       *string              `json:"cpu_limit,omitempty"`
	MemoryLimit    *string              `json:"memory_limit,omitempty"`
	HealthCheckURL *string              `json:"health_check_url,omitempty"`
	Replicas       int                  `json:"replicas"`
	DeployStrategy domain.DeployStrategy `json:"deploy_strategy"`
}

// CreateApp handles POST /api/v1/apps.
func (a *API) CreateApp(w http.ResponseWriter, r *http.Request) {
	var req CreateAppRequest
	if err := decodeJSON(r, &req); err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		HandleError(w, r, a.Logger, &domain.ValidationError{Message: err.Error()})
		return
	}
	if req.Branch == "" {
		req.Branch = "main"
	}
	if req.Replicas == 0 {
		req.Replicas = 1
	}
	if req.DeployStrategy == "" {
		req.DeployStrategy = domain.StrategyRestart
	}

	app := &domain.App{
		Name:           req.Name,
		ServerID:       req.ServerID,
		Domain:         req.Domain,
		Port:           req.Port,
		GitRepo:        req.GitRepo,
		Branch:         req.Branch,
		Image:          req.Image,
		ComposeInline:  req.ComposeInline,
		Type:           req.Type,
		Status:         domain.AppStopped,
		AutoDeploy:     req.AutoDeploy,
		CPULimit:       req.CPULimit,
		MemoryLimit:    req.MemoryLimit,
		HealthCheckURL: req.HealthCheckURL,
		Replicas:       req.Replicas,
		DeployStrategy: req.DeployStrategy,
	}
	if !app.HasExactlyOneSource() {
		HandleError(w, r, a.Logger, &domain.ValidationError{Field: "app", Message: "exactly one of image, git_repo, or compose_inline must be set"})
		return
	}
	if _, err := a.Servers.Get(r.Context(), app.ServerID); err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	if err := a.Apps.Create(r.Context(), app); err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

// ListApps handles GET /api/v1/apps. A server_id query param scopes the
// list to one Server; otherwise every deployable (non-database) App is
// returned.
func (a *API) ListApps(w http.ResponseWriter, r *http.Request) {
	if q := r.URL.Query().Get("server_id"); q != "" {
		serverID, err := strconv.ParseInt(q, 10, 64)
		if err != nil {
			HandleError(w, r, a.Logger, &domain.ValidationError{Field: "server_id", Message: "must be numeric"})
			return
		}
		apps, err := a.Apps.ListByServer(r.Context(), serverID)
		if err != nil {
			HandleError(w, r, a.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, apps)
		return
	}
	apps, err := a.Apps.ListDeployable(r.Context())
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, apps)
}

func (a *API) appByIDParam(r *http.Request) (*domain.App, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return nil, &domain.ValidationError{Field: "id", Message: "must be numeric"}
	}
	return a.Apps.Get(r.Context(), id)
}

// GetApp handles GET /api/v1/apps/{id}.
func (a *API) GetApp(w http.ResponseWriter, r *http.Request) {
	app, err := a.appByIDParam(r)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

type UpdateAppRequest struct {
	Domain         *string               `json:"domain,omitempty"`
	Port           *int                  `json:"port,omitempty"`
	GitRepo        *string               `json:"git_repo,omitempty"`
	Branch         *string               `json:"branch,omitempty"`
	Image          *string               `json:"image,omitempty"`
	ComposeInline  *string               `json:"compose_inline,omitempty"`
	AutoDeploy     *bool                 `json:"auto_deploy,omitempty"`
	CPULimit       *string               `json:"cpu_limit,omitempty"`
	MemoryLimit    *string               `json:"memory_limit,omitempty"`
	HealthCheckURL *string               `json:"health_check_url,omitempty"`
	Replicas       *int                  `json:"replicas,omitempty"`
	DeployStrategy *domain.DeployStrategy `json:"deploy_strategy,omitempty"`
}

// UpdateApp handles PUT /api/v1/apps/{id}. Applies only the fields present
// in the request body on top of the stored row.
func (a *API) UpdateApp(w http.ResponseWriter, r *http.Request) {
	app, err := a.appByIDParam(r)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	var req UpdateAppRequest
	if err := decodeJSON(r, &req); err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}

	if req.Domain != nil {
		app.Domain = req.Domain
	}
	if req.Port != nil {
		app.Port = *req.Port
	}
	if req.GitRepo != nil {
		app.GitRepo = req.GitRepo
	}
	if req.Branch != nil {
		app.Branch = *req.Branch
	}
	if req.Image != nil {
		app.Image = req.Image
	}
	if req.ComposeInline != nil {
		app.ComposeInline = req.ComposeInline
	}
	if req.AutoDeploy != nil {
		app.AutoDeploy = *req.AutoDeploy
	}
	if req.CPULimit != nil {
		app.CPULimit = req.CPULimit
	}
	if req.MemoryLimit != nil {
		app.MemoryLimit = req.MemoryLimit
	}
	if req.HealthCheckURL != nil {
		app.HealthCheckURL = req.HealthCheckURL
	}
	if req.Replicas != nil {
		app.Replicas = *req.Replicas
	}
	if req.DeployStrategy != nil {
		app.DeployStrategy = *req.DeployStrategy
	}
	if !app.HasExactlyOneSource() {
		HandleError(w, r, a.Logger, &domain.ValidationError{Field: "app", Message: "exactly one of image, git_repo, or compose_inline must be set"})
		return
	}
	if err := a.Apps.Update(r.Context(), app); err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

// DeleteApp handles DELETE /api/v1/apps/{id}. Tears down the app's
// containers and its proxy route on its Server before removing the row.
func (a *API) DeleteApp(w http.ResponseWriter, r *http.Request) {
	app, err := a.appByIDParam(r)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	server, err := a.Servers.Get(r.Context(), app.ServerID)
	if err == nil {
		if runner, connErr := a.Connect(r.Context(), server); connErr == nil {
			defer runner.Close()
			if err := deploy.Destroy(r.Context(), runner, app.Name); err != nil {
				a.Logger.Warn("destroy: remote teardown failed", "app", app.Name, "error", err)
			}
			if app.Domain != nil && *app.Domain != "" {
				if err := a.Proxy.RemoveDomain(r.Context(), runner, *app.Domain); err != nil {
					a.Logger.Warn("destroy: removing proxy route failed", "app", app.Name, "domain", *app.Domain, "error", err)
				}
			}
		}
	}
	if err := a.Apps.Delete(r.Context(), app.ID); err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StopApp handles POST /api/v1/apps/{id}/stop.
func (a *API) StopApp(w http.ResponseWriter, r *http.Request) {
	app, err := a.appByIDParam(r)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	server, err := a.Servers.Get(r.Context(), app.ServerID)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	runner, err := a.Connect(r.Context(), server)
	if err != nil {
		HandleError(w, r, a.Logger, &domain.RemoteError{Host: server.Host, Err: err})
		return
	}
	defer runner.Close()
	if err := deploy.Stop(r.Context(), runner, app.Name); err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	_ = a.Apps.UpdateStatus(r.Context(), app.ID, domain.AppStopped)
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// RestartApp handles POST /api/v1/apps/{id}/restart.
func (a *API) RestartApp(w http.ResponseWriter, r *http.Request) {
	app, err := a.appByIDParam(r)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	server, err := a.Servers.Get(r.Context(), app.ServerID)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	runner, err := a.Connect(r.Context(), server)
	if err != nil {
		HandleError(w, r, a.Logger, &domain.RemoteError{Host: server.Host, Err: err})
		return
	}
	defer runner.Close()
	if err := deploy.Restart(r.Context(), runner, app.Name); err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	_ = a.Apps.UpdateStatus(r.Context(), app.ID, domain.AppRunning)
	writeJSON(w, http.StatusOK, map[string]string{"status": "restarted"})
}

type deployRequest struct {
	PinnedCommit    string `json:"commit,omitempty"`
	ComposeOverride string `json:"compose_override,omitempty"`
}

// DeployApp handles POST /api/v1/apps/{id}/deploy. Reachable with either
// the platform key or a deploy key scoped "deploy" — the dual-auth CI
// trigger route.
func (a *API) DeployApp(w http.ResponseWriter, r *http.Request) {
	app, err := a.appByIDParam(r)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	var req deployRequest
	_ = decodeJSON(r, &req)

	envContent, err := a.Envs.RenderDotEnv(r.Context(), app.ID)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}

	depID, err := a.Engine.Trigger(r.Context(), app.ID, deploy.TriggerOptions{
		PinnedCommit:    req.PinnedCommit,
		EnvContent:      envContent,
		ComposeOverride: req.ComposeOverride,
	})
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	a.registerProxyRouteIfDomained(r.Context(), app)
	writeJSON(w, http.StatusAccepted, map[string]any{"deployment_id": depID})
}

// registerProxyRouteIfDomained adds the App's reverse-proxy route right
// after a successful deploy, the same way the CLI deploy command does —
// an App with a domain set is reachable immediately, with no separate
// "now go register the route" step for the operator to remember.
// Failure here is logged, not surfaced: the deploy itself already
// succeeded, and the route can always be added later via AddProxyRoute.
func (a *API) registerProxyRouteIfDomained(ctx context.Context, app *domain.App) {
	if app.Domain == nil || *app.Domain == "" {
		return
	}
	server, err := a.Servers.Get(ctx, app.ServerID)
	if err != nil {
		a.Logger.Warn("deploy: loading server for proxy registration failed", "app", app.Name, "error", err)
		return
	}
	runner, err := a.Connect(ctx, server)
	if err != nil {
		a.Logger.Warn("deploy: connecting for proxy registration failed", "app", app.Name, "error", err)
		return
	}
	defer runner.Close()
	if warning, err := a.Proxy.AddDomain(ctx, runner, *app.Domain, app.Port, app.Name); err != nil {
		a.Logger.Warn("deploy: registering proxy route failed", "app", app.Name, "domain", *app.Domain, "error", err)
	} else if warning != "" {
		a.Logger.Warn("deploy: proxy route registered with a warning", "app", app.Name, "warning", warning)
	}
}

// RollbackApp handles POST /api/v1/apps/{id}/rollback. Redeploys the App
// pinned to the commit of its last successful Deployment.
func (a *API) RollbackApp(w http.ResponseWriter, r *http.Request) {
	app, err := a.appByIDParam(r)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	last, err := a.Deployments.LastSuccessful(r.Context(), app.ID)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	if last == nil || last.CommitHash == nil || *last.CommitHash == "" {
		HandleError(w, r, a.Logger, &domain.ValidationError{Message: "no previous successful deployment with a recorded commit to roll back to"})
		return
	}

	envContent, err := a.Envs.RenderDotEnv(r.Context(), app.ID)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	depID, err := a.Engine.Trigger(r.Context(), app.ID, deploy.TriggerOptions{
		PinnedCommit: *last.CommitHash,
		EnvContent:   envContent,
	})
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	a.registerProxyRouteIfDomained(r.Context(), app)
	writeJSON(w, http.StatusAccepted, map[string]any{"deployment_id": depID, "rolled_back_to": *last.CommitHash})
}

// ListDeployments handles GET /api/v1/apps/{id}/deployments.
func (a *API) ListDeployments(w http.ResponseWriter, r *http.Request) {
	app, err := a.appByIDParam(r)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	deps, err := a.Deployments.ListByApp(r.Context(), app.ID)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, deps)
}

func (a *API) deploymentByIDParam(r *http.Request) (*domain.Deployment, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "depID"), 10, 64)
	if err != nil {
		return nil, &domain.ValidationError{Field: "depID", Message: "must be numeric"}
	}
	return a.Deployments.Get(r.Context(), id)
}

// GetDeployment handles GET /api/v1/apps/{id}/deployments/{depID}.
func (a *API) GetDeployment(w http.ResponseWriter, r *http.Request) {
	dep, err := a.deploymentByIDParam(r)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dep)
}

// StreamDeployment handles GET /api/v1/apps/{id}/deployments/{depID}/stream,
// an SSE feed of the Log Broadcaster's backlog plus live lines for depID.
func (a *API) StreamDeployment(w http.ResponseWriter, r *http.Request) {
	depIDStr := chi.URLParam(r, "depID")
	if _, err := strconv.ParseInt(depIDStr, 10, 64); err != nil {
		HandleError(w, r, a.Logger, &domain.ValidationError{Field: "depID", Message: "must be numeric"})
		return
	}

	backlog, ch, handle, err := a.Hub.Subscribe(depIDStr)
	if err != nil {
		HandleError(w, r, a.Logger, &domain.NotFoundError{Kind: "deployment stream", Key: depIDStr})
		return
	}
	defer a.Hub.Unsubscribe(depIDStr, handle)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	for _, line := range backlog {
		fmt.Fprintf(w, "data: %s\n\n", line)
	}
	_ = rc.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case line, ok := <-ch:
			if !ok {
				return
			}
			if line.Done {
				fmt.Fprintf(w, "event: done\ndata: {}\n\n")
				_ = rc.Flush()
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", line.Text)
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// GetAppEnv handles GET /api/v1/apps/{id}/env.
func (a *API) GetAppEnv(w http.ResponseWriter, r *http.Request) {
	app, err := a.appByIDParam(r)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	vars, err := a.Envs.List(r.Context(), app.ID)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]map[string]string{"env": vars})
}

type setAppEnvRequest struct {
	Env map[string]string `json:"env" validate:"required"`
}

// SetAppEnv handles PUT /api/v1/apps/{id}/env. An empty-string value
// deletes that key; the written set is encrypted at rest and only
// applied to the running App on the next deploy.
func (a *API) SetAppEnv(w http.ResponseWriter, r *http.Request) {
	app, err := a.appByIDParam(r)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	var req setAppEnvRequest
	if err := decodeJSON(r, &req); err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	if err := a.Envs.Set(r.Context(), app.ID, req.Env); err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

type addDepRequest struct {
	DependsOnAppID int64 `json:"depends_on_app_id" validate:"required"`
}

// AddAppDependency handles POST /api/v1/apps/{id}/deps.
func (a *API) AddAppDependency(w http.ResponseWriter, r *http.Request) {
	app, err := a.appByIDParam(r)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	var req addDepRequest
	if err := decodeJSON(r, &req); err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		HandleError(w, r, a.Logger, &domain.ValidationError{Message: err.Error()})
		return
	}
	if _, err := a.Apps.Get(r.Context(), req.DependsOnAppID); err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	if err := a.AppDeps.Add(r.Context(), app.ID, req.DependsOnAppID); err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// ListAppDependencies handles GET /api/v1/apps/{id}/deps.
func (a *API) ListAppDependencies(w http.ResponseWriter, r *http.Request) {
	app, err := a.appByIDParam(r)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	deps, err := a.AppDeps.ListForApp(r.Context(), app.ID)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, deps)
}

// RemoveAppDependency handles DELETE /api/v1/apps/{id}/deps/{depID}.
func (a *API) RemoveAppDependency(w http.ResponseWriter, r *http.Request) {
	app, err := a.appByIDParam(r)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	dependsOnID, err := strconv.ParseInt(chi.URLParam(r, "depID"), 10, 64)
	if err != nil {
		HandleError(w, r, a.Logger, &domain.ValidationError{Field: "depID", Message: "must be numeric"})
		return
	}
	if err := a.AppDeps.Remove(r.Context(), app.ID, dependsOnID); err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AppLogs handles GET /api/v1/apps/{id}/logs.
func (a *API) AppLogs(w http.ResponseWriter, r *http.Request) {
	app, err := a.appByIDParam(r)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	server, err := a.Servers.Get(r.Context(), app.ServerID)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	n := 200
	if q := r.URL.Query().Get("lines"); q != "" {
		if v, err := strconv.Atoi(q); err == nil {
			n = v
		}
	}

	runner, err := a.Connect(r.Context(), server)
	if err != nil {
		HandleError(w, r, a.Logger, &domain.RemoteError{Host: server.Host, Err: err})
		return
	}
	defer runner.Close()

	if r.URL.Query().Get("follow") == "true" {
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
		defer cancel()
		lines, err := deploy.StreamLogs(ctx, runner, app.Name, n)
		if err != nil {
			HandleError(w, r, a.Logger, err)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		rc := http.NewResponseController(w)
		for line := range lines {
			fmt.Fprintf(w, "data: %s\n\n", line)
			if err := rc.Flush(); err != nil {
				return
			}
		}
		return
	}

	out, err := deploy.Logs(r.Context(), runner, app.Name, n)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"logs": out})
}
