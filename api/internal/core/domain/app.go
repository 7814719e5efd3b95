package domain

import (
	"context"
	"strings"
	"time"
)

// AppStatus is the reconciled/declared lifecycle state of an App.
type AppStatus string

const (
	AppStopped    AppStatus = "stopped"
	AppRunning    AppStatus = "running"
	AppError      AppStatus = "error"
	AppRestarting AppStatus = "restarting"
	AppDeploying  AppStatus = "deploying"
)

// AppType distinguishes how an App's source material is declared.
// Database apps carry the "db:" prefix with an engine tag, e.g. "db:postgres".
type AppType string

const (
	AppTypeImage   AppType = "image"
	AppTypeGit     AppType = "git"
	AppTypeCompose AppType = "compose"
)

// IsDatabase reports whether t names a database engine variant ("db:<engine>").
func (t AppType) IsDatabase() bool { return strings.HasPrefix(string(t), "db:") }

// Engine returns the database engine tag for a "db:<engine>" type, or "".
func (t AppType) Engine() string {
	if !t.IsDatabase() {
		return ""
	}
	return strings.TrimPrefix(string(t), "db:")
}

func DatabaseAppType(engine string) AppType { return AppType("db:" + engine) }

// DeployStrategy controls whether the deploy state machine gates on health.
type DeployStrategy string

const (
	StrategyRestart DeployStrategy = "restart"
	StrategyRolling DeployStrategy = "rolling"
)

// App is a deployable unit on exactly one Server.
type App struct {
	ID                  int64          `json:"id" db:"id"`
	Name                string         `json:"name" db:"name"`
	ServerID            int64          `json:"server_id" db:"server_id"`
	Domain              *string        `json:"domain,omitempty" db:"domain"`
	Port                int            `json:"port" db:"port"`
	GitRepo             *string        `json:"git_repo,omitempty" db:"git_repo"`
	Branch              string         `json:"branch" db:"branch"`
	Image               *string        `json:"image,omitempty" db:"image"`
	ComposeInline        *string        `json:"compose_inline,omitempty" db:"compose_inline"`
	Type                AppType        `json:"app_type" db:"app_type"`
	Status              AppStatus      `json:"status" db:"status"`
	WebhookSecret       *string        `json:"webhook_secret,omitempty" db:"webhook_secret"`
	AutoDeploy          bool           `json:"auto_deploy" db:"auto_deploy"`
	CPULimit            *string        `json:"cpu_limit,omitempty" db:"cpu_limit"`
	MemoryLimit         *string        `json:"memory_limit,omitempty" db:"memory_limit"`
	HealthCheckURL      *string        `json:"health_check_url,omitempty" db:"health_check_url"`
	HealthCheckInterval *int           `json:"health_check_interval,omitempty" db:"health_check_interval"`
	Replicas            int            `json:"replicas" db:"replicas"`
	DeployStrategy      DeployStrategy `json:"deploy_strategy" db:"deploy_strategy"`
	CreatedAt           time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at" db:"updated_at"`
}

// HasExactlyOneSource reports the §3 invariant: exactly one of (image),
// (source-repo), (inline compose) must be declared to deploy.
func (a *App) HasExactlyOneSource() bool {
	n := 0
	if a.Image != nil && *a.Image != "" {
		n++
	}
	if a.GitRepo != nil && *a.GitRepo != "" {
		n++
	}
	if a.ComposeInline != nil && *a.ComposeInline != "" {
		n++
	}
	return n == 1
}

// AppRepository persists App rows, scoped to their owning Server.
type AppRepository interface {
	Create(ctx context.Context, a *App) error
	Get(ctx context.Context, id int64) (*App, error)
	GetByNameAndServer(ctx context.Context, name string, serverID int64) (*App, error)
	// ListDeployable returns non-database apps only (db: apps excluded).
	ListDeployable(ctx context.Context) ([]*App, error)
	ListByServer(ctx context.Context, serverID int64) ([]*App, error)
	ListByGitRepoAndBranch(ctx context.Context, gitRepo, branch string) ([]*App, error)
	Update(ctx context.Context, a *App) error
	UpdateStatus(ctx context.Context, id int64, status AppStatus) error
	Delete(ctx context.Context, id int64) error
}

// AppDependency records a deploy-ordering hint between two Apps on the same
// Server. Bookkeeping only; the deploy state machine is single-app-triggered
// and does not read this relation.
type AppDependency struct {
	ID           int64     `json:"id" db:"id"`
	AppID        int64     `json:"app_id" db:"app_id"`
	DependsOnID  int64     `json:"depends_on_app_id" db:"depends_on_app_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

type AppDependencyRepository interface {
	Add(ctx context.Context, appID, dependsOnID int64) error
	ListForApp(ctx context.Context, appID int64) ([]*AppDependency, error)
	Remove(ctx context.Context, appID, dependsOnID int64) error
}
