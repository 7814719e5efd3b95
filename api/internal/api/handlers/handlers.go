// Package handlers implements the HTTP surface: one file per resource
// group, each a thin adapter from net/http onto the core packages
// (deploy, proxy, provision, backup, envstore, auth, source).
package handlers

import (
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/infrakt/infrakt/api/internal/config"
	"github.com/infrakt/infrakt/api/internal/core/deploy"
	"github.com/infrakt/infrakt/api/internal/core/domain"
	"github.com/infrakt/infrakt/api/internal/core/envstore"
	"github.com/infrakt/infrakt/api/internal/core/proxy"
	"github.com/infrakt/infrakt/api/internal/core/source"
	"github.com/infrakt/infrakt/api/internal/infrastructure/crypto"
	"github.com/infrakt/infrakt/api/internal/telemetry"
)

// validate is shared across every handler group; validator caches struct
// reflection info per type, so one instance is the teacher's own idiom.
var validate = validator.New()

// API bundles every collaborator a handler group needs. Handlers are
// methods on this one struct rather than N separate structs, since nearly
// every route needs the same repository set plus the shared engines.
type API struct {
	Config *config.Config
	Logger *slog.Logger

	Servers            domain.ServerRepository
	Apps               domain.AppRepository
	AppDeps            domain.AppDependencyRepository
	Deployments        domain.DeploymentRepository
	SSHKeys            domain.SSHKeyRepository
	Webhooks           domain.WebhookRepository
	SourceIntegrations domain.SourceIntegrationRepository
	ObjectStore        domain.ObjectStoreConfigRepository
	ServerMetrics      domain.ServerMetricRepository
	DeployKeys         domain.DeployKeyStore

	Crypto  crypto.Service
	Envs    *envstore.Store
	Engine  *deploy.Engine
	Hub     *telemetry.Broadcaster
	Connect deploy.Connector
	Proxy   *proxy.Store

	NewSourceClient func(token string) *source.Client
}

func NewAPI(cfg *config.Config, logger *slog.Logger) *API {
	return &API{
		Config:  cfg,
		Logger:  logger,
		Connect: deploy.DefaultConnect,
		NewSourceClient: func(token string) *source.Client {
			return source.NewClient(token)
		},
	}
}
