// api/internal/api/router/router.go
package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/infrakt/infrakt/api/internal/api/handlers"
	authmw "github.com/infrakt/infrakt/api/internal/api/middleware"
)

// Config wires the router to its one real dependency: the handler struct
// holding every repository and engine a route needs.
type Config struct {
	API            *handlers.API
	Auth           *authmw.Auth
	Webhook        *handlers.GithubWebhookHandler
	AllowedOrigins []string
	Logger         *slog.Logger
}

// New constructs the chi mux and wires the full route tree.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(authmw.StructuredLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(authmw.MaxBytes(1_048_576))
	r.Use(authmw.RateLimitMiddleware)
	r.Use(authmw.EnforceTLS)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Hub-Signature-256", "X-GitHub-Event"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	a := cfg.API

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Push-webhook ingest: public, authenticated per-App via HMAC rather
	// than a platform or deploy key.
	r.Post("/deploy/github-webhook", cfg.Webhook.Handle)

	r.Route("/api/v1", func(r chi.Router) {
		// Every route below requires at minimum the platform key; the
		// deploy-trigger route additionally accepts a scoped deploy key.
		r.Route("/servers", func(r chi.Router) {
			r.Use(cfg.Auth.RequirePlatformKey)
			r.Post("/", a.CreateServer)
			r.Get("/", a.ListServers)
			r.Get("/{id}", a.GetServer)
			r.Delete("/{id}", a.DeleteServer)
			r.Post("/{id}/provision", a.ProvisionServer)
			r.Post("/{id}/wipe", a.WipeServer)
			r.Get("/{id}/status", a.ServerStatus)
			r.Post("/{id}/test-connection", a.TestConnection)

			r.Get("/{id}/proxy/domains", a.ProxyDomains)
			r.Delete("/{id}/proxy/domains/{domain}", a.RemoveProxyRoute)
			r.Post("/{id}/proxy/reload", a.ReloadProxy)
		})

		r.Route("/apps", func(r chi.Router) {
			r.Use(cfg.Auth.RequirePlatformKey)
			r.Post("/", a.CreateApp)
			r.Get("/", a.ListApps)
			r.Get("/{id}", a.GetApp)
			r.Put("/{id}", a.UpdateApp)
			r.Delete("/{id}", a.DeleteApp)
			r.Post("/{id}/stop", a.StopApp)
			r.Post("/{id}/restart", a.RestartApp)
			r.Post("/{id}/rollback", a.RollbackApp)
			r.Get("/{id}/logs", a.AppLogs)
			r.Get("/{id}/deployments", a.ListDeployments)
			r.Get("/{id}/deployments/{depID}", a.GetDeployment)
			r.Get("/{id}/deployments/{depID}/stream", a.StreamDeployment)
			r.Get("/{id}/env", a.GetAppEnv)
			r.Put("/{id}/env", a.SetAppEnv)
			r.Post("/{id}/deps", a.AddAppDependency)
			r.Get("/{id}/deps", a.ListAppDependencies)
			r.Delete("/{id}/deps/{depID}", a.RemoveAppDependency)

			r.Post("/{id}/backup", a.BackupApp)
			r.Get("/{id}/backups", a.ListAppBackups)
			r.Post("/{id}/backups/restore", a.RestoreAppBackup)
			r.Post("/{id}/backup/cron", a.InstallBackupCron)
			r.Delete("/{id}/backup/cron", a.RemoveBackupCron)
		})

		// Deploy trigger: dual-auth, the one route CI automation calls
		// directly rather than through the push-webhook ingest path.
		r.Route("/apps/{id}/deploy", func(r chi.Router) {
			r.Use(cfg.Auth.RequireAnyKey)
			r.Use(authmw.RequireScope("deploy"))
			r.Post("/", a.DeployApp)
		})

		r.Route("/ssh-keys", func(r chi.Router) {
			r.Use(cfg.Auth.RequirePlatformKey)
			r.Post("/", a.CreateSSHKey)
			r.Get("/", a.ListSSHKeys)
			r.Delete("/{id}", a.DeleteSSHKey)
			r.Post("/{id}/deploy", a.DeploySSHKey)
		})

		r.Route("/proxy", func(r chi.Router) {
			r.Use(cfg.Auth.RequirePlatformKey)
			r.Post("/routes", a.AddProxyRoute)
		})

		r.Route("/webhooks", func(r chi.Router) {
			r.Use(cfg.Auth.RequirePlatformKey)
			r.Post("/", a.CreateWebhook)
			r.Get("/", a.ListWebhooks)
			r.Delete("/{id}", a.DeleteWebhook)
			r.Post("/{id}/test", a.TestWebhook)
		})

		r.Route("/ci", func(r chi.Router) {
			r.Use(cfg.Auth.RequirePlatformKey)
			r.Post("/keys", a.CreateDeployKey)
			r.Get("/keys", a.ListDeployKeys)
			r.Delete("/keys/{label}", a.RevokeDeployKey)
			r.Get("/apps/{id}/workflow", a.AppWorkflowYAML)

			r.Get("/github/status", a.SourceStatus)
			r.Post("/github/connect", a.SourceConnect)
			r.Delete("/github/disconnect", a.SourceDisconnect)
			r.Get("/github/repos", a.SourceRepos)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Use(cfg.Auth.RequirePlatformKey)
			r.Get("/object-store", a.GetObjectStoreConfig)
			r.Put("/object-store", a.SaveObjectStoreConfig)
			r.Delete("/object-store", a.DeleteObjectStoreConfig)
		})
	})

	return r
}
