// Command infraktd is the control-plane daemon: it owns the sqlite
// database, the Deploy State Machine, the Log Broadcaster, and the HTTP
// API every other component talks to.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/infrakt/infrakt/api/internal/api/handlers"
	authmw "github.com/infrakt/infrakt/api/internal/api/middleware"
	"github.com/infrakt/infrakt/api/internal/api/router"
	"github.com/infrakt/infrakt/api/internal/config"
	"github.com/infrakt/infrakt/api/internal/core/auth"
	"github.com/infrakt/infrakt/api/internal/core/deploy"
	"github.com/infrakt/infrakt/api/internal/core/envstore"
	"github.com/infrakt/infrakt/api/internal/core/proxy"
	"github.com/infrakt/infrakt/api/internal/core/source"
	"github.com/infrakt/infrakt/api/internal/db/sqlite"
	"github.com/infrakt/infrakt/api/internal/infrastructure/crypto"
	"github.com/infrakt/infrakt/api/internal/telemetry"
	"github.com/infrakt/infrakt/api/internal/workers"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("booting infrakt control plane")

	cfg := config.Load()
	for _, dir := range []string{cfg.Home, cfg.KeysDir, cfg.EnvsDir, cfg.BackupsDir} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			logger.Error("FATAL: creating state directory failed", "dir", dir, "error", err)
			os.Exit(1)
		}
	}

	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		logger.Error("FATAL: opening database failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	masterKeyHex, err := crypto.LoadOrCreateMasterKey(cfg.MasterKeyPath)
	if err != nil {
		logger.Error("FATAL: loading master key failed", "error", err)
		os.Exit(1)
	}
	cryptoSvc, err := crypto.NewAESCryptoService(masterKeyHex)
	if err != nil {
		logger.Error("FATAL: initializing crypto service failed", "error", err)
		os.Exit(1)
	}

	platformKey, err := auth.LoadOrCreatePlatformKey(cfg.APIKeyPath)
	if err != nil {
		logger.Error("FATAL: loading platform key failed", "error", err)
		os.Exit(1)
	}
	deployKeys := auth.NewFileDeployKeyStore(cfg.DeployKeysPath)
	authMW := authmw.NewAuth(platformKey, deployKeys, logger)

	servers := sqlite.NewServerRepo(db)
	apps := sqlite.NewAppRepo(db)
	appDeps := sqlite.NewAppDependencyRepo(db)
	deployments := sqlite.NewDeploymentRepo(db)
	sshKeys := sqlite.NewSSHKeyRepo(db)
	webhooks := sqlite.NewWebhookRepo(db)
	sourceIntegrations := sqlite.NewSourceIntegrationRepo(db)
	objectStore := sqlite.NewObjectStoreConfigRepo(db)
	serverMetrics := sqlite.NewServerMetricRepo(db)

	hub := telemetry.NewHub()
	envs := envstore.NewStore(cfg.EnvsDir, cryptoSvc)
	proxyStore := proxy.NewStore(filepath.Join(cfg.RemoteBase, "traefik", "conf.d"))

	engine := deploy.NewEngine(apps, servers, deployments, sourceIntegrations, cryptoSvc, hub)

	api := handlers.NewAPI(cfg, logger)
	api.Servers = servers
	api.Apps = apps
	api.AppDeps = appDeps
	api.Deployments = deployments
	api.SSHKeys = sshKeys
	api.Webhooks = webhooks
	api.SourceIntegrations = sourceIntegrations
	api.ObjectStore = objectStore
	api.ServerMetrics = serverMetrics
	api.DeployKeys = deployKeys
	api.Crypto = cryptoSvc
	api.Envs = envs
	api.Engine = engine
	api.Hub = hub
	api.Connect = engine.Connect
	api.Proxy = proxyStore
	api.NewSourceClient = func(token string) *source.Client { return source.NewClient(token) }

	webhookHandler := handlers.NewGithubWebhookHandler(apps, engine, logger)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	monitor := workers.NewServerMonitor(servers, apps, serverMetrics, engine.Connect, logger, 1*time.Minute)
	go monitor.Start(workerCtx)

	mux := router.New(router.Config{
		API:            api,
		Auth:           authMW,
		Webhook:        webhookHandler,
		AllowedOrigins: cfg.CORSOrigins,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("infrakt API listening", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server crashed", "error", err)
			os.Exit(1)
		}
	}()

	<-stop
	logger.Info("shutting down")
	cancelWorkers()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}
	logger.Info("infrakt control plane stopped")
}
