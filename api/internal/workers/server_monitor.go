package workers

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/infrakt/infrakt/api/internal/core/deploy"
	"github.com/infrakt/infrakt/api/internal/core/domain"
	"github.com/infrakt/infrakt/api/internal/core/metrics"
	"github.com/infrakt/infrakt/api/internal/core/reconcile"
	"github.com/infrakt/infrakt/api/internal/core/remote"
)

// ServerMonitor periodically reconciles every Server it can reach: it
// samples CPU/memory/disk into ServerMetric rows and reconciles each of
// the Server's Apps against the containers actually running, correcting
// App.Status when reality has drifted from the last recorded deploy
// outcome (a crashed container, an operator running `docker compose down`
// by hand on the box).
type ServerMonitor struct {
	servers     domain.ServerRepository
	apps        domain.AppRepository
	appMetrics  domain.ServerMetricRepository
	connect     deploy.Connector
	logger      *slog.Logger
	interval    time.Duration
	concurrency int
}

func NewServerMonitor(
	servers domain.ServerRepository,
	apps domain.AppRepository,
	appMetrics domain.ServerMetricRepository,
	connect deploy.Connector,
	logger *slog.Logger,
	interval time.Duration,
) *ServerMonitor {
	return &ServerMonitor{
		servers:     servers,
		apps:        apps,
		appMetrics:  appMetrics,
		connect:     connect,
		logger:      logger,
		interval:    interval,
		concurrency: 10,
	}
}

func (m *ServerMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep runs one reconciliation pass over every active Server. Exported so
// tests and a manual "reconcile now" admin trigger can invoke it directly
// without waiting on the ticker.
func (m *ServerMonitor) Sweep(ctx context.Context) {
	servers, err := m.servers.List(ctx)
	if err != nil {
		m.logger.Error("monitor: listing servers failed", slog.Any("error", err))
		return
	}

	sem := make(chan struct{}, m.concurrency)
	var wg sync.WaitGroup

	for _, s := range servers {
		if s.Status != domain.ServerActive {
			continue
		}
		wg.Add(1)
		go func(server *domain.Server) {
			defer wg.Done()

			// Jitter avoids every server's check landing on the same tick.
			time.Sleep(time.Duration(rand.Intn(2000)) * time.Millisecond)

			sem <- struct{}{}
			defer func() { <-sem }()

			checkCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
			defer cancel()
			m.checkServer(checkCtx, server)
		}(s)
	}
	wg.Wait()
}

func (m *ServerMonitor) checkServer(ctx context.Context, server *domain.Server) {
	runner, err := m.connect(ctx, server)
	if err != nil {
		m.logger.Warn("monitor: connect failed", "server", server.Name, "error", err)
		return
	}
	defer runner.Close()

	snap, err := metrics.Sample(ctx, runner)
	if err != nil {
		m.logger.Warn("monitor: sampling metrics failed", "server", server.Name, "error", err)
	} else {
		if err := m.appMetrics.Record(ctx, metrics.ToDomain(server.ID, time.Now().UTC(), snap)); err != nil {
			m.logger.Warn("monitor: recording metrics failed", "server", server.Name, "error", err)
		}
	}

	apps, err := m.apps.ListByServer(ctx, server.ID)
	if err != nil {
		m.logger.Warn("monitor: listing apps failed", "server", server.Name, "error", err)
		return
	}
	for _, app := range apps {
		m.reconcileApp(ctx, runner, app)
	}
}

func (m *ServerMonitor) reconcileApp(ctx context.Context, runner remote.Runner, app *domain.App) {
	appDir, err := deploy.AppDir(app.Name)
	if err != nil {
		return
	}
	status, _, err := reconcile.Reconcile(ctx, runner, appDir)
	if err != nil {
		m.logger.Warn("monitor: reconcile failed", "app", app.Name, "error", err)
		return
	}
	if status != app.Status && app.Status != domain.AppDeploying {
		if err := m.apps.UpdateStatus(ctx, app.ID, status); err != nil {
			m.logger.Warn("monitor: updating app status failed", "app", app.Name, "error", err)
		}
	}
}
