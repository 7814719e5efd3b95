package workers_test

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infrakt/infrakt/api/internal/core/domain"
	"github.com/infrakt/infrakt/api/internal/core/remote"
	"github.com/infrakt/infrakt/api/internal/workers"
)

type fakeServers struct {
	servers []*domain.Server
}

func (f *fakeServers) Create(ctx context.Context, s *domain.Server) error { return nil }
func (f *fakeServers) Get(ctx context.Context, id int64) (*domain.Server, error) {
	for _, s := range f.servers {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, &domain.NotFoundError{Kind: "server", Key: strconv.FormatInt(id, 10)}
}
func (f *fakeServers) GetByName(ctx context.Context, name string) (*domain.Server, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeServers) List(ctx context.Context) ([]*domain.Server, error) { return f.servers, nil }
func (f *fakeServers) UpdateStatus(ctx context.Context, id int64, status domain.ServerStatus) error {
	return nil
}
func (f *fakeServers) Delete(ctx context.Context, id int64) error { return nil }

type fakeApps struct {
	mu      sync.Mutex
	byServer map[int64][]*domain.App
	updated  map[int64]domain.AppStatus
}

func (f *fakeApps) Create(ctx context.Context, a *domain.App) error { return nil }
func (f *fakeApps) Get(ctx context.Context, id int64) (*domain.App, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeApps) GetByNameAndServer(ctx context.Context, name string, serverID int64) (*domain.App, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeApps) ListDeployable(ctx context.Context) ([]*domain.App, error) { return nil, nil }
func (f *fakeApps) ListByServer(ctx context.Context, serverID int64) ([]*domain.App, error) {
	return f.byServer[serverID], nil
}
func (f *fakeApps) ListByGitRepoAndBranch(ctx context.Context, gitRepo, branch string) ([]*domain.App, error) {
	return nil, nil
}
func (f *fakeApps) Update(ctx context.Context, a *domain.App) error { return nil }
func (f *fakeApps) UpdateStatus(ctx context.Context, id int64, status domain.AppStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updated == nil {
		f.updated = map[int64]domain.AppStatus{}
	}
	f.updated[id] = status
	return nil
}
func (f *fakeApps) Delete(ctx context.Context, id int64) error { return nil }

type fakeMetrics struct {
	mu      sync.Mutex
	records []*domain.ServerMetric
}

func (f *fakeMetrics) Record(ctx context.Context, m *domain.ServerMetric) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, m)
	return nil
}
func (f *fakeMetrics) Range(ctx context.Context, serverID int64, since time.Time) ([]*domain.ServerMetric, error) {
	return nil, nil
}

func TestServerMonitor_SweepRecordsMetricsAndReconciles(t *testing.T) {
	server := &domain.Server{ID: 1, Name: "web-1", Status: domain.ServerActive}
	app := &domain.App{ID: 10, Name: "myapp", ServerID: 1, Status: domain.AppRunning}

	servers := &fakeServers{servers: []*domain.Server{server}}
	apps := &fakeApps{byServer: map[int64][]*domain.App{1: {app}}}
	metrics := &fakeMetrics{}

	runner := remote.NewFakeRunner("web-1")
	runner.Match = func(cmd string) (remote.FakeResponse, bool) {
		return remote.FakeResponse{Stdout: "", ExitCode: 0}, true
	}

	connect := func(ctx context.Context, s *domain.Server) (remote.Runner, error) {
		return runner, nil
	}

	mon := workers.NewServerMonitor(servers, apps, metrics, connect, slog.Default(), time.Hour)
	mon.Sweep(context.Background())

	assert.Len(t, metrics.records, 1)
	assert.Equal(t, int64(1), metrics.records[0].ServerID)
}

func TestServerMonitor_SkipsInactiveServers(t *testing.T) {
	server := &domain.Server{ID: 2, Name: "stale", Status: domain.ServerInactive}
	servers := &fakeServers{servers: []*domain.Server{server}}
	apps := &fakeApps{}
	metrics := &fakeMetrics{}

	connected := false
	connect := func(ctx context.Context, s *domain.Server) (remote.Runner, error) {
		connected = true
		return remote.NewFakeRunner(s.Name), nil
	}

	mon := workers.NewServerMonitor(servers, apps, metrics, connect, slog.Default(), time.Hour)
	mon.Sweep(context.Background())

	require.False(t, connected)
	assert.Empty(t, metrics.records)
}
