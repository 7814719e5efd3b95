package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/infrakt/infrakt/api/internal/core/domain"
	"github.com/infrakt/infrakt/api/internal/db/sqlite"
)

func openTestDB(t *testing.T) *sqliteHandles {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "infrakt.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &sqliteHandles{
		Servers:     sqlite.NewServerRepo(db),
		Apps:        sqlite.NewAppRepo(db),
		Deployments: sqlite.NewDeploymentRepo(db),
		Metrics:     sqlite.NewServerMetricRepo(db),
		Source:      sqlite.NewSourceIntegrationRepo(db),
		ObjectStore: sqlite.NewObjectStoreConfigRepo(db),
	}
}

type sqliteHandles struct {
	Servers     *sqlite.ServerRepo
	Apps        *sqlite.AppRepo
	Deployments *sqlite.DeploymentRepo
	Metrics     *sqlite.ServerMetricRepo
	Source      *sqlite.SourceIntegrationRepo
	ObjectStore *sqlite.ObjectStoreConfigRepo
}

func TestServerRepo_CreateGetList(t *testing.T) {
	ctx := context.Background()
	h := openTestDB(t)

	s := &domain.Server{Name: "web1", Host: "10.0.0.1", Port: 22, User: "deploy", Status: domain.ServerInactive}
	require.NoError(t, h.Servers.Create(ctx, s))
	require.NotZero(t, s.ID)

	got, err := h.Servers.Get(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, "web1", got.Name)

	byName, err := h.Servers.GetByName(ctx, "web1")
	require.NoError(t, err)
	require.Equal(t, s.ID, byName.ID)

	list, err := h.Servers.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = h.Servers.Get(ctx, 999)
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestServerRepo_DuplicateNameConflicts(t *testing.T) {
	ctx := context.Background()
	h := openTestDB(t)

	s := &domain.Server{Name: "dup", Host: "10.0.0.1", Port: 22, User: "deploy", Status: domain.ServerInactive}
	require.NoError(t, h.Servers.Create(ctx, s))

	dup := &domain.Server{Name: "dup", Host: "10.0.0.2", Port: 22, User: "deploy", Status: domain.ServerInactive}
	err := h.Servers.Create(ctx, dup)
	var ce *domain.ConflictError
	require.ErrorAs(t, err, &ce)
}

func TestAppRepo_DeletingServerCascadesToApps(t *testing.T) {
	ctx := context.Background()
	h := openTestDB(t)

	s := &domain.Server{Name: "web1", Host: "10.0.0.1", Port: 22, User: "deploy", Status: domain.ServerActive}
	require.NoError(t, h.Servers.Create(ctx, s))

	img := "nginx:latest"
	a := &domain.App{Name: "site", ServerID: s.ID, Image: &img, Branch: "main", Type: domain.AppTypeImage, Status: domain.AppStopped}
	require.NoError(t, h.Apps.Create(ctx, a))

	require.NoError(t, h.Servers.Delete(ctx, s.ID))

	_, err := h.Apps.Get(ctx, a.ID)
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestAppRepo_ListDeployableExcludesDatabaseApps(t *testing.T) {
	ctx := context.Background()
	h := openTestDB(t)

	s := &domain.Server{Name: "web1", Host: "10.0.0.1", Port: 22, User: "deploy", Status: domain.ServerActive}
	require.NoError(t, h.Servers.Create(ctx, s))

	img := "nginx:latest"
	require.NoError(t, h.Apps.Create(ctx, &domain.App{
		Name: "site", ServerID: s.ID, Image: &img, Branch: "main", Type: domain.AppTypeImage, Status: domain.AppStopped,
	}))
	pgImage := "postgres:16"
	require.NoError(t, h.Apps.Create(ctx, &domain.App{
		Name: "pg", ServerID: s.ID, Image: &pgImage, Branch: "main",
		Type: domain.DatabaseAppType("postgres"), Status: domain.AppStopped,
	}))

	deployable, err := h.Apps.ListDeployable(ctx)
	require.NoError(t, err)
	require.Len(t, deployable, 1)
	require.Equal(t, "site", deployable[0].Name)
}

func TestAppRepo_ListByGitRepoAndBranch(t *testing.T) {
	ctx := context.Background()
	h := openTestDB(t)

	s := &domain.Server{Name: "web1", Host: "10.0.0.1", Port: 22, User: "deploy", Status: domain.ServerActive}
	require.NoError(t, h.Servers.Create(ctx, s))

	repo := "git@github.com:acme/site.git"
	require.NoError(t, h.Apps.Create(ctx, &domain.App{
		Name: "site", ServerID: s.ID, GitRepo: &repo, Branch: "main", Type: domain.AppTypeGit, Status: domain.AppStopped,
	}))

	found, err := h.Apps.ListByGitRepoAndBranch(ctx, repo, "main")
	require.NoError(t, err)
	require.Len(t, found, 1)

	none, err := h.Apps.ListByGitRepoAndBranch(ctx, repo, "develop")
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestDeploymentRepo_LastSuccessfulIgnoresFailures(t *testing.T) {
	ctx := context.Background()
	h := openTestDB(t)

	s := &domain.Server{Name: "web1", Host: "10.0.0.1", Port: 22, User: "deploy", Status: domain.ServerActive}
	require.NoError(t, h.Servers.Create(ctx, s))
	img := "nginx:latest"
	a := &domain.App{Name: "site", ServerID: s.ID, Image: &img, Branch: "main", Type: domain.AppTypeImage, Status: domain.AppStopped}
	require.NoError(t, h.Apps.Create(ctx, a))

	none, err := h.Deployments.LastSuccessful(ctx, a.ID)
	require.NoError(t, err)
	require.Nil(t, none)

	d1 := &domain.Deployment{AppID: a.ID, Status: domain.DeploymentInProgress, StartedAt: time.Now()}
	require.NoError(t, h.Deployments.Create(ctx, d1))
	require.NoError(t, h.Deployments.Finish(ctx, d1.ID, domain.DeploymentFailed, nil, nil, "boom"))

	good := "abc123"
	d2 := &domain.Deployment{AppID: a.ID, Status: domain.DeploymentInProgress, StartedAt: time.Now()}
	require.NoError(t, h.Deployments.Create(ctx, d2))
	require.NoError(t, h.Deployments.Finish(ctx, d2.ID, domain.DeploymentSuccess, &good, nil, "ok"))

	last, err := h.Deployments.LastSuccessful(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, last)
	require.Equal(t, d2.ID, last.ID)
	require.Equal(t, domain.DeploymentSuccess, last.Status)
}

func TestServerMetricRepo_RecordAndRange(t *testing.T) {
	ctx := context.Background()
	h := openTestDB(t)

	s := &domain.Server{Name: "web1", Host: "10.0.0.1", Port: 22, User: "deploy", Status: domain.ServerActive}
	require.NoError(t, h.Servers.Create(ctx, s))

	cpu := 12.5
	now := time.Now().UTC()
	require.NoError(t, h.Metrics.Record(ctx, &domain.ServerMetric{ServerID: s.ID, RecordedAt: now, CPUPercent: &cpu}))

	recent, err := h.Metrics.Range(ctx, s.ID, now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, recent, 1)

	future, err := h.Metrics.Range(ctx, s.ID, now.Add(time.Minute))
	require.NoError(t, err)
	require.Empty(t, future)
}

func TestSourceIntegrationRepo_SaveIsUpsert(t *testing.T) {
	ctx := context.Background()
	h := openTestDB(t)

	_, err := h.Source.Get(ctx)
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)

	require.NoError(t, h.Source.Save(ctx, &domain.SourceIntegration{Username: "octocat", TokenEncrypted: "enc1"}))
	require.NoError(t, h.Source.Save(ctx, &domain.SourceIntegration{Username: "octocat2", TokenEncrypted: "enc2"}))

	got, err := h.Source.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, "octocat2", got.Username)

	require.NoError(t, h.Source.Delete(ctx))
	_, err = h.Source.Get(ctx)
	require.ErrorAs(t, err, &nf)
}

func TestObjectStoreConfigRepo_SaveIsUpsert(t *testing.T) {
	ctx := context.Background()
	h := openTestDB(t)

	require.NoError(t, h.ObjectStore.Save(ctx, &domain.ObjectStoreConfig{
		EndpointURL: "https://s3.example.com", Bucket: "backups", Region: "us-east-1",
		AccessKey: "ak", SecretKeyEncrypted: "enc",
	}))
	got, err := h.ObjectStore.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, "backups", got.Bucket)
}
