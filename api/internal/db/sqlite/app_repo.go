package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/infrakt/infrakt/api/internal/core/domain"
)

// AppRepo implements domain.AppRepository.
type AppRepo struct {
	db *sqlx.DB
}

func NewAppRepo(db *sqlx.DB) *AppRepo { return &AppRepo{db: db} }

func (r *AppRepo) Create(ctx context.Context, a *domain.App) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO apps (
			name, server_id, domain, port, git_repo, branch, image, compose_inline,
			app_type, status, webhook_secret, auto_deploy, cpu_limit, memory_limit,
			health_check_url, health_check_interval, replicas, deploy_strategy
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Name, a.ServerID, a.Domain, a.Port, a.GitRepo, a.Branch, a.Image, a.ComposeInline,
		a.Type, a.Status, a.WebhookSecret, a.AutoDeploy, a.CPULimit, a.MemoryLimit,
		a.HealthCheckURL, a.HealthCheckInterval, a.Replicas, a.DeployStrategy)
	if err != nil {
		return mapConstraintErr(err, "app", a.Name)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	created, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	*a = *created
	return nil
}

func (r *AppRepo) Get(ctx context.Context, id int64) (*domain.App, error) {
	var a domain.App
	err := r.db.GetContext(ctx, &a, `SELECT * FROM apps WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Kind: "app", Key: idKey(id)}
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AppRepo) GetByNameAndServer(ctx context.Context, name string, serverID int64) (*domain.App, error) {
	var a domain.App
	err := r.db.GetContext(ctx, &a, `SELECT * FROM apps WHERE name = ? AND server_id = ?`, name, serverID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Kind: "app", Key: name}
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListDeployable excludes database apps ("db:" app_type prefix) per
// domain.AppType.IsDatabase.
func (r *AppRepo) ListDeployable(ctx context.Context) ([]*domain.App, error) {
	var out []*domain.App
	err := r.db.SelectContext(ctx, &out, `SELECT * FROM apps WHERE app_type NOT LIKE 'db:%' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *AppRepo) ListByServer(ctx context.Context, serverID int64) ([]*domain.App, error) {
	var out []*domain.App
	err := r.db.SelectContext(ctx, &out, `SELECT * FROM apps WHERE server_id = ? ORDER BY name`, serverID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *AppRepo) ListByGitRepoAndBranch(ctx context.Context, gitRepo, branch string) ([]*domain.App, error) {
	var out []*domain.App
	err := r.db.SelectContext(ctx, &out,
		`SELECT * FROM apps WHERE git_repo = ? AND branch = ? ORDER BY name`, gitRepo, branch)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *AppRepo) Update(ctx context.Context, a *domain.App) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE apps SET
			domain = ?, port = ?, git_repo = ?, branch = ?, image = ?, compose_inline = ?,
			app_type = ?, webhook_secret = ?, auto_deploy = ?, cpu_limit = ?, memory_limit = ?,
			health_check_url = ?, health_check_interval = ?, replicas = ?, deploy_strategy = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		a.Domain, a.Port, a.GitRepo, a.Branch, a.Image, a.ComposeInline,
		a.Type, a.WebhookSecret, a.AutoDeploy, a.CPULimit, a.MemoryLimit,
		a.HealthCheckURL, a.HealthCheckInterval, a.Replicas, a.DeployStrategy,
		a.ID)
	if err != nil {
		return err
	}
	return checkAffected(res, "app", a.ID)
}

func (r *AppRepo) UpdateStatus(ctx context.Context, id int64, status domain.AppStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE apps SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	return checkAffected(res, "app", id)
}

func (r *AppRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM apps WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkAffected(res, "app", id)
}
