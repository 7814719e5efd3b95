package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/infrakt/infrakt/api/internal/core/domain"
)

// DeploymentRepo implements domain.DeploymentRepository. Rows are append-only:
// Create inserts, Finish is the only update path.
type DeploymentRepo struct {
	db *sqlx.DB
}

func NewDeploymentRepo(db *sqlx.DB) *DeploymentRepo { return &DeploymentRepo{db: db} }

func (r *DeploymentRepo) Create(ctx context.Context, d *domain.Deployment) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO deployments (app_id, status, commit_hash, image_used, log, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		d.AppID, d.Status, d.CommitHash, d.ImageUsed, d.Log, d.StartedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	created, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	*d = *created
	return nil
}

func (r *DeploymentRepo) Get(ctx context.Context, id int64) (*domain.Deployment, error) {
	var d domain.Deployment
	err := r.db.GetContext(ctx, &d, `SELECT * FROM deployments WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Kind: "deployment", Key: idKey(id)}
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DeploymentRepo) ListByApp(ctx context.Context, appID int64) ([]*domain.Deployment, error) {
	var out []*domain.Deployment
	err := r.db.SelectContext(ctx, &out,
		`SELECT * FROM deployments WHERE app_id = ? ORDER BY started_at DESC`, appID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *DeploymentRepo) LastSuccessful(ctx context.Context, appID int64) (*domain.Deployment, error) {
	var d domain.Deployment
	err := r.db.GetContext(ctx, &d, `
		SELECT * FROM deployments
		WHERE app_id = ? AND status = ?
		ORDER BY started_at DESC LIMIT 1`, appID, domain.DeploymentSuccess)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DeploymentRepo) Finish(ctx context.Context, id int64, status domain.DeploymentStatus, commitHash, imageUsed *string, log string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE deployments SET status = ?, commit_hash = ?, image_used = ?, log = ?, finished_at = CURRENT_TIMESTAMP
		WHERE id = ?`, status, commitHash, imageUsed, log, id)
	if err != nil {
		return err
	}
	return checkAffected(res, "deployment", id)
}
