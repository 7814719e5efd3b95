package sqlite

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/infrakt/infrakt/api/internal/core/domain"
)

// AppDependencyRepo implements domain.AppDependencyRepository.
type AppDependencyRepo struct {
	db *sqlx.DB
}

func NewAppDependencyRepo(db *sqlx.DB) *AppDependencyRepo { return &AppDependencyRepo{db: db} }

func (r *AppDependencyRepo) Add(ctx context.Context, appID, dependsOnID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO app_dependencies (app_id, depends_on_app_id) VALUES (?, ?)`, appID, dependsOnID)
	return mapConstraintErr(err, "app_dependency", idKey(appID)+"->"+idKey(dependsOnID))
}

func (r *AppDependencyRepo) ListForApp(ctx context.Context, appID int64) ([]*domain.AppDependency, error) {
	var out []*domain.AppDependency
	err := r.db.SelectContext(ctx, &out,
		`SELECT * FROM app_dependencies WHERE app_id = ? ORDER BY id`, appID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *AppDependencyRepo) Remove(ctx context.Context, appID, dependsOnID int64) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM app_dependencies WHERE app_id = ? AND depends_on_app_id = ?`, appID, dependsOnID)
	return err
}
