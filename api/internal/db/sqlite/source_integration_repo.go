package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/infrakt/infrakt/api/internal/core/domain"
)

// SourceIntegrationRepo implements domain.SourceIntegrationRepository over
// the singleton row at id = 1.
type SourceIntegrationRepo struct {
	db *sqlx.DB
}

func NewSourceIntegrationRepo(db *sqlx.DB) *SourceIntegrationRepo {
	return &SourceIntegrationRepo{db: db}
}

func (r *SourceIntegrationRepo) Get(ctx context.Context) (*domain.SourceIntegration, error) {
	var s domain.SourceIntegration
	err := r.db.GetContext(ctx, &s, `SELECT * FROM source_integrations WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Kind: "source_integration", Key: "default"}
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SourceIntegrationRepo) Save(ctx context.Context, s *domain.SourceIntegration) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO source_integrations (id, username, token_encrypted) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET username = excluded.username, token_encrypted = excluded.token_encrypted`,
		s.Username, s.TokenEncrypted)
	return err
}

func (r *SourceIntegrationRepo) Delete(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM source_integrations WHERE id = 1`)
	return err
}
