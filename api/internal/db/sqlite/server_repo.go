package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/infrakt/infrakt/api/internal/core/domain"
)

// ServerRepo implements domain.ServerRepository over a single SQLite file.
type ServerRepo struct {
	db *sqlx.DB
}

func NewServerRepo(db *sqlx.DB) *ServerRepo { return &ServerRepo{db: db} }

func (r *ServerRepo) Create(ctx context.Context, s *domain.Server) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO servers (name, host, port, user, ssh_key_path, status, provider)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.Name, s.Host, s.Port, s.User, s.SSHKeyPath, s.Status, s.Provider)
	if err != nil {
		return mapConstraintErr(err, "server", s.Name)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	created, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	*s = *created
	return nil
}

func (r *ServerRepo) Get(ctx context.Context, id int64) (*domain.Server, error) {
	var s domain.Server
	err := r.db.GetContext(ctx, &s, `SELECT * FROM servers WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Kind: "server", Key: idKey(id)}
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *ServerRepo) GetByName(ctx context.Context, name string) (*domain.Server, error) {
	var s domain.Server
	err := r.db.GetContext(ctx, &s, `SELECT * FROM servers WHERE name = ?`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Kind: "server", Key: name}
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *ServerRepo) List(ctx context.Context) ([]*domain.Server, error) {
	var out []*domain.Server
	if err := r.db.SelectContext(ctx, &out, `SELECT * FROM servers ORDER BY name`); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ServerRepo) UpdateStatus(ctx context.Context, id int64, status domain.ServerStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE servers SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	return checkAffected(res, "server", id)
}

func (r *ServerRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM servers WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkAffected(res, "server", id)
}
