package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/infrakt/infrakt/api/internal/core/domain"
)

// SSHKeyRepo implements domain.SSHKeyRepository.
type SSHKeyRepo struct {
	db *sqlx.DB
}

func NewSSHKeyRepo(db *sqlx.DB) *SSHKeyRepo { return &SSHKeyRepo{db: db} }

func (r *SSHKeyRepo) Create(ctx context.Context, k *domain.SSHKey) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO ssh_keys (name, fingerprint, algorithm, public_key, private_path)
		VALUES (?, ?, ?, ?, ?)`,
		k.Name, k.Fingerprint, k.Algorithm, k.PublicKey, k.PrivatePath)
	if err != nil {
		return mapConstraintErr(err, "ssh_key", k.Name)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	created, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	*k = *created
	return nil
}

func (r *SSHKeyRepo) Get(ctx context.Context, id int64) (*domain.SSHKey, error) {
	var k domain.SSHKey
	err := r.db.GetContext(ctx, &k, `SELECT * FROM ssh_keys WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Kind: "ssh_key", Key: idKey(id)}
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (r *SSHKeyRepo) GetByName(ctx context.Context, name string) (*domain.SSHKey, error) {
	var k domain.SSHKey
	err := r.db.GetContext(ctx, &k, `SELECT * FROM ssh_keys WHERE name = ?`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Kind: "ssh_key", Key: name}
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (r *SSHKeyRepo) List(ctx context.Context) ([]*domain.SSHKey, error) {
	var out []*domain.SSHKey
	if err := r.db.SelectContext(ctx, &out, `SELECT * FROM ssh_keys ORDER BY name`); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SSHKeyRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM ssh_keys WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkAffected(res, "ssh_key", id)
}
