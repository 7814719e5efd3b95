package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/infrakt/infrakt/api/internal/core/domain"
)

// ObjectStoreConfigRepo implements domain.ObjectStoreConfigRepository over
// the singleton row at id = 1.
type ObjectStoreConfigRepo struct {
	db *sqlx.DB
}

func NewObjectStoreConfigRepo(db *sqlx.DB) *ObjectStoreConfigRepo {
	return &ObjectStoreConfigRepo{db: db}
}

func (r *ObjectStoreConfigRepo) Get(ctx context.Context) (*domain.ObjectStoreConfig, error) {
	var c domain.ObjectStoreConfig
	err := r.db.GetContext(ctx, &c, `SELECT * FROM object_store_configs WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Kind: "object_store_config", Key: "default"}
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ObjectStoreConfigRepo) Save(ctx context.Context, c *domain.ObjectStoreConfig) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO object_store_configs (id, endpoint_url, bucket, region, access_key, secret_key_encrypted, prefix)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			endpoint_url = excluded.endpoint_url, bucket = excluded.bucket, region = excluded.region,
			access_key = excluded.access_key, secret_key_encrypted = excluded.secret_key_encrypted,
			prefix = excluded.prefix`,
		c.EndpointURL, c.Bucket, c.Region, c.AccessKey, c.SecretKeyEncrypted, c.Prefix)
	return err
}

func (r *ObjectStoreConfigRepo) Delete(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM object_store_configs WHERE id = 1`)
	return err
}
