package sqlite

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/infrakt/infrakt/api/internal/core/domain"
)

// WebhookRepo implements domain.WebhookRepository.
type WebhookRepo struct {
	db *sqlx.DB
}

func NewWebhookRepo(db *sqlx.DB) *WebhookRepo { return &WebhookRepo{db: db} }

func (r *WebhookRepo) Create(ctx context.Context, w *domain.WebhookSubscription) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO webhooks (url, events, secret) VALUES (?, ?, ?)`, w.URL, w.Events, w.Secret)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	w.ID = id
	return r.db.GetContext(ctx, w, `SELECT * FROM webhooks WHERE id = ?`, id)
}

func (r *WebhookRepo) List(ctx context.Context) ([]*domain.WebhookSubscription, error) {
	var out []*domain.WebhookSubscription
	if err := r.db.SelectContext(ctx, &out, `SELECT * FROM webhooks ORDER BY id`); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *WebhookRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM webhooks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkAffected(res, "webhook", id)
}
