package sqlite

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/infrakt/infrakt/api/internal/core/domain"
)

// ServerMetricRepo implements domain.ServerMetricRepository.
type ServerMetricRepo struct {
	db *sqlx.DB
}

func NewServerMetricRepo(db *sqlx.DB) *ServerMetricRepo { return &ServerMetricRepo{db: db} }

func (r *ServerMetricRepo) Record(ctx context.Context, m *domain.ServerMetric) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO server_metrics (server_id, recorded_at, cpu_percent, mem_percent, disk_percent)
		VALUES (?, ?, ?, ?, ?)`,
		m.ServerID, m.RecordedAt, m.CPUPercent, m.MemPercent, m.DiskPercent)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = id
	return nil
}

func (r *ServerMetricRepo) Range(ctx context.Context, serverID int64, since time.Time) ([]*domain.ServerMetric, error) {
	var out []*domain.ServerMetric
	err := r.db.SelectContext(ctx, &out, `
		SELECT * FROM server_metrics WHERE server_id = ? AND recorded_at >= ? ORDER BY recorded_at`,
		serverID, since)
	if err != nil {
		return nil, err
	}
	return out, nil
}
