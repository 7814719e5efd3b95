package domain

import (
	"context"
	"time"
)

// SSHKey is a managed private/public key pair on the control-plane host.
type SSHKey struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Fingerprint string    `json:"fingerprint" db:"fingerprint"`
	Algorithm   string    `json:"algorithm" db:"algorithm"`
	PublicKey   string    `json:"public_key" db:"public_key"`
	PrivatePath string    `json:"private_path" db:"private_path"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type SSHKeyRepository interface {
	Create(ctx context.Context, k *SSHKey) error
	Get(ctx context.Context, id int64) (*SSHKey, error)
	GetByName(ctx context.Context, name string) (*SSHKey, error)
	List(ctx context.Context) ([]*SSHKey, error)
	Delete(ctx context.Context, id int64) error
}

// WebhookSubscription is an outbound HTTP notification target.
type WebhookSubscription struct {
	ID        int64     `json:"id" db:"id"`
	URL       string    `json:"url" db:"url"`
	Events    string    `json:"events" db:"events"` // comma-joined
	Secret    *string   `json:"-" db:"secret"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

func (w *WebhookSubscription) EventList() []string {
	if w.Events == "" {
		return nil
	}
	out := make([]string, 0, 4)
	start := 0
	for i := 0; i <= len(w.Events); i++ {
		if i == len(w.Events) || w.Events[i] == ',' {
			if i > start {
				out = append(out, w.Events[start:i])
			}
			start = i + 1
		}
	}
	return out
}

type WebhookRepository interface {
	Create(ctx context.Context, w *WebhookSubscription) error
	List(ctx context.Context) ([]*WebhookSubscription, error)
	Delete(ctx context.Context, id int64) error
}

// SourceIntegration is a singleton holding an encrypted source-control token.
type SourceIntegration struct {
	ID              int64  `json:"id" db:"id"`
	Username        string `json:"username" db:"username"`
	TokenEncrypted  string `json:"-" db:"token_encrypted"`
}

type SourceIntegrationRepository interface {
	Get(ctx context.Context) (*SourceIntegration, error)
	Save(ctx context.Context, s *SourceIntegration) error
	Delete(ctx context.Context) error
}

// ObjectStoreConfig is a singleton S3-compatible backup-replication target.
type ObjectStoreConfig struct {
	ID                   int64   `json:"id" db:"id"`
	EndpointURL          string  `json:"endpoint_url" db:"endpoint_url"`
	Bucket               string  `json:"bucket" db:"bucket"`
	Region               string  `json:"region" db:"region"`
	AccessKey            string  `json:"access_key" db:"access_key"`
	SecretKeyEncrypted   string  `json:"-" db:"secret_key_encrypted"`
	Prefix               *string `json:"prefix,omitempty" db:"prefix"`
}

type ObjectStoreConfigRepository interface {
	Get(ctx context.Context) (*ObjectStoreConfig, error)
	Save(ctx context.Context, c *ObjectStoreConfig) error
	Delete(ctx context.Context) error
}

// ServerMetric is a point-in-time resource snapshot for a Server.
type ServerMetric struct {
	ID          int64     `json:"id" db:"id"`
	ServerID    int64     `json:"server_id" db:"server_id"`
	RecordedAt  time.Time `json:"recorded_at" db:"recorded_at"`
	CPUPercent  *float64  `json:"cpu_percent,omitempty" db:"cpu_percent"`
	MemPercent  *float64  `json:"mem_percent,omitempty" db:"mem_percent"`
	DiskPercent *float64  `json:"disk_percent,omitempty" db:"disk_percent"`
}

type ServerMetricRepository interface {
	Record(ctx context.Context, m *ServerMetric) error
	Range(ctx context.Context, serverID int64, since time.Time) ([]*ServerMetric, error)
}
