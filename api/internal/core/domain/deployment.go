package domain

import (
	"context"
	"time"
)

// DeploymentStatus is the lifecycle of a single deploy attempt.
type DeploymentStatus string

const (
	DeploymentInProgress DeploymentStatus = "in_progress"
	DeploymentSuccess    DeploymentStatus = "success"
	DeploymentFailed     DeploymentStatus = "failed"
)

// Deployment is one attempt to realise an App's declared source on its
// Server. Append-only: rows are never deleted, only created and updated up
// to a terminal status.
type Deployment struct {
	ID         int64            `json:"id" db:"id"`
	AppID      int64            `json:"app_id" db:"app_id"`
	Status     DeploymentStatus `json:"status" db:"status"`
	CommitHash *string          `json:"commit_hash,omitempty" db:"commit_hash"`
	ImageUsed  *string          `json:"image_used,omitempty" db:"image_used"`
	Log        string           `json:"log" db:"log"`
	StartedAt  time.Time        `json:"started_at" db:"started_at"`
	FinishedAt *time.Time       `json:"finished_at,omitempty" db:"finished_at"`
}

// DeploymentRepository persists Deployment rows.
type DeploymentRepository interface {
	Create(ctx context.Context, d *Deployment) error
	Get(ctx context.Context, id int64) (*Deployment, error)
	ListByApp(ctx context.Context, appID int64) ([]*Deployment, error)
	// LastSuccessful returns the most recent success (the implicit rollback
	// target), or nil if none exists.
	LastSuccessful(ctx context.Context, appID int64) (*Deployment, error)
	Finish(ctx context.Context, id int64, status DeploymentStatus, commitHash, imageUsed *string, log string) error
}
