package domain

import (
	"context"
	"time"
)

// ServerStatus is the lifecycle state of a registered remote host.
type ServerStatus string

const (
	ServerInactive     ServerStatus = "inactive"
	ServerProvisioning ServerStatus = "provisioning"
	ServerActive       ServerStatus = "active"
	ServerError        ServerStatus = "error"
)

// Server is a registered remote host reachable over SSH.
type Server struct {
	ID         int64        `json:"id" db:"id"`
	Name       string       `json:"name" db:"name"`
	Host       string       `json:"host" db:"host"`
	Port       int          `json:"port" db:"port"`
	User       string       `json:"user" db:"user"`
	SSHKeyPath *string      `json:"ssh_key_path,omitempty" db:"ssh_key_path"`
	Status     ServerStatus `json:"status" db:"status"`
	Provider   *string      `json:"provider,omitempty" db:"provider"`
	CreatedAt  time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at" db:"updated_at"`
}

// ServerRepository persists Server rows. Deleting a Server cascades to its
// Apps at the schema level (foreign key ON DELETE CASCADE).
type ServerRepository interface {
	Create(ctx context.Context, s *Server) error
	Get(ctx context.Context, id int64) (*Server, error)
	GetByName(ctx context.Context, name string) (*Server, error)
	List(ctx context.Context) ([]*Server, error)
	UpdateStatus(ctx context.Context, id int64, status ServerStatus) error
	Delete(ctx context.Context, id int64) error
}
