package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Handlers map these to HTTP status codes; the CLI maps them
// to an exit code of 1 and a red stderr line.
var (
	ErrValidation = errors.New("validation")
	ErrNotFound   = errors.New("not found")
	ErrAuth       = errors.New("unauthenticated")
	ErrForbidden  = errors.New("forbidden")
	ErrConflict   = errors.New("conflict")
	ErrRemote     = errors.New("remote failure")
	ErrInternal   = errors.New("internal")
)

// ValidationError wraps a caller-input problem with a field-level message.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError names the missing resource kind and key.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Key)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError names a duplicate or contended resource.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

func (e *ConflictError) Unwrap() error { return ErrConflict }

// RemoteError wraps a transport/command failure against a remote host,
// carrying the host identity for diagnostics.
type RemoteError struct {
	Host    string
	Command string
	Stderr  string
	Err     error
}

func (e *RemoteError) Error() string {
	if e.Command != "" {
		return fmt.Sprintf("remote command failed on %s: %s: %v (stderr: %s)", e.Host, e.Command, e.Err, e.Stderr)
	}
	return fmt.Sprintf("remote failure on %s: %v", e.Host, e.Err)
}

func (e *RemoteError) Unwrap() error { return ErrRemote }

// DeploymentError is raised by the deploy state machine. Log carries every
// line emitted up to and including the failure.
type DeploymentError struct {
	App string
	Log []string
	Err error
}

func (e *DeploymentError) Error() string {
	return fmt.Sprintf("deployment of %q failed: %v", e.App, e.Err)
}

func (e *DeploymentError) Unwrap() error { return e.Err }
