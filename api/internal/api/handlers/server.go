// api/internal/api/handlers/server.go
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/infrakt/infrakt/api/internal/core/domain"
	"github.com/infrakt/infrakt/api/internal/core/metrics"
	"github.com/infrakt/infrakt/api/internal/core/provision"
)

type CreateServerRequest struct {
	Name       string  `json:"name" validate:"required,max=100"`
	Host       string  `json:"host" validate:"required,max=255"`
	Port       int     `json:"port" validate:"omitempty,min=1,max=65535"`
	User       string  `json:"user" validate:"required,max=100"`
	SSHKeyPath *string `json:"ssh_key_path,omitempty"`
	Provider   *string `json:"provider,omitempty"`
}

// CreateServer handles POST /api/v1/servers.
func (a *API) CreateServer(w http.ResponseWriter, r *http.Request) {
	var req CreateServerRequest
	if err := decodeJSON(r, &req); err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		HandleError(w, r, a.Logger, &domain.ValidationError{Message: err.Error()})
		return
	}
	if req.Port == 0 {
		req.Port = 22
	}

	s := &domain.Server{
		Name:       req.Name,
		Host:       req.Host,
		Port:       req.Port,
		User:       req.User,
		SSHKeyPath: req.SSHKeyPath,
		Provider:   req.Provider,
		Status:     domain.ServerInactive,
	}
	if err := a.Servers.Create(r.Context(), s); err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

// ListServers handles GET /api/v1/servers.
func (a *API) ListServers(w http.ResponseWriter, r *http.Request) {
	servers, err := a.Servers.List(r.Context())
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, servers)
}

func (a *API) serverByIDParam(r *http.Request) (*domain.Server, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return nil, &domain.ValidationError{Field: "id", Message: "must be numeric"}
	}
	return a.Servers.Get(r.Context(), id)
}

// GetServer handles GET /api/v1/servers/{id}.
func (a *API) GetServer(w http.ResponseWriter, r *http.Request) {
	s, err := a.serverByIDParam(r)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// DeleteServer handles DELETE /api/v1/servers/{id}. Cascades to the
// server's Apps at the schema level.
func (a *API) DeleteServer(w http.ResponseWriter, r *http.Request) {
	s, err := a.serverByIDParam(r)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	if err := a.Servers.Delete(r.Context(), s.ID); err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type provisionRequest struct {
	ACMEEmail string `json:"acme_email" validate:"omitempty,email"`
}

// ProvisionServer handles POST /api/v1/servers/{id}/provision. Installs
// Docker, Compose, and the Traefik reverse proxy, in the background; the
// caller polls GetServer/ServerStatus for progress.
func (a *API) ProvisionServer(w http.ResponseWriter, r *http.Request) {
	s, err := a.serverByIDParam(r)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	var req provisionRequest
	_ = decodeJSON(r, &req) // body is optional

	_ = a.Servers.UpdateStatus(r.Context(), s.ID, domain.ServerProvisioning)

	progressKey := strconv.FormatInt(-s.ID, 10)
	a.Hub.Register(progressKey)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
		defer cancel()
		defer a.Hub.ScheduleCleanup(progressKey)
		defer a.Hub.Finish(progressKey)
		runner, err := a.Connect(ctx, s)
		if err != nil {
			a.Logger.Error("provision: connect failed", "server", s.Name, "error", err)
			_ = a.Servers.UpdateStatus(ctx, s.ID, domain.ServerError)
			return
		}
		defer runner.Close()

		onStep := func(name string, index, total int) {
			a.Logger.Info("provision step", "server", s.Name, "step", name, "index", index, "total", total)
			a.Hub.Publish(progressKey, name)
		}
		if err := provision.Provision(ctx, runner, req.ACMEEmail, onStep); err != nil {
			a.Logger.Error("provision: failed", "server", s.Name, "error", err)
			_ = a.Servers.UpdateStatus(ctx, s.ID, domain.ServerError)
			return
		}
		_ = a.Servers.UpdateStatus(ctx, s.ID, domain.ServerActive)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "provisioning"})
}

// WipeServer handles POST /api/v1/servers/{id}/wipe. Tears down everything
// Provision installed; does not delete the Server row.
func (a *API) WipeServer(w http.ResponseWriter, r *http.Request) {
	s, err := a.serverByIDParam(r)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	runner, err := a.Connect(r.Context(), s)
	if err != nil {
		HandleError(w, r, a.Logger, &domain.RemoteError{Host: s.Host, Err: err})
		return
	}
	defer runner.Close()

	onStep := func(name string, index, total int) {
		a.Logger.Info("wipe step", "server", s.Name, "step", name, "index", index, "total", total)
	}
	if err := provision.Wipe(r.Context(), runner, onStep); err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	_ = a.Servers.UpdateStatus(r.Context(), s.ID, domain.ServerInactive)
	writeJSON(w, http.StatusOK, map[string]string{"status": "wiped"})
}

// ServerStatus handles GET /api/v1/servers/{id}/status — the server's
// recorded lifecycle state plus its most recent resource metrics. When the
// server is reachable, a fresh metric sample is taken and recorded first.
func (a *API) ServerStatus(w http.ResponseWriter, r *http.Request) {
	s, err := a.serverByIDParam(r)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	if runner, connErr := a.Connect(r.Context(), s); connErr == nil {
		if snap, sampleErr := metrics.Sample(r.Context(), runner); sampleErr == nil {
			if recErr := a.ServerMetrics.Record(r.Context(), metrics.ToDomain(s.ID, time.Now().UTC(), snap)); recErr != nil {
				a.Logger.Warn("status: recording metric failed", "server", s.Name, "error", recErr)
			}
		}
		runner.Close()
	}
	since := time.Now().UTC().Add(-1 * time.Hour)
	metrics, err := a.ServerMetrics.Range(r.Context(), s.ID, since)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"server":  s,
		"metrics": metrics,
	})
}

// TestConnection handles POST /api/v1/servers/{id}/test-connection.
func (a *API) TestConnection(w http.ResponseWriter, r *http.Request) {
	s, err := a.serverByIDParam(r)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	runner, connErr := a.Connect(r.Context(), s)
	if connErr != nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": connErr.Error()})
		return
	}
	defer runner.Close()
	ok := runner.TestConnection(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"ok": ok})
}
