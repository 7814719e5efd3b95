// api/internal/api/handlers/proxy.go
package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/infrakt/infrakt/api/internal/core/domain"
)

// ProxyDomains handles GET /api/v1/servers/{id}/proxy/domains.
func (a *API) ProxyDomains(w http.ResponseWriter, r *http.Request) {
	server, err := a.serverByIDParam(r)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	runner, err := a.Connect(r.Context(), server)
	if err != nil {
		HandleError(w, r, a.Logger, &domain.RemoteError{Host: server.Host, Err: err})
		return
	}
	defer runner.Close()

	routes, err := a.Proxy.ListDomains(r.Context(), runner)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, routes)
}

type addRouteRequest struct {
	ServerID int64  `json:"server_id" validate:"required"`
	Domain   string `json:"domain" validate:"required"`
	Port     int    `json:"port" validate:"required,min=1,max=65535"`
	AppName  string `json:"app_name" validate:"required"`
}

// AddProxyRoute handles POST /api/v1/proxy/routes.
func (a *API) AddProxyRoute(w http.ResponseWriter, r *http.Request) {
	var req addRouteRequest
	if err := decodeJSON(r, &req); err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		HandleError(w, r, a.Logger, &domain.ValidationError{Message: err.Error()})
		return
	}
	server, err := a.Servers.Get(r.Context(), req.ServerID)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	runner, err := a.Connect(r.Context(), server)
	if err != nil {
		HandleError(w, r, a.Logger, &domain.RemoteError{Host: server.Host, Err: err})
		return
	}
	defer runner.Close()

	warning, err := a.Proxy.AddDomain(r.Context(), runner, req.Domain, req.Port, req.AppName)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	resp := map[string]string{"status": "added"}
	if warning != "" {
		resp["warning"] = warning
	}
	writeJSON(w, http.StatusCreated, resp)
}

// RemoveProxyRoute handles DELETE /api/v1/servers/{id}/proxy/domains/{domain}.
func (a *API) RemoveProxyRoute(w http.ResponseWriter, r *http.Request) {
	server, err := a.serverByIDParam(r)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	domainName := chi.URLParam(r, "domain")
	runner, err := a.Connect(r.Context(), server)
	if err != nil {
		HandleError(w, r, a.Logger, &domain.RemoteError{Host: server.Host, Err: err})
		return
	}
	defer runner.Close()

	if err := a.Proxy.RemoveDomain(r.Context(), runner, domainName); err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReloadProxy handles POST /api/v1/servers/{id}/proxy/reload by restarting
// the Traefik container (`docker compose restart` in /opt/infrakt/traefik).
func (a *API) ReloadProxy(w http.ResponseWriter, r *http.Request) {
	server, err := a.serverByIDParam(r)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	runner, err := a.Connect(r.Context(), server)
	if err != nil {
		HandleError(w, r, a.Logger, &domain.RemoteError{Host: server.Host, Err: err})
		return
	}
	defer runner.Close()

	out, stderr, code, err := runner.Run(r.Context(), "cd /opt/infrakt/traefik && docker compose restart", 30*time.Second)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	if code != 0 {
		HandleError(w, r, a.Logger, &domain.RemoteError{Host: server.Host, Command: "docker compose restart", Stderr: stderr})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"output": out})
}
