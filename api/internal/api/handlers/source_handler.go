// api/internal/api/handlers/source_handler.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/infrakt/infrakt/api/internal/core/domain"
)

// sourceTokenAAD must match the constant of the same name in
// internal/core/deploy — both the save path here and the decrypt path in
// the Deploy State Machine encrypt/decrypt the source token bound to this
// associated data.
var sourceTokenAAD = []byte("source-integration-token")

// SourceStatus handles GET /api/v1/ci/github/status.
func (a *API) SourceStatus(w http.ResponseWriter, r *http.Request) {
	integ, err := a.SourceIntegrations.Get(r.Context())
	if err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			writeJSON(w, http.StatusOK, map[string]any{"connected": false})
			return
		}
		HandleError(w, r, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"connected": true, "username": integ.Username})
}

type connectSourceRequest struct {
	Token string `json:"token" validate:"required"`
}

// SourceConnect handles POST /api/v1/ci/github/connect. Validates the
// token against the GitHub API, checks it carries the scopes a deploy
// flow needs, and persists it encrypted.
func (a *API) SourceConnect(w http.ResponseWriter, r *http.Request) {
	var req connectSourceRequest
	if err := decodeJSON(r, &req); err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		HandleError(w, r, a.Logger, &domain.ValidationError{Message: err.Error()})
		return
	}

	client := a.NewSourceClient(req.Token)
	username, err := client.ValidateToken(req.Token)
	if err != nil {
		HandleError(w, r, a.Logger, &domain.ValidationError{Field: "token", Message: err.Error()})
		return
	}

	encrypted, err := a.Crypto.Encrypt(r.Context(), []byte(req.Token), sourceTokenAAD)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	integ := &domain.SourceIntegration{Username: username, TokenEncrypted: encrypted}
	if err := a.SourceIntegrations.Save(r.Context(), integ); err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"connected": true, "username": username})
}

// SourceDisconnect handles DELETE /api/v1/ci/github/disconnect.
func (a *API) SourceDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := a.SourceIntegrations.Delete(r.Context()); err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SourceRepos handles GET /api/v1/ci/github/repos — the connected
// account's repository list, for populating a "create app from repo"
// picker.
func (a *API) SourceRepos(w http.ResponseWriter, r *http.Request) {
	integ, err := a.SourceIntegrations.Get(r.Context())
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	token, err := a.Crypto.Decrypt(r.Context(), integ.TokenEncrypted, sourceTokenAAD)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	client := a.NewSourceClient(string(token))
	repos, err := client.ListRepos()
	if err != nil {
		HandleError(w, r, a.Logger, &domain.RemoteError{Host: "github.com", Err: err})
		return
	}
	writeJSON(w, http.StatusOK, repos)
}
