// api/internal/api/handlers/deploykey.go
package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/infrakt/infrakt/api/internal/core/domain"
)

type CreateDeployKeyRequest struct {
	Label  string   `json:"label" validate:"required,max=100"`
	Scopes []string `json:"scopes" validate:"required,min=1,dive,oneof=deploy"`
}

// CreateDeployKey handles POST /api/v1/ci/keys. The plaintext key is
// returned exactly once and is never persisted or retrievable again.
func (a *API) CreateDeployKey(w http.ResponseWriter, r *http.Request) {
	var req CreateDeployKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		HandleError(w, r, a.Logger, &domain.ValidationError{Message: err.Error()})
		return
	}
	plaintext, key, err := a.DeployKeys.Create(req.Label, req.Scopes)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"label":   key.Label,
		"scopes":  key.Scopes,
		"key":     plaintext,
		"warning": "save this key now, it will not be shown again",
	})
}

// ListDeployKeys handles GET /api/v1/ci/keys. Never includes the hash or
// any reconstructable form of the plaintext.
func (a *API) ListDeployKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := a.DeployKeys.List()
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

// RevokeDeployKey handles DELETE /api/v1/ci/keys/{label}.
func (a *API) RevokeDeployKey(w http.ResponseWriter, r *http.Request) {
	label := chi.URLParam(r, "label")
	if err := a.DeployKeys.Revoke(label); err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

const workflowTemplate = `name: Deploy %s

on:
  push:
    branches: [main]

jobs:
  deploy:
    runs-on: ubuntu-latest
    steps:
      - name: Trigger deploy
        run: |
          curl -sf -X POST "${{ secrets.INFRAKT_URL }}/api/v1/apps/%d/deploy" \
            -H "X-API-Key: ${{ secrets.INFRAKT_DEPLOY_KEY }}" \
            -H "Content-Type: application/json" \
            -d '{}'
`

// AppWorkflowYAML handles GET /api/v1/ci/apps/{id}/workflow — a generated
// GitHub Actions workflow that triggers a deploy of this App via a
// deploy-scoped key over curl, for operators who would rather bring their
// own CI than rely on the push-webhook ingest path.
func (a *API) AppWorkflowYAML(w http.ResponseWriter, r *http.Request) {
	app, err := a.appByIDParam(r)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	workflow := fmt.Sprintf(workflowTemplate, app.Name, app.ID)
	w.Header().Set("Content-Type", "text/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(workflow))
}
