// api/internal/api/handlers/outbound_webhook.go
package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/infrakt/infrakt/api/internal/core/domain"
)

type CreateWebhookRequest struct {
	URL    string   `json:"url" validate:"required,url"`
	Events []string `json:"events" validate:"required,min=1,dive,oneof=deploy.started deploy.succeeded deploy.failed app.stopped app.restarted"`
	Secret string   `json:"secret" validate:"required,min=16"`
}

// CreateWebhook handles POST /api/v1/webhooks — registers an outbound
// notification subscription, distinct from the inbound push-ingest route.
func (a *API) CreateWebhook(w http.ResponseWriter, r *http.Request) {
	var req CreateWebhookRequest
	if err := decodeJSON(r, &req); err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		HandleError(w, r, a.Logger, &domain.ValidationError{Message: err.Error()})
		return
	}
	sub := &domain.WebhookSubscription{
		URL:    req.URL,
		Events: strings.Join(req.Events, ","),
		Secret: &req.Secret,
	}
	if err := a.Webhooks.Create(r.Context(), sub); err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// ListWebhooks handles GET /api/v1/webhooks.
func (a *API) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	subs, err := a.Webhooks.List(r.Context())
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

// DeleteWebhook handles DELETE /api/v1/webhooks/{id}.
func (a *API) DeleteWebhook(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		HandleError(w, r, a.Logger, &domain.ValidationError{Field: "id", Message: "must be numeric"})
		return
	}
	if err := a.Webhooks.Delete(r.Context(), id); err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type webhookTestPayload struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

// TestWebhook handles POST /api/v1/webhooks/{id}/test — sends a signed
// synthetic event so the operator can confirm their receiver validates
// the HMAC signature correctly before relying on it.
func (a *API) TestWebhook(w http.ResponseWriter, r *http.Request) {
	subs, err := a.Webhooks.List(r.Context())
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		HandleError(w, r, a.Logger, &domain.ValidationError{Field: "id", Message: "must be numeric"})
		return
	}
	var target *domain.WebhookSubscription
	for _, s := range subs {
		if s.ID == id {
			target = s
			break
		}
	}
	if target == nil {
		HandleError(w, r, a.Logger, &domain.NotFoundError{Kind: "webhook", Key: strconv.FormatInt(id, 10)})
		return
	}

	body, _ := json.Marshal(webhookTestPayload{
		Event:     "test",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Message:   "this is a test event from infrakt",
	})

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, target.URL, bytes.NewReader(body))
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if target.Secret != nil {
		mac := hmac.New(sha256.New, []byte(*target.Secret))
		mac.Write(body)
		req.Header.Set("X-Infrakt-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"delivered": false, "error": err.Error()})
		return
	}
	defer resp.Body.Close()
	writeJSON(w, http.StatusOK, map[string]any{"delivered": true, "status_code": resp.StatusCode})
}
