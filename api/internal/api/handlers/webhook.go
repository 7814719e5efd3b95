// api/internal/api/handlers/webhook.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/infrakt/infrakt/api/internal/core/deploy"
	"github.com/infrakt/infrakt/api/internal/core/domain"
	"github.com/infrakt/infrakt/api/internal/core/utils"
)

// GithubWebhookHandler ingests GitHub push webhooks and folds them into the
// same deploy.Engine.Trigger entrypoint the CLI and authenticated HTTP
// routes use, rather than driving a separate ad-hoc deploy path.
type GithubWebhookHandler struct {
	Apps   domain.AppRepository
	Engine *deploy.Engine
	Logger *slog.Logger
}

func NewGithubWebhookHandler(apps domain.AppRepository, engine *deploy.Engine, logger *slog.Logger) *GithubWebhookHandler {
	return &GithubWebhookHandler{Apps: apps, Engine: engine, Logger: logger}
}

type webhookReply struct {
	Message string `json:"message"`
}

func (h *GithubWebhookHandler) reply(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(webhookReply{Message: msg})
}

type pushPayload struct {
	Ref        string `json:"ref"`
	Repository struct {
		CloneURL string `json:"clone_url"`
	} `json:"repository"`
}

// Handle serves POST /deploy/github-webhook. Authentication is per-App HMAC
// verification against each candidate App's webhook secret, not a platform
// or deploy key — this route is deliberately excluded from the key-based
// middleware chain.
func (h *GithubWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	event := r.Header.Get("X-GitHub-Event")
	if event == "ping" {
		h.reply(w, http.StatusOK, "pong")
		return
	}
	if event != "push" {
		h.reply(w, http.StatusOK, fmt.Sprintf("Ignored event: %s", event))
		return
	}

	sigHeader := r.Header.Get("X-Hub-Signature-256")
	if sigHeader == "" {
		h.reply(w, http.StatusBadRequest, "Missing X-Hub-Signature-256 header")
		return
	}

	rawBody, err := io.ReadAll(io.LimitReader(r.Body, 10<<20))
	if err != nil {
		h.reply(w, http.StatusBadRequest, "Failed to read body")
		return
	}

	var payload pushPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		h.reply(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	branch := strings.TrimPrefix(payload.Ref, "refs/heads/")
	if !strings.HasPrefix(payload.Ref, "refs/heads/") {
		branch = ""
	}
	cloneURL := payload.Repository.CloneURL
	if branch == "" || cloneURL == "" {
		h.reply(w, http.StatusOK, "Missing ref or repository in payload")
		return
	}

	apps, err := h.Apps.ListByGitRepoAndBranch(r.Context(), cloneURL, branch)
	if err != nil {
		h.Logger.Error("webhook: listing apps by repo/branch failed", slog.String("error", err.Error()))
		h.reply(w, http.StatusOK, "No matching app for this repo/branch")
		return
	}

	disabled := ""
	for _, app := range apps {
		if app.WebhookSecret == nil || *app.WebhookSecret == "" {
			continue
		}
		if err := utils.VerifyGitHubSignature(rawBody, sigHeader, *app.WebhookSecret); err != nil {
			continue
		}

		if !app.AutoDeploy {
			if disabled == "" {
				disabled = app.Name
			}
			continue
		}

		appID := app.ID
		appName := app.Name
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
			defer cancel()
			if _, err := h.Engine.Trigger(ctx, appID, deploy.TriggerOptions{}); err != nil {
				h.Logger.Error("webhook: triggered deploy failed", slog.String("app", appName), slog.String("error", err.Error()))
			}
		}()

		h.reply(w, http.StatusOK, fmt.Sprintf("Deploy triggered for '%s'", app.Name))
		return
	}

	if disabled != "" {
		h.reply(w, http.StatusOK, fmt.Sprintf("Auto-deploy disabled for '%s'", disabled))
		return
	}
	h.reply(w, http.StatusOK, "No matching app for this repo/branch")
}
