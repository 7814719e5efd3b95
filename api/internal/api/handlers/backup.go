// api/internal/api/handlers/backup.go
package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/infrakt/infrakt/api/internal/core/backup"
	"github.com/infrakt/infrakt/api/internal/core/domain"
)

// loadDatabaseApp fetches the app and its server, rejecting anything that
// isn't a database-type app since the Backup Engine only knows how to dump
// the engines app.Type.Engine() names.
func (a *API) loadDatabaseApp(r *http.Request) (*domain.App, *domain.Server, error) {
	app, err := a.appByIDParam(r)
	if err != nil {
		return nil, nil, err
	}
	if !app.Type.IsDatabase() {
		return nil, nil, &domain.ValidationError{Field: "id", Message: "app is not a database app"}
	}
	server, err := a.Servers.Get(r.Context(), app.ServerID)
	if err != nil {
		return nil, nil, err
	}
	return app, server, nil
}

// BackupApp handles POST /api/v1/apps/{id}/backup — runs an immediate dump
// and, if an object store is configured, replicates it off-host.
func (a *API) BackupApp(w http.ResponseWriter, r *http.Request) {
	app, server, err := a.loadDatabaseApp(r)
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

	remotePath, err := backup.Backup(r.Context(), runner, app.Type.Engine(), app.Name, a.Config.BackupsDir, time.Now())
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}

	resp := map[string]any{"remote_path": remotePath}

	if osCfg, osErr := a.loadObjectStore(r); osErr == nil {
		filename := remotePath[strings.LastIndex(remotePath, "/")+1:]
		if err := backup.SyncUp(r.Context(), runner, *osCfg, remotePath, filename); err != nil {
			a.Logger.Warn("backup: object store sync failed", "app", app.Name, "error", err)
			resp["synced"] = false
		} else {
			resp["synced"] = true
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListAppBackups handles GET /api/v1/apps/{id}/backups — the object-store
// replica list, since the remote host itself only keeps its own retention
// window.
func (a *API) ListAppBackups(w http.ResponseWriter, r *http.Request) {
	_, server, err := a.loadDatabaseApp(r)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	osCfg, err := a.loadObjectStore(r)
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

	objects, err := backup.List(r.Context(), runner, *osCfg)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, objects)
}

type restoreBackupRequest struct {
	// RemotePath restores directly from a path already on the host (e.g. a
	// backup just produced by BackupApp). ObjectKey instead downloads from
	// the configured object store first.
	RemotePath string `json:"remote_path,omitempty"`
	ObjectKey  string `json:"object_key,omitempty"`
}

// RestoreAppBackup handles POST /api/v1/apps/{id}/backups/restore.
func (a *API) RestoreAppBackup(w http.ResponseWriter, r *http.Request) {
	app, server, err := a.loadDatabaseApp(r)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	var req restoreBackupRequest
	if err := decodeJSON(r, &req); err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	if req.RemotePath == "" && req.ObjectKey == "" {
		HandleError(w, r, a.Logger, &domain.ValidationError{Message: "remote_path or object_key is required"})
		return
	}

	runner, err := a.Connect(r.Context(), server)
	if err != nil {
		HandleError(w, r, a.Logger, &domain.RemoteError{Host: server.Host, Err: err})
		return
	}
	defer runner.Close()

	remotePath := req.RemotePath
	if remotePath == "" {
		osCfg, osErr := a.loadObjectStore(r)
		if osErr != nil {
			HandleError(w, r, a.Logger, osErr)
			return
		}
		downloaded, err := backup.Download(r.Context(), runner, *osCfg, req.ObjectKey, a.Config.BackupsDir)
		if err != nil {
			HandleError(w, r, a.Logger, err)
			return
		}
		remotePath = downloaded
	}

	if err := backup.Restore(r.Context(), runner, app.Type.Engine(), app.Name, remotePath); err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "restored"})
}

type installBackupCronRequest struct {
	CronExpr      string `json:"cron_expr" validate:"required"`
	RetentionDays int    `json:"retention_days" validate:"required,min=1"`
}

// InstallBackupCron handles POST /api/v1/apps/{id}/backup/cron.
func (a *API) InstallBackupCron(w http.ResponseWriter, r *http.Request) {
	app, server, err := a.loadDatabaseApp(r)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	var req installBackupCronRequest
	if err := decodeJSON(r, &req); err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		HandleError(w, r, a.Logger, &domain.ValidationError{Message: err.Error()})
		return
	}

	runner, err := a.Connect(r.Context(), server)
	if err != nil {
		HandleError(w, r, a.Logger, &domain.RemoteError{Host: server.Host, Err: err})
		return
	}
	defer runner.Close()

	if err := backup.InstallCron(r.Context(), runner, app.Type.Engine(), app.Name, a.Config.BackupsDir, req.CronExpr, req.RetentionDays); err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "scheduled"})
}

// RemoveBackupCron handles DELETE /api/v1/apps/{id}/backup/cron.
func (a *API) RemoveBackupCron(w http.ResponseWriter, r *http.Request) {
	app, server, err := a.loadDatabaseApp(r)
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

	backup.RemoveCron(r.Context(), runner, app.Name, a.Config.BackupsDir)
	w.WriteHeader(http.StatusNoContent)
}

// loadObjectStore fetches and decrypts the platform-wide object store
// configuration, returning a backup.ObjectStoreConfig ready for SyncUp,
// List, or Download.
func (a *API) loadObjectStore(r *http.Request) (*backup.ObjectStoreConfig, error) {
	cfg, err := a.ObjectStore.Get(r.Context())
	if err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			return nil, &domain.NotFoundError{Kind: "object-store-config", Key: "platform"}
		}
		return nil, err
	}
	secret, err := a.Crypto.Decrypt(r.Context(), cfg.SecretKeyEncrypted, objectStoreKeyAAD)
	if err != nil {
		return nil, err
	}
	prefix := ""
	if cfg.Prefix != nil {
		prefix = *cfg.Prefix
	}
	return &backup.ObjectStoreConfig{
		EndpointURL: cfg.EndpointURL,
		Bucket:      cfg.Bucket,
		Region:      cfg.Region,
		AccessKey:   cfg.AccessKey,
		SecretKey:   string(secret),
		Prefix:      prefix,
	}, nil
}
