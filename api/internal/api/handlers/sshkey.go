// api/internal/api/handlers/sshkey.go
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/infrakt/infrakt/api/internal/core/auth"
	"github.com/infrakt/infrakt/api/internal/core/domain"
	"github.com/infrakt/infrakt/api/internal/core/remote"
)

type CreateSSHKeyRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

// CreateSSHKey handles POST /api/v1/ssh-keys. Generates a fresh Ed25519
// key pair under Config.KeysDir; the private key never leaves the
// control-plane host.
func (a *API) CreateSSHKey(w http.ResponseWriter, r *http.Request) {
	var req CreateSSHKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		HandleError(w, r, a.Logger, &domain.ValidationError{Message: err.Error()})
		return
	}
	if _, err := a.SSHKeys.GetByName(r.Context(), req.Name); err == nil {
		HandleError(w, r, a.Logger, &domain.ConflictError{Message: fmt.Sprintf("SSH key %q already exists", req.Name)})
		return
	}

	privatePath, publicKey, fingerprint, err := auth.GenerateSSHKeyPair(a.Config.KeysDir, req.Name)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}

	k := &domain.SSHKey{
		Name:        req.Name,
		Fingerprint: fingerprint,
		Algorithm:   "ed25519",
		PublicKey:   publicKey,
		PrivatePath: privatePath,
	}
	if err := a.SSHKeys.Create(r.Context(), k); err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, k)
}

// ListSSHKeys handles GET /api/v1/ssh-keys.
func (a *API) ListSSHKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := a.SSHKeys.List(r.Context())
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

func (a *API) sshKeyByIDParam(r *http.Request) (*domain.SSHKey, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return nil, &domain.ValidationError{Field: "id", Message: "must be numeric"}
	}
	return a.SSHKeys.Get(r.Context(), id)
}

// DeleteSSHKey handles DELETE /api/v1/ssh-keys/{id}. Removes both key
// files from disk, then the row; a failed file removal does not block the
// row deletion since a dangling file on disk is strictly less harmful than
// a row pointing at nothing.
func (a *API) DeleteSSHKey(w http.ResponseWriter, r *http.Request) {
	k, err := a.sshKeyByIDParam(r)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	_ = os.Remove(k.PrivatePath)
	_ = os.Remove(k.PrivatePath + ".pub")
	if err := a.SSHKeys.Delete(r.Context(), k.ID); err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type deploySSHKeyRequest struct {
	ServerID int64 `json:"server_id" validate:"required"`
}

// DeploySSHKey handles POST /api/v1/ssh-keys/{id}/deploy — appends the
// key's public half to the target Server's ~/.ssh/authorized_keys.
func (a *API) DeploySSHKey(w http.ResponseWriter, r *http.Request) {
	k, err := a.sshKeyByIDParam(r)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	var req deploySSHKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		HandleError(w, r, a.Logger, err)
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

	if err := deployPublicKey(r.Context(), runner, k.PublicKey); err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deployed"})
}

// deployPublicKey appends pubKey to the connected host's authorized_keys
// file if it isn't already present.
func deployPublicKey(ctx context.Context, r remote.Runner, pubKey string) error {
	const timeout = 30 * time.Second

	if _, err := r.RunChecked(ctx, "mkdir -p ~/.ssh", timeout); err != nil {
		return err
	}
	existing, _, _, err := r.Run(ctx, "cat ~/.ssh/authorized_keys 2>/dev/null || true", timeout)
	if err != nil {
		return err
	}
	if strings.Contains(existing, pubKey) {
		return nil
	}
	cmd := fmt.Sprintf("echo %s >> ~/.ssh/authorized_keys", remote.Quote(pubKey))
	if _, err := r.RunChecked(ctx, cmd, timeout); err != nil {
		return err
	}
	_, err = r.RunChecked(ctx, "chmod 600 ~/.ssh/authorized_keys", timeout)
	return err
}
