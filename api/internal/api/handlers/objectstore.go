// api/internal/api/handlers/objectstore.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/infrakt/infrakt/api/internal/core/domain"
)

// objectStoreKeyAAD binds the encrypted S3 secret key at rest.
var objectStoreKeyAAD = []byte("object-store-secret-key")

// GetObjectStoreConfig handles GET /api/v1/settings/object-store. The
// secret key is never returned, only whether one is configured.
func (a *API) GetObjectStoreConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := a.ObjectStore.Get(r.Context())
	if err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			writeJSON(w, http.StatusOK, map[string]any{"configured": false})
			return
		}
		HandleError(w, r, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"configured":   true,
		"endpoint_url": cfg.EndpointURL,
		"bucket":       cfg.Bucket,
		"region":       cfg.Region,
		"access_key":   cfg.AccessKey,
		"prefix":       cfg.Prefix,
	})
}

type saveObjectStoreRequest struct {
	EndpointURL string  `json:"endpoint_url" validate:"required,url"`
	Bucket      string  `json:"bucket" validate:"required"`
	Region      string  `json:"region" validate:"required"`
	AccessKey   string  `json:"access_key" validate:"required"`
	SecretKey   string  `json:"secret_key" validate:"required"`
	Prefix      *string `json:"prefix,omitempty"`
}

// SaveObjectStoreConfig handles PUT /api/v1/settings/object-store.
func (a *API) SaveObjectStoreConfig(w http.ResponseWriter, r *http.Request) {
	var req saveObjectStoreRequest
	if err := decodeJSON(r, &req); err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		HandleError(w, r, a.Logger, &domain.ValidationError{Message: err.Error()})
		return
	}
	encrypted, err := a.Crypto.Encrypt(r.Context(), []byte(req.SecretKey), objectStoreKeyAAD)
	if err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	cfg := &domain.ObjectStoreConfig{
		EndpointURL:        req.EndpointURL,
		Bucket:             req.Bucket,
		Region:             req.Region,
		AccessKey:          req.AccessKey,
		SecretKeyEncrypted: encrypted,
		Prefix:             req.Prefix,
	}
	if err := a.ObjectStore.Save(r.Context(), cfg); err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// DeleteObjectStoreConfig handles DELETE /api/v1/settings/object-store.
func (a *API) DeleteObjectStoreConfig(w http.ResponseWriter, r *http.Request) {
	if err := a.ObjectStore.Delete(r.Context()); err != nil {
		HandleError(w, r, a.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
