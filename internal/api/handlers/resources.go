package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/mft/internal/api/errors"
	"github.com/bigkaa/mft/internal/api/middleware"
	"github.com/bigkaa/mft/internal/connector"
	"github.com/bigkaa/mft/internal/domain/model"
	"github.com/bigkaa/mft/internal/service"
)

// metadataQuery разбирает параметры запроса метаданных:
// type (обязателен), token, resourceBackend, credentialBackend, path.
func metadataQuery(r *http.Request) (service.MetadataQuery, error) {
	q := r.URL.Query()
	storageType := model.ParseStorageType(q.Get("type"))
	if storageType == "" {
		return service.MetadataQuery{}, fmt.Errorf("параметр type обязателен")
	}
	return service.MetadataQuery{
		Type: storageType,
		Ref: connector.Ref{
			ResourceID:        chi.URLParam(r, "id"),
			CredentialToken:   q.Get("token"),
			ResourceBackend:   q.Get("resourceBackend"),
			CredentialBackend: q.Get("credentialBackend"),
		},
		Path: q.Get("path"),
	}, nil
}

// GetResourceMetadata — GET /api/v1/resources/{id}/metadata?kind=file|directory.
func (h *Handler) GetResourceMetadata(w http.ResponseWriter, r *http.Request) {
	q, err := metadataQuery(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	auth := middleware.AuthToken(r)

	switch kind := strings.ToLower(r.URL.Query().Get("kind")); kind {
	case "", "file":
		md, err := h.metadata.FileMetadata(r.Context(), auth, q)
		if err != nil {
			h.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, md)
	case "directory":
		md, err := h.metadata.DirectoryMetadata(r.Context(), auth, q)
		if err != nil {
			h.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, md)
	default:
		apierrors.ValidationError(w, fmt.Sprintf("некорректный kind %q: ожидается file или directory", kind))
	}
}

type availabilityResponse struct {
	ResourceID string `json:"resourceId"`
	Path       string `json:"path,omitempty"`
	Available  bool   `json:"available"`
}

// GetResourceAvailability — GET /api/v1/resources/{id}/availability.
func (h *Handler) GetResourceAvailability(w http.ResponseWriter, r *http.Request) {
	q, err := metadataQuery(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	ok, err := h.metadata.Available(r.Context(), middleware.AuthToken(r), q)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, availabilityResponse{ResourceID: q.Ref.ResourceID, Path: q.Path, Available: ok})
}
