package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/mft/internal/api/errors"
	"github.com/bigkaa/mft/internal/domain/model"
)

// CreateStorage — POST /api/v1/storages.
func (h *Handler) CreateStorage(w http.ResponseWriter, r *http.Request) {
	var st model.Storage
	if err := decodeJSON(w, r, &st); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	created, err := h.registry.CreateStorage(r.Context(), &st)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GetStorage — GET /api/v1/storages/{id}.
func (h *Handler) GetStorage(w http.ResponseWriter, r *http.Request) {
	st, err := h.registry.GetStorage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// DeleteStorage — DELETE /api/v1/storages/{id}, вместе с ресурсами хранилища.
func (h *Handler) DeleteStorage(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.DeleteStorage(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// createResourceRequest — тело POST /api/v1/resources.
type createResourceRequest struct {
	ResourceID string `json:"resourceId"`
	StorageID  string `json:"storageId"`
	Kind       string `json:"kind"`
	Path       string `json:"path"`
}

// CreateResource — POST /api/v1/resources.
func (h *Handler) CreateResource(w http.ResponseWriter, r *http.Request) {
	var req createResourceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	created, err := h.registry.CreateResource(r.Context(), &model.Resource{
		ID:      req.ResourceID,
		Storage: model.Storage{ID: req.StorageID},
		Kind:    model.ParseResourceKind(req.Kind),
		Path:    req.Path,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GetResource — GET /api/v1/resources/{id}.
func (h *Handler) GetResource(w http.ResponseWriter, r *http.Request) {
	res, err := h.registry.GetResource(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// DeleteResource — DELETE /api/v1/resources/{id}.
func (h *Handler) DeleteResource(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.DeleteResource(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
