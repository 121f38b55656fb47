package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/mft/internal/api/errors"
	"github.com/bigkaa/mft/internal/domain/model"
)

type submitResponse struct {
	TransferID string `json:"transferId"`
}

// SubmitTransfer — POST /api/v1/transfers. Запрос кладётся в координационное
// хранилище; передача появляется в журнале после обработки приёмом.
func (h *Handler) SubmitTransfer(w http.ResponseWriter, r *http.Request) {
	var req model.TransferRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	id, err := h.transfers.Submit(r.Context(), &req)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{TransferID: id})
}

// GetTransfer — GET /api/v1/transfers/{id}.
func (h *Handler) GetTransfer(w http.ResponseWriter, r *http.Request) {
	t, err := h.transfers.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type statesResponse struct {
	TransferID string                  `json:"transferId"`
	States     []*model.TransferStatus `json:"states"`
}

// ListTransferStates — GET /api/v1/transfers/{id}/states, история в порядке поступления.
func (h *Handler) ListTransferStates(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	states, err := h.transfers.States(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	if states == nil {
		states = []*model.TransferStatus{}
	}
	writeJSON(w, http.StatusOK, statesResponse{TransferID: id, States: states})
}

// GetLatestTransferState — GET /api/v1/transfers/{id}/state.
func (h *Handler) GetLatestTransferState(w http.ResponseWriter, r *http.Request) {
	st, err := h.transfers.LatestState(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
