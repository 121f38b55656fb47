package handlers

import (
	"net/http"

	"github.com/bigkaa/mft/internal/agent"
)

type agentsResponse struct {
	Agents []agent.Info `json:"agents"`
}

// ListAgents — GET /api/v1/agents, живые агенты по ключам живости.
func (h *Handler) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.agents.ListAgents(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	if agents == nil {
		agents = []agent.Info{}
	}
	writeJSON(w, http.StatusOK, agentsResponse{Agents: agents})
}
