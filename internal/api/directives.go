package api

import (
	"net/http"

	"github.com/ashureev/causal-labs/internal/directive"
)

type extractRequest struct {
	Text string `json:"text" validate:"max=262144"`
}

// HandleExtract splits assistant text into prose and an optional directive.
func (h *Handler) HandleExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	JSON(w, http.StatusOK, directive.Extract(req.Text))
}
