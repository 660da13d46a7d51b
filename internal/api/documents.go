package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/causal-labs/internal/identity"
	"github.com/ashureev/causal-labs/internal/store"
)

type createDocumentRequest struct {
	Title string `json:"title" validate:"required,max=256"`
}

type updateDocumentRequest struct {
	Description string `json:"description" validate:"max=1048576"`
}

// HandleCreateDocument creates an experiment dashboard for the caller.
func (h *Handler) HandleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	userID := identity.UserIDFromContext(r.Context())
	doc, err := h.documents.Create(r.Context(), userID, req.Title)
	if err != nil {
		h.logger.Error("[API] Failed to create document", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to create document")
		return
	}
	JSON(w, http.StatusCreated, doc)
}

// HandleGetDocument returns the stored snapshot.
func (h *Handler) HandleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := h.documents.Get(r.Context(), id)
	if err != nil {
		h.documentError(w, err, id)
		return
	}
	JSON(w, http.StatusOK, doc)
}

// HandleUpdateDocument merges a description into the stored snapshot.
func (h *Handler) HandleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req updateDocumentRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	doc, err := h.documents.Update(r.Context(), id, req.Description)
	if err != nil {
		h.documentError(w, err, id)
		return
	}
	JSON(w, http.StatusOK, doc)
}

// HandleDocumentStream returns the retained data-stream deltas.
func (h *Handler) HandleDocumentStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	JSON(w, http.StatusOK, h.documents.Deltas(id))
}

func (h *Handler) documentError(w http.ResponseWriter, err error, id string) {
	if errors.Is(err, store.ErrNotFound) {
		Error(w, http.StatusNotFound, "document not found")
		return
	}
	h.logger.Error("[API] Document operation failed", "document_id", id, "error", err)
	Error(w, http.StatusInternalServerError, "document operation failed")
}
