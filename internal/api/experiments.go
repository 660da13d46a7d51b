package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/causal-labs/internal/domain"
	"github.com/ashureev/causal-labs/internal/experiment"
	"github.com/ashureev/causal-labs/internal/report"
)

const maxChatIDLength = 128

type approveRequest struct {
	MessageID   string               `json:"messageId" validate:"required,max=128"`
	ChatHistory []domain.ChatMessage `json:"chatHistory,omitempty" validate:"max=500,dive"`
}

func chatIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	chatID := chi.URLParam(r, "chatId")
	if chatID == "" || len(chatID) > maxChatIDLength {
		Error(w, http.StatusBadRequest, "invalid chat id")
		return "", false
	}
	return chatID, true
}

// HandleApprove starts a server-side run for the chat. The body is
// validated and a live run rejected before the caller is charged a token.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}

	var req approveRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	if m, found := h.sessions.Lookup(chatID); found {
		if st := m.State(); st.Phase == experiment.PhaseRunning {
			h.conflict(w, st)
			return
		}
	}

	key, allowed := h.limits.allow(r)
	if !allowed {
		h.logger.Warn("[API] Approval rate limited", "chat_id", chatID, "key", key)
		Error(w, http.StatusTooManyRequests, "too many experiment runs, try again later")
		return
	}

	state, err := h.sessions.Approve(r.Context(), experiment.RunRequest{
		ChatID:      chatID,
		MessageID:   req.MessageID,
		ChatHistory: req.ChatHistory,
	})
	if errors.Is(err, experiment.ErrRunInProgress) {
		h.conflict(w, state)
		return
	}
	if err != nil {
		h.logger.Error("[API] Failed to start experiment", "chat_id", chatID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to start experiment")
		return
	}

	h.logger.Info("[API] Experiment approved", "chat_id", chatID, "message_id", req.MessageID, "run_id", state.RunID)
	JSON(w, http.StatusAccepted, state)
}

func (h *Handler) conflict(w http.ResponseWriter, state experiment.State) {
	JSON(w, http.StatusConflict, map[string]any{
		"error": experiment.ErrRunInProgress.Error(),
		"state": state,
	})
}

// HandleCancel aborts the chat's live run.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}
	state, err := h.sessions.Cancel(chatID)
	if errors.Is(err, experiment.ErrNoSession) {
		Error(w, http.StatusNotFound, "no experiment for chat")
		return
	}
	JSON(w, http.StatusOK, state)
}

// HandleState returns the chat's current state, idle when unknown.
func (h *Handler) HandleState(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}
	m, found := h.sessions.Lookup(chatID)
	if !found {
		JSON(w, http.StatusOK, experiment.State{Phase: experiment.PhaseIdle})
		return
	}
	JSON(w, http.StatusOK, m.State())
}

// HandleReset returns the chat to idle, cancelling any live run.
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}
	h.sessions.Reset(chatID)
	w.WriteHeader(http.StatusNoContent)
}

// HandleRunHistory lists archived runs for the chat, newest first.
func (h *Handler) HandleRunHistory(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}
	if h.runs == nil {
		JSON(w, http.StatusOK, []*domain.RunRecord{})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			Error(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	runs, err := h.runs.ListRuns(r.Context(), chatID, limit)
	if err != nil {
		h.logger.Error("[API] Failed to list runs", "chat_id", chatID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []*domain.RunRecord{}
	}
	JSON(w, http.StatusOK, runs)
}

type runProxyRequest struct {
	ChatID      string               `json:"chatId" validate:"required,max=128"`
	MessageID   string               `json:"messageId" validate:"required,max=128"`
	ChatHistory []domain.ChatMessage `json:"chatHistory,omitempty" validate:"max=500,dive"`
}

// HandleRunProxy forwards a run request to the backend and relays its
// event stream unchanged. No server-side state is kept.
func (h *Handler) HandleRunProxy(w http.ResponseWriter, r *http.Request) {
	var req runProxyRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	body, err := h.backend.RunExperiment(r.Context(), experiment.RunRequest(req))
	if err != nil {
		h.logger.Warn("[API] Run proxy failed", "chat_id", req.ChatID, "error", err)
		Error(w, http.StatusBadGateway, "Failed to run experiment")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	buf := make([]byte, 4096)
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				h.logger.Debug("[API] Run proxy client gone", "chat_id", req.ChatID, "error", werr)
				return
			}
			flusher.Flush()
		}
		if rerr != nil {
			if !errors.Is(rerr, io.EOF) {
				h.logger.Warn("[API] Run proxy stream error", "chat_id", req.ChatID, "error", rerr)
			}
			return
		}
	}
}

// HandleResultsProxy returns the backend's results JSON for the chat.
func (h *Handler) HandleResultsProxy(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}
	raw, err := h.backend.Results(r.Context(), chatID)
	if err != nil {
		h.backendError(w, err, "experiment results")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// HandleResultsView classifies the chat's results and renders every chart.
// An optional slider query value selects the parametric group.
func (h *Handler) HandleResultsView(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}

	var slider *float64
	if raw := r.URL.Query().Get("slider"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			Error(w, http.StatusBadRequest, "slider must be a number")
			return
		}
		slider = &v
	}

	raw, err := h.backend.Results(r.Context(), chatID)
	if err != nil {
		h.backendError(w, err, "experiment results")
		return
	}

	results := report.ParseExperiment(raw)
	JSON(w, http.StatusOK, report.BuildView(chatID, results, slider))
}
