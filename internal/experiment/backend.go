package experiment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/ashureev/causal-labs/internal/domain"
)

// RunRequest is the approval payload forwarded to the analysis backend.
type RunRequest struct {
	ChatID      string               `json:"chatId" validate:"required,max=128"`
	MessageID   string               `json:"messageId" validate:"required,max=128"`
	ChatHistory []domain.ChatMessage `json:"chatHistory,omitempty" validate:"max=500,dive"`
}

// Backend is the analysis service that runs experiments.
type Backend interface {
	// RunExperiment starts a run and returns its event-stream body.
	// A non-success response is a *TransportError.
	RunExperiment(ctx context.Context, req RunRequest) (io.ReadCloser, error)

	// Results returns the stored results object for a chat.
	Results(ctx context.Context, chatID string) (json.RawMessage, error)
}

// HTTPBackend talks to the backend over HTTP. It does not retry; a failed
// call surfaces as a TransportError.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPBackend creates a backend client. A nil client uses a client
// without a timeout, since runs stream for minutes.
func NewHTTPBackend(baseURL string, client *http.Client, logger *slog.Logger) *HTTPBackend {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger,
	}
}

// RunExperiment posts the approval to /run-experiment.
func (b *HTTPBackend) RunExperiment(ctx context.Context, req RunRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode run request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/run-experiment", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build run request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b.discard(resp)
		return nil, &TransportError{StatusCode: resp.StatusCode}
	}

	b.logger.Info("[BACKEND] Run stream opened", "chat_id", req.ChatID, "message_id", req.MessageID)
	return resp.Body, nil
}

// Results fetches /experiments/{chatId}.
func (b *HTTPBackend) Results(ctx context.Context, chatID string) (json.RawMessage, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/experiments/"+url.PathEscape(chatID), nil)
	if err != nil {
		return nil, fmt.Errorf("build results request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer b.discard(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{StatusCode: resp.StatusCode}
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	return raw, nil
}

func (b *HTTPBackend) discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if err := resp.Body.Close(); err != nil {
		b.logger.Debug("[BACKEND] Failed to close response body", "error", err)
	}
}

var _ Backend = (*HTTPBackend)(nil)
