// Package api provides HTTP handlers for the experiment API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ashureev/causal-labs/internal/document"
	"github.com/ashureev/causal-labs/internal/domain"
	"github.com/ashureev/causal-labs/internal/experiment"
)

const defaultMaxRequestBodySize = 1 << 20

var validate = validator.New()

// RunHistory lists archived runs.
type RunHistory interface {
	ListRuns(ctx context.Context, chatID string, limit int) ([]*domain.RunRecord, error)
}

// Options tunes the HTTP surface.
type Options struct {
	MaxRequestBodySize int64
	KeepaliveInterval  time.Duration
	RetryDelay         time.Duration
	RateLimitRequests  int
	RateLimitWindow    time.Duration
	AllowedOrigin      string
	IsDev              bool
}

// Handler serves the experiment API.
type Handler struct {
	sessions  *experiment.Sessions
	backend   experiment.Backend
	documents *document.Service
	runs      RunHistory
	limits    *approvalLimits
	opts      Options
	logger    *slog.Logger
}

// NewHandler creates a new Handler. runs may be nil.
func NewHandler(
	sessions *experiment.Sessions,
	backend experiment.Backend,
	documents *document.Service,
	runs RunHistory,
	opts Options,
	logger *slog.Logger,
) (*Handler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxRequestBodySize <= 0 {
		opts.MaxRequestBodySize = defaultMaxRequestBodySize
	}
	if opts.KeepaliveInterval <= 0 {
		opts.KeepaliveInterval = 10 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 5 * time.Second
	}
	if opts.RateLimitRequests <= 0 {
		opts.RateLimitRequests = 10
	}
	if opts.RateLimitWindow <= 0 {
		opts.RateLimitWindow = time.Minute
	}
	limits, err := newApprovalLimits(opts.RateLimitRequests, opts.RateLimitWindow)
	if err != nil {
		return nil, err
	}
	return &Handler{
		sessions:  sessions,
		backend:   backend,
		documents: documents,
		runs:      runs,
		limits:    limits,
		opts:      opts,
		logger:    logger,
	}, nil
}

// RegisterRoutes mounts every route on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/directives/extract", h.HandleExtract)
	r.Post("/api/run-experiment", h.HandleRunProxy)

	r.Route("/api/experiments/{chatId}", func(r chi.Router) {
		r.Get("/", h.HandleResultsProxy)
		r.Post("/runs", h.HandleApprove)
		r.Delete("/runs", h.HandleCancel)
		r.Get("/runs", h.HandleRunHistory)
		r.Get("/state", h.HandleState)
		r.Delete("/state", h.HandleReset)
		r.Get("/events", h.HandleEvents)
	})
	r.Get("/api/results/{chatId}", h.HandleResultsView)
	r.Get("/ws/experiments/{chatId}", h.HandleWebSocket)

	r.Route("/api/documents", func(r chi.Router) {
		r.Post("/", h.HandleCreateDocument)
		r.Get("/{id}", h.HandleGetDocument)
		r.Patch("/{id}", h.HandleUpdateDocument)
		r.Get("/{id}/stream", h.HandleDocumentStream)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decodeBody reads a size-limited JSON body into v and validates it.
// It writes the error response itself and reports whether to continue.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}

	if err := validate.Struct(v); err != nil {
		Error(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request body"
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return "invalid request: " + strings.Join(fields, "; ")
}

// backendError maps a backend failure to a response.
func (h *Handler) backendError(w http.ResponseWriter, err error, what string) {
	var terr *experiment.TransportError
	if errors.As(err, &terr) && terr.StatusCode == http.StatusNotFound {
		Error(w, http.StatusNotFound, what+" not found")
		return
	}
	h.logger.Warn("Backend request failed", "what", what, "error", err)
	Error(w, http.StatusBadGateway, "failed to reach analysis backend")
}
