package document

import (
	"fmt"
	"log/slog"
)

// Handler implements the create and update entry points of the experiment
// document kind. It only computes snapshots; persistence is the caller's.
type Handler struct {
	steps  []string
	logger *slog.Logger
}

// NewHandler creates a handler whose documents start with steps
// (DefaultSteps when empty).
func NewHandler(steps []string, logger *slog.Logger) *Handler {
	if len(steps) == 0 {
		steps = DefaultSteps
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{steps: append([]string(nil), steps...), logger: logger}
}

// Steps returns the configured step list.
func (h *Handler) Steps() []string {
	return append([]string(nil), h.steps...)
}

// Create returns the initial snapshot for a new dashboard. It ignores any
// prior state.
func (h *Handler) Create(title string, ds DataStream) map[string]any {
	snapshot := NewSnapshot(h.steps)
	if ds != nil {
		ds.Write(NewTextDelta(fmt.Sprintf("\nCreated experiment dashboard: %s\n", title)))
	}
	return snapshot
}

// Update merges description onto the stored content. Unreadable stored
// content is treated as empty; a description that is not a JSON object
// becomes the results text.
func (h *Handler) Update(prevContent, description string, ds DataStream) map[string]any {
	prev, ok := ParseSnapshot(prevContent)
	if !ok {
		h.logger.Warn("[DOCUMENT] Stored content is not a JSON object, starting from empty",
			"content_len", len(prevContent))
	}

	next := Merge(prev, ParseFragment(description))
	if ds != nil {
		ds.Write(NewTextDelta(fmt.Sprintf("\nUpdated experiment dashboard with: %s\n", description)))
	}
	return next
}
