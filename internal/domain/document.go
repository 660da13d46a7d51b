package domain

import (
	"time"
)

// DocumentKindExperiment is the only document kind this service writes.
const DocumentKindExperiment = "experiment"

// Document is a persisted dashboard document. Content is the JSON snapshot.
type Document struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RunRecord is the archived outcome of one experiment run.
type RunRecord struct {
	RunID       string     `json:"runId"`
	ChatID      string     `json:"chatId"`
	MessageID   string     `json:"messageId"`
	Phase       string     `json:"phase"`
	Progress    float64    `json:"progress"`
	CurrentStep string     `json:"currentStep"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"startedAt"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
}

// Finished returns true once the run reached a terminal phase.
func (r *RunRecord) Finished() bool {
	return r.FinishedAt != nil
}
