// Package experiment owns the client-visible lifecycle of one analysis run
// and folds interpreted stream events into it.
package experiment

import (
	"errors"
	"fmt"
	"time"
)

// Phase is the lifecycle position of a run.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseRunning   Phase = "running"
	PhaseCompleted Phase = "completed"
	PhaseAborted   Phase = "aborted"
)

// Terminal reports whether p ends a run.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseAborted
}

// StartingStep is the step label shown before the first progress event.
const StartingStep = "Starting..."

// State is a snapshot of one conversation's experiment.
type State struct {
	Phase       Phase      `json:"phase"`
	RunID       string     `json:"runId,omitempty"`
	Progress    float64    `json:"progress"`
	CurrentStep string     `json:"currentStep"`
	ChatID      string     `json:"chatId,omitempty"`
	MessageID   string     `json:"messageId,omitempty"`
	Error       *string    `json:"error"`
	ResultsPath string     `json:"resultsPath,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
}

// ResultsPath is where a completed chat's results view lives.
func ResultsPath(chatID string) string {
	return "/results/" + chatID
}

var (
	// ErrRunInProgress rejects an approval while the chat already has a live run.
	ErrRunInProgress = errors.New("experiment already running")
	// ErrNoSession is returned for chats that never started a run.
	ErrNoSession = errors.New("no experiment session")
	// ErrStreamEnded means the transport closed before the terminal frame.
	ErrStreamEnded = errors.New("stream ended before completion")
	// ErrCancelled means the run was stopped by its owner.
	ErrCancelled = errors.New("experiment cancelled")
)

// TransportError is a failure of the backend call itself: a non-success
// status or a broken connection.
type TransportError struct {
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend transport failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
