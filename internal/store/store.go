// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/causal-labs/internal/domain"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Repository persists experiment documents and run history.
type Repository interface {
	// CreateDocument inserts a new document.
	CreateDocument(ctx context.Context, doc *domain.Document) error

	// GetDocument retrieves a document by id, or ErrNotFound.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// UpdateDocumentContent replaces a document's content, or returns ErrNotFound.
	UpdateDocumentContent(ctx context.Context, id, content string, updatedAt time.Time) error

	// RecordRun creates or updates a run record keyed by run id.
	RecordRun(ctx context.Context, rec *domain.RunRecord) error

	// ListRuns returns a chat's runs, newest first.
	ListRuns(ctx context.Context, chatID string, limit int) ([]*domain.RunRecord, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
