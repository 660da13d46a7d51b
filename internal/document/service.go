package document

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/causal-labs/internal/domain"
)

// Repository persists documents.
type Repository interface {
	CreateDocument(ctx context.Context, doc *domain.Document) error
	GetDocument(ctx context.Context, id string) (*domain.Document, error)
	UpdateDocumentContent(ctx context.Context, id, content string, updatedAt time.Time) error
}

// Service runs the handler against a repository. Writes to the same
// document are serialized so load, merge and save never interleave.
type Service struct {
	repo    Repository
	handler *Handler
	streams *Streams
	logger  *slog.Logger
	now     func() time.Time

	locksMu sync.Mutex
	locks   map[string]*docLock
}

// docLock is held in locks only while some caller holds or waits on it.
type docLock struct {
	mu   sync.Mutex
	refs int
}

// NewService wires a document service.
func NewService(repo Repository, handler *Handler, streams *Streams, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if handler == nil {
		handler = NewHandler(nil, logger)
	}
	if streams == nil {
		streams = NewStreams(0, 0)
	}
	return &Service{
		repo:    repo,
		handler: handler,
		streams: streams,
		logger:  logger,
		now:     time.Now,
		locks:   make(map[string]*docLock),
	}
}

func (s *Service) lock(id string) func() {
	s.locksMu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &docLock{}
		s.locks[id] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.locksMu.Unlock()
	}
}

// Create stores a fresh experiment dashboard for userID.
func (s *Service) Create(ctx context.Context, userID, title string) (*domain.Document, error) {
	id := uuid.NewString()
	unlock := s.lock(id)
	defer unlock()

	content, err := Encode(s.handler.Create(title, s.streams.For(id)))
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	now := s.now().UTC()
	doc := &domain.Document{
		ID:        id,
		UserID:    userID,
		Title:     title,
		Kind:      domain.DocumentKindExperiment,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	s.logger.Info("[DOCUMENT] Created experiment dashboard", "document_id", id, "user_id", userID)
	return doc, nil
}

// Update merges description into the stored document.
func (s *Service) Update(ctx context.Context, id, description string) (*domain.Document, error) {
	unlock := s.lock(id)
	defer unlock()

	doc, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}

	content, err := Encode(s.handler.Update(doc.Content, description, s.streams.For(id)))
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	updatedAt := s.now().UTC()
	if err := s.repo.UpdateDocumentContent(ctx, id, content, updatedAt); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}

	doc.Content = content
	doc.UpdatedAt = updatedAt
	s.logger.Debug("[DOCUMENT] Updated experiment dashboard", "document_id", id, "fragment_len", len(description))
	return doc, nil
}

// Get returns a stored document.
func (s *Service) Get(ctx context.Context, id string) (*domain.Document, error) {
	return s.repo.GetDocument(ctx, id)
}

// Deltas returns the retained data-stream entries for a document.
func (s *Service) Deltas(id string) []Delta {
	rs, ok := s.streams.Lookup(id)
	if !ok {
		return []Delta{}
	}
	return rs.Deltas()
}
