package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/causal-labs/internal/domain"
	"github.com/ashureev/causal-labs/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db    *sql.DB
	retry shared.RetryPolicy
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL lets the results view read while a run is being recorded.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db, retry: shared.DefaultRetryPolicy}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		kind TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_user ON documents(user_id, updated_at);

	CREATE TABLE IF NOT EXISTS experiment_runs (
		run_id TEXT PRIMARY KEY,
		chat_id TEXT NOT NULL,
		message_id TEXT NOT NULL,
		phase TEXT NOT NULL,
		progress REAL NOT NULL DEFAULT 0,
		current_step TEXT NOT NULL DEFAULT '',
		error TEXT,
		started_at INTEGER NOT NULL,
		finished_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_experiment_runs_chat ON experiment_runs(chat_id, started_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// CreateDocument inserts a new document.
func (s *SQLiteStore) CreateDocument(ctx context.Context, doc *domain.Document) error {
	query := `
	INSERT INTO documents (id, user_id, title, kind, content, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	err := shared.RetryOnConflict(ctx, s.retry, "create document", func() error {
		_, err := s.db.ExecContext(ctx, query,
			doc.ID, doc.UserID, doc.Title, doc.Kind, doc.Content,
			doc.CreatedAt.UnixMilli(), doc.UpdatedAt.UnixMilli(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by id.
func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	query := `
		SELECT id, user_id, title, kind, content, created_at, updated_at
		FROM documents WHERE id = ?`

	var doc domain.Document
	var createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&doc.ID, &doc.UserID, &doc.Title, &doc.Kind, &doc.Content,
		&createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan document row: %w", err)
	}

	doc.CreatedAt = time.UnixMilli(createdAt).UTC()
	doc.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &doc, nil
}

// UpdateDocumentContent replaces a document's content.
func (s *SQLiteStore) UpdateDocumentContent(ctx context.Context, id, content string, updatedAt time.Time) error {
	query := `UPDATE documents SET content = ?, updated_at = ? WHERE id = ?`

	var rows int64
	err := shared.RetryOnConflict(ctx, s.retry, "update document", func() error {
		result, err := s.db.ExecContext(ctx, query, content, updatedAt.UnixMilli(), id)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("update document content: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordRun creates or updates a run record.
func (s *SQLiteStore) RecordRun(ctx context.Context, rec *domain.RunRecord) error {
	query := `
	INSERT INTO experiment_runs (
		run_id, chat_id, message_id, phase, progress, current_step, error, started_at, finished_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id) DO UPDATE SET
		phase = excluded.phase,
		progress = excluded.progress,
		current_step = excluded.current_step,
		error = excluded.error,
		finished_at = COALESCE(excluded.finished_at, experiment_runs.finished_at)`

	var runErr, finishedAt any
	if rec.Error != "" {
		runErr = rec.Error
	}
	if rec.FinishedAt != nil {
		finishedAt = rec.FinishedAt.UnixMilli()
	}

	err := shared.RetryOnConflict(ctx, s.retry, "record run", func() error {
		_, err := s.db.ExecContext(ctx, query,
			rec.RunID, rec.ChatID, rec.MessageID, rec.Phase, rec.Progress,
			rec.CurrentStep, runErr, rec.StartedAt.UnixMilli(), finishedAt,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

// ListRuns returns a chat's runs, newest first. limit <= 0 means 50.
func (s *SQLiteStore) ListRuns(ctx context.Context, chatID string, limit int) ([]*domain.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT run_id, chat_id, message_id, phase, progress, current_step,
		       error, started_at, finished_at
		FROM experiment_runs WHERE chat_id = ?
		ORDER BY started_at DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close run rows", "error", closeErr)
		}
	}()

	runs := []*domain.RunRecord{}
	for rows.Next() {
		var rec domain.RunRecord
		var runErr sql.NullString
		var startedAt int64
		var finishedAt sql.NullInt64

		if err := rows.Scan(
			&rec.RunID, &rec.ChatID, &rec.MessageID, &rec.Phase, &rec.Progress,
			&rec.CurrentStep, &runErr, &startedAt, &finishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}

		rec.Error = runErr.String
		rec.StartedAt = time.UnixMilli(startedAt).UTC()
		if finishedAt.Valid {
			ts := time.UnixMilli(finishedAt.Int64).UTC()
			rec.FinishedAt = &ts
		}
		runs = append(runs, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

var _ Repository = (*SQLiteStore)(nil)
