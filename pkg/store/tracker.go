package store

import (
	"context"
	"fmt"
	"sync"
)

// DocumentTracker provides operations for tracking processed documents.
// Separate from ConceptGraph to maintain interface cohesion.
// This enables document-level deduplication in incremental ingestion.
type DocumentTracker interface {
	// IsDocumentProcessed checks if a document with the given hash has been processed.
	// hash: SHA-256 hash of the document text (content-based identity)
	// Returns true if the document has been processed, false otherwise.
	IsDocumentProcessed(ctx context.Context, hash string) (bool, error)

	// MarkDocumentProcessed records that a document has been successfully processed.
	// hash: SHA-256 hash of document text (content-based identity)
	// source: Optional source identifier (metadata only, does not affect identity)
	// chunkCount: Number of chunks generated from this document
	// Uses INSERT OR REPLACE to support upsert semantics.
	MarkDocumentProcessed(ctx context.Context, hash, source string, chunkCount int) error

	// GetProcessedDocumentCount returns the total number of processed documents tracked.
	GetProcessedDocumentCount(ctx context.Context) (int64, error)

	// ClearProcessedDocuments removes all document tracking records.
	// This does NOT delete concepts or relations - only clears the tracking
	// table. Useful for forcing a full reprocess without losing the graph.
	ClearProcessedDocuments(ctx context.Context) error
}

// Compile-time interface check
var _ DocumentTracker = (*SQLiteGraph)(nil)

// IsDocumentProcessed checks if a document with the given hash has been processed.
func (s *SQLiteGraph) IsDocumentProcessed(ctx context.Context, hash string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM processed_documents WHERE hash = ?", hash).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check document processed status: %w", err)
	}
	return count > 0, nil
}

// MarkDocumentProcessed records that a document has been successfully processed.
func (s *SQLiteGraph) MarkDocumentProcessed(ctx context.Context, hash, source string, chunkCount int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO processed_documents (hash, source, processed_at, chunk_count)
		 VALUES (?, ?, CURRENT_TIMESTAMP, ?)`,
		hash, source, chunkCount)
	if err != nil {
		return fmt.Errorf("failed to mark document as processed: %w", err)
	}
	return nil
}

// GetProcessedDocumentCount returns the total number of processed documents tracked.
func (s *SQLiteGraph) GetProcessedDocumentCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM processed_documents").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get processed document count: %w", err)
	}
	return count, nil
}

// ClearProcessedDocuments removes all document tracking records without affecting the knowledge graph.
func (s *SQLiteGraph) ClearProcessedDocuments(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM processed_documents")
	if err != nil {
		return fmt.Errorf("failed to clear processed documents: %w", err)
	}
	return nil
}

// MemoryTracker is an in-memory DocumentTracker for graphs that are not
// backed by SQLite.
type MemoryTracker struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

// NewMemoryTracker creates an empty in-memory document tracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{seen: make(map[string]struct{})}
}

// IsDocumentProcessed checks if a document with the given hash has been processed.
func (t *MemoryTracker) IsDocumentProcessed(ctx context.Context, hash string) (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.seen[hash]
	return ok, nil
}

// MarkDocumentProcessed records that a document has been successfully processed.
func (t *MemoryTracker) MarkDocumentProcessed(ctx context.Context, hash, source string, chunkCount int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen[hash] = struct{}{}
	return nil
}

// GetProcessedDocumentCount returns the total number of processed documents tracked.
func (t *MemoryTracker) GetProcessedDocumentCount(ctx context.Context) (int64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return int64(len(t.seen)), nil
}

// ClearProcessedDocuments removes all document tracking records.
func (t *MemoryTracker) ClearProcessedDocuments(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen = make(map[string]struct{})
	return nil
}

// Compile-time interface check
var _ DocumentTracker = (*MemoryTracker)(nil)
