package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/didact-dev/didact/pkg/embeddings"
)

// indexEntry is one embedded concept held by MemoryIndex.
type indexEntry struct {
	title      string
	definition string
	difficulty string
	vector     []float32
}

// MemoryIndex is an in-memory implementation of ConceptIndex. Concepts are
// embedded through the injected client and ranked by cosine similarity.
// Thread-safe; nothing is persisted across restarts.
type MemoryIndex struct {
	embedder embeddings.EmbeddingClient
	mu       sync.RWMutex
	entries  map[string]indexEntry
}

// NewMemoryIndex creates an empty in-memory concept index.
func NewMemoryIndex(embedder embeddings.EmbeddingClient) *MemoryIndex {
	return &MemoryIndex{
		embedder: embedder,
		entries:  make(map[string]indexEntry),
	}
}

// Index embeds and upserts the given concepts, keyed by VectorID of the
// title so re-indexing replaces entries in place.
func (m *MemoryIndex) Index(ctx context.Context, concepts []Concept) error {
	if len(concepts) == 0 {
		return nil
	}

	texts := make([]string, len(concepts))
	for i, c := range concepts {
		texts[i] = EmbeddingText(c)
	}
	vectors, err := m.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed concepts: %w", err)
	}
	if len(vectors) != len(concepts) {
		return fmt.Errorf("embedding count mismatch: %d texts, %d vectors", len(concepts), len(vectors))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range concepts {
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		m.entries[VectorID(c.Title)] = indexEntry{
			title:      c.Title,
			definition: MetadataDefinition(c.Definition),
			difficulty: NormalizeDifficulty(c.Difficulty),
			vector:     vec,
		}
	}
	return nil
}

// Search embeds the query and ranks stored concepts by cosine similarity,
// excluding entries below minScore and truncating to topK. Ties order by
// title so results stay deterministic.
func (m *MemoryIndex) Search(ctx context.Context, query string, topK int, minScore float64) ([]ConceptMatch, error) {
	queryVec, err := m.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]ConceptMatch, 0, len(m.entries))
	for _, entry := range m.entries {
		score := CosineSimilarity(queryVec, entry.vector)
		if score < minScore {
			continue
		}
		matches = append(matches, ConceptMatch{
			Title:      entry.title,
			Definition: entry.definition,
			Difficulty: entry.difficulty,
			Score:      score,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Title < matches[j].Title
	})

	if topK >= 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Reset drops all indexed entries.
func (m *MemoryIndex) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]indexEntry)
	return nil
}

// Count returns the number of indexed concepts.
func (m *MemoryIndex) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close is a no-op for the in-memory index.
func (m *MemoryIndex) Close() error {
	return nil
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns a value between -1 and 1; for normalized embeddings the result is
// typically between 0 and 1. Mismatched or empty vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := 0; i < len(a); i++ {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Compile-time interface check
var _ ConceptIndex = (*MemoryIndex)(nil)
