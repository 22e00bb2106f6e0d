package store

import (
	"context"
	"fmt"
	"sync"

	chromatypes "github.com/amikos-tech/chroma-go/types"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
	"github.com/tmc/langchaingo/vectorstores/chroma"

	"github.com/didact-dev/didact/pkg/embeddings"
)

// defaultChromaCollection names the collection used when none is configured.
const defaultChromaCollection = "concepts"

// ChromaConfig configures the Chroma-backed concept index.
type ChromaConfig struct {
	// URL is the base URL of the Chroma server, e.g. "http://localhost:8000".
	URL string

	// Collection names the Chroma collection holding concept vectors.
	// Defaults to "concepts".
	Collection string
}

// ChromaIndex implements ConceptIndex against a Chroma server. Vectors are
// computed through the injected embedding client and compared by cosine
// distance, so scores match the in-memory index. Chroma assigns its own
// vector identifiers, which means Index appends; a rebuild is Reset
// followed by Index batches.
type ChromaIndex struct {
	opts []chroma.Option

	mu    sync.RWMutex
	store chroma.Store
}

// NewChromaIndex connects to the Chroma server at cfg.URL and opens or
// creates the configured collection.
func NewChromaIndex(cfg ChromaConfig, client embeddings.EmbeddingClient) (*ChromaIndex, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("chroma URL cannot be empty")
	}
	collection := cfg.Collection
	if collection == "" {
		collection = defaultChromaCollection
	}

	embedder, err := embeddings.AsEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap embedding client: %w", err)
	}

	opts := []chroma.Option{
		chroma.WithChromaURL(cfg.URL),
		chroma.WithNameSpace(collection),
		chroma.WithEmbedder(embedder),
		chroma.WithDistanceFunction(chromatypes.COSINE),
	}
	st, err := chroma.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open chroma collection %q at %s: %w", collection, cfg.URL, err)
	}

	return &ChromaIndex{opts: opts, store: st}, nil
}

// Index embeds the given concepts and adds them to the collection. Concepts
// with an empty title are skipped.
func (c *ChromaIndex) Index(ctx context.Context, concepts []Concept) error {
	docs := make([]schema.Document, 0, len(concepts))
	for _, concept := range concepts {
		if concept.Title == "" {
			continue
		}
		docs = append(docs, schema.Document{
			PageContent: EmbeddingText(concept),
			Metadata: map[string]any{
				"title":         concept.Title,
				"definition":    MetadataDefinition(concept.Definition),
				"difficulty":    NormalizeDifficulty(concept.Difficulty),
				"mention_count": concept.MentionCount,
			},
		})
	}
	if len(docs) == 0 {
		return nil
	}

	if _, err := c.current().AddDocuments(ctx, docs); err != nil {
		return fmt.Errorf("failed to add concepts to chroma: %w", err)
	}
	return nil
}

// Search embeds the query and returns the closest concepts by cosine
// similarity, excluding entries below minScore and truncating to topK.
func (c *ChromaIndex) Search(ctx context.Context, query string, topK int, minScore float64) ([]ConceptMatch, error) {
	if topK <= 0 {
		return []ConceptMatch{}, nil
	}

	var opts []vectorstores.Option
	if minScore > 0 {
		opts = append(opts, vectorstores.WithScoreThreshold(float32(minScore)))
	}
	docs, err := c.current().SimilaritySearch(ctx, query, topK, opts...)
	if err != nil {
		return nil, fmt.Errorf("chroma similarity search failed: %w", err)
	}

	matches := make([]ConceptMatch, 0, len(docs))
	for _, doc := range docs {
		title, _ := doc.Metadata["title"].(string)
		if title == "" {
			continue
		}
		score := float64(doc.Score)
		if score < minScore {
			continue
		}
		definition, _ := doc.Metadata["definition"].(string)
		difficulty, _ := doc.Metadata["difficulty"].(string)
		matches = append(matches, ConceptMatch{
			Title:      title,
			Definition: definition,
			Difficulty: NormalizeDifficulty(difficulty),
			Score:      score,
		})
	}
	return matches, nil
}

// Reset drops the collection and recreates it empty.
func (c *ChromaIndex) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.RemoveCollection(); err != nil {
		return fmt.Errorf("failed to drop chroma collection: %w", err)
	}
	st, err := chroma.New(c.opts...)
	if err != nil {
		return fmt.Errorf("failed to recreate chroma collection: %w", err)
	}
	c.store = st
	return nil
}

// Close is a no-op; the Chroma client holds no connection state.
func (c *ChromaIndex) Close() error {
	return nil
}

// current returns the store handle under the read lock so searches and
// writes see a consistent collection across Reset.
func (c *ChromaIndex) current() chroma.Store {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store
}

// Compile-time interface check
var _ ConceptIndex = (*ChromaIndex)(nil)
