package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ConceptIndex is the semantic search gateway over embedded concepts.
// Search is the only operation the retrieval engine uses; Index serves the
// offline index builder. Implementations must be safe for concurrent use.
type ConceptIndex interface {
	// Search returns concept candidates for a free-text query, ordered by
	// descending similarity score, truncated to topK, with entries scoring
	// below minScore excluded. No side effects.
	Search(ctx context.Context, query string, topK int, minScore float64) ([]ConceptMatch, error)

	// Index embeds and stores the given concepts. A full rebuild from the
	// graph is Reset followed by Index batches; Index alone may append on
	// backends without stable per-title vector identity.
	Index(ctx context.Context, concepts []Concept) error

	// Reset clears the index so a rebuild can start from empty.
	Reset(ctx context.Context) error

	// Close releases any resources held by the index.
	Close() error
}

// EmbeddingText renders the text embedded for a concept: the title and
// definition, plus aliases when present so alternate phrasings of a
// question still land on the concept.
func EmbeddingText(c Concept) string {
	var b strings.Builder
	b.WriteString(c.Title)
	b.WriteString(". ")
	b.WriteString(c.Definition)
	if len(c.Aliases) > 0 {
		b.WriteString(". Also known as: ")
		b.WriteString(strings.Join(c.Aliases, ", "))
	}
	return b.String()
}

// VectorID returns the stable index identifier for a concept title.
func VectorID(title string) string {
	sum := sha256.Sum256([]byte(title))
	return hex.EncodeToString(sum[:8])
}

// ExampleID returns the stable identity for an example, derived from its
// text and concept so re-imports collapse duplicates.
func ExampleID(text, concept string) string {
	sum := sha256.Sum256([]byte(text + ":" + concept))
	return hex.EncodeToString(sum[:8])
}

// definitionLimit caps the definition text carried into index metadata.
const definitionLimit = 500

// MetadataDefinition truncates a definition for storage as index metadata.
func MetadataDefinition(def string) string {
	if len(def) <= definitionLimit {
		return def
	}
	return def[:definitionLimit]
}
