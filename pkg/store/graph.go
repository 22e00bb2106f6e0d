// Package store provides storage gateways for didact's knowledge graph and
// concept index.
package store

import (
	"context"
	"errors"
	"strings"
)

// Concept is a node in the knowledge graph, identified by its display title.
type Concept struct {
	Title        string   `json:"title"`
	Definition   string   `json:"definition"`
	Difficulty   string   `json:"difficulty"`
	Aliases      []string `json:"aliases,omitempty"`
	MentionCount int      `json:"mention_count,omitempty"`
}

// Resource is a URL-identified external reference linked to the concepts it
// explains.
type Resource struct {
	URL      string   `json:"url"`
	Type     string   `json:"type"`
	Concepts []string `json:"concepts"`
}

// Example is a short text illustrating a single concept.
type Example struct {
	Text    string `json:"text"`
	Type    string `json:"type"`
	Concept string `json:"concept"`
	Source  string `json:"source_url"`
}

// ConceptMatch is one row returned by semantic search over the concept index.
type ConceptMatch struct {
	Title      string  `json:"title"`
	Definition string  `json:"definition"`
	Difficulty string  `json:"difficulty"`
	Score      float64 `json:"score"`
}

// Concept relation kinds. PREREQ_OF is directed (prerequisite -> dependent);
// the peer relations are traversed in either direction.
const (
	RelPrereqOf      = "PREREQ_OF"
	RelIsA           = "IS_A"
	RelPartOf        = "PART_OF"
	RelSibling       = "SIBLING"
	RelContrastsWith = "CONTRASTS_WITH"
)

// Edge kinds linking resources and examples to concepts.
const (
	RelExplains    = "EXPLAINS"
	RelExemplifies = "EXEMPLIFIES"
)

// Difficulty tiers. Values outside this set normalize to DifficultyUnknown.
const (
	DifficultyBeginner     = "beginner"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"
	DifficultyUnknown      = "unknown"
)

// Example type tags. Values outside this set normalize to ExampleUnknown.
const (
	ExampleCode        = "code"
	ExampleMath        = "math"
	ExampleCaseStudy   = "case_study"
	ExampleWalkthrough = "walkthrough"
	ExampleDiagram     = "diagram"
	ExampleUnknown     = "unknown"
)

// ConceptRelations lists the concept-to-concept relation kinds accepted by
// AddRelation.
var ConceptRelations = []string{RelPrereqOf, RelIsA, RelPartOf, RelSibling, RelContrastsWith}

// PeerRelations lists the symmetric relation kinds traversed by GetRelated.
var PeerRelations = []string{RelIsA, RelPartOf, RelSibling, RelContrastsWith}

// IsConceptRelation reports whether relType is one of the five concept
// relation kinds.
func IsConceptRelation(relType string) bool {
	for _, r := range ConceptRelations {
		if r == relType {
			return true
		}
	}
	return false
}

// NormalizeDifficulty maps a raw difficulty value onto one of the known
// tiers, defaulting to DifficultyUnknown.
func NormalizeDifficulty(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case DifficultyBeginner:
		return DifficultyBeginner
	case DifficultyIntermediate:
		return DifficultyIntermediate
	case DifficultyAdvanced:
		return DifficultyAdvanced
	default:
		return DifficultyUnknown
	}
}

// NormalizeExampleType maps a raw example type onto one of the known tags,
// defaulting to ExampleUnknown.
func NormalizeExampleType(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case ExampleCode:
		return ExampleCode
	case ExampleMath:
		return ExampleMath
	case ExampleCaseStudy:
		return ExampleCaseStudy
	case ExampleWalkthrough:
		return ExampleWalkthrough
	case ExampleDiagram:
		return ExampleDiagram
	default:
		return ExampleUnknown
	}
}

// PrereqHit is one prerequisite discovered by backward traversal. Depth is
// the minimum hop distance from Seed across all discovered paths.
type PrereqHit struct {
	Concept Concept
	Depth   int
	Seed    string
}

// RelatedHit is one peer-related concept discovered from a seed. Relation is
// the kind of the first edge on the discovered path.
type RelatedHit struct {
	Concept  Concept
	Relation string
	Seed     string
}

// PrereqEdge is a PREREQ_OF edge with both endpoints inside a queried set.
type PrereqEdge struct {
	Prereq    string
	Dependent string
}

// GraphStats holds record counts per kind.
type GraphStats struct {
	Concepts  int64 `json:"concepts"`
	Relations int64 `json:"relations"`
	Resources int64 `json:"resources"`
	Examples  int64 `json:"examples"`
}

// ConceptGraph is the typed gateway to the knowledge graph. Implementations
// must be safe for concurrent use; each method acquires whatever session or
// transaction it needs for the duration of the call and releases it on all
// exit paths. The retrieval engine only uses the read operations; the write
// operations serve ingestion.
type ConceptGraph interface {
	// GetConcepts returns the concepts whose titles match exactly. Titles
	// with no matching concept are absent from the result; this is never an
	// error.
	GetConcepts(ctx context.Context, titles []string) ([]Concept, error)

	// GetPrerequisites traverses PREREQ_OF edges backward from each seed up
	// to maxDepth hops. A prerequisite reachable from the same seed via
	// multiple paths is reported once with the minimum hop distance.
	GetPrerequisites(ctx context.Context, seeds []string, maxDepth int) ([]PrereqHit, error)

	// GetRelated traverses IS_A, PART_OF, SIBLING and CONTRASTS_WITH edges
	// in either direction from each seed up to maxDepth hops. A seed never
	// appears as related to itself.
	GetRelated(ctx context.Context, seeds []string, maxDepth int) ([]RelatedHit, error)

	// GetLongestPrereqChain returns the titles along the longest PREREQ_OF
	// path of at most maxDepth hops terminating at seed, including the seed
	// itself. Returns an empty slice when the seed has no prerequisites.
	GetLongestPrereqChain(ctx context.Context, seed string, maxDepth int) ([]string, error)

	// GetResourcesFor returns resources EXPLAINS-linked to any of the given
	// titles. Each resource appears once; its Concepts field lists only
	// titles from the queried set.
	GetResourcesFor(ctx context.Context, titles []string) ([]Resource, error)

	// GetExamplesFor returns examples EXEMPLIFIES-linked to the given
	// titles, at most maxPerConcept per title, selected deterministically
	// (ordered by example type, then text) and grouped in input title order.
	GetExamplesFor(ctx context.Context, titles []string, maxPerConcept int) ([]Example, error)

	// GetPrereqEdgesAmong returns the PREREQ_OF edges whose endpoints are
	// both inside the given title set.
	GetPrereqEdgesAmong(ctx context.Context, titles []string) ([]PrereqEdge, error)

	// AllConcepts returns every concept in the graph, ordered by title.
	AllConcepts(ctx context.Context) ([]Concept, error)

	// UpsertConcepts merges concepts by title: the longer definition wins,
	// aliases are unioned, MentionCount accumulates.
	UpsertConcepts(ctx context.Context, concepts []Concept) error

	// AddRelation adds a typed edge between two existing concepts. relType
	// must be one of the concept relation kinds; unknown endpoints yield
	// ErrConceptNotFound.
	AddRelation(ctx context.Context, source, target, relType string) error

	// UpsertResource merges a resource by URL and re-links its EXPLAINS
	// edges to the listed concepts. Listed concepts that do not exist are
	// skipped.
	UpsertResource(ctx context.Context, res Resource) error

	// UpsertExamples stores examples keyed by a hash of text and concept;
	// duplicates collapse. The concept reference resolves by title or
	// alias; examples whose concept cannot be resolved are skipped.
	// Returns the number of examples stored or refreshed.
	UpsertExamples(ctx context.Context, examples []Example) (int, error)

	// Stats returns record counts per kind.
	Stats(ctx context.Context) (GraphStats, error)

	// PruneOrphans removes concepts with no relations, no explaining
	// resource and no examples. Returns the number removed.
	PruneOrphans(ctx context.Context) (int64, error)

	// Close releases any resources held by the store.
	Close() error
}

// ErrConceptNotFound indicates a referenced concept does not exist.
var ErrConceptNotFound = errors.New("concept not found")

// ErrUnknownRelation indicates a relation type outside the concept relation
// kinds.
var ErrUnknownRelation = errors.New("unknown relation type")
