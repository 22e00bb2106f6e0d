// Package retrieval implements hybrid retrieval over the concept graph:
// semantic seed selection, bounded typed-graph expansion, and topological
// sequencing of the result for scaffolded explanation.
package retrieval

import (
	"fmt"
	"strings"

	"github.com/didact-dev/didact/pkg/store"
)

// Relation tags attached to retrieved concepts. Peer relations carry the
// lower-cased edge kind (is_a, part_of, sibling, contrasts_with) instead.
const (
	RelationSeed         = "seed"
	RelationPrerequisite = "prerequisite"
)

// RetrievedConcept wraps a concept with retrieval metadata: how far from a
// seed it was found, through which relation, and which seed produced it.
// Within one retrieval a title appears at most once; the lowest-depth
// occurrence wins.
type RetrievedConcept struct {
	Title          string `json:"title"`
	Definition     string `json:"definition"`
	Difficulty     string `json:"difficulty"`
	Depth          int    `json:"depth"`
	RelationToSeed string `json:"relation_to_seed"`
	SeedConcept    string `json:"seed_concept"`
}

// Subgraph is the bounded set of concepts, resources, examples, and
// prerequisite chains produced by one expansion call. It is created once
// per retrieval and owned exclusively by that call.
type Subgraph struct {
	SeedConcepts []string           `json:"seed_concepts"`
	Concepts     []RetrievedConcept `json:"concepts"`
	Resources    []store.Resource   `json:"resources"`
	Examples     []store.Example    `json:"examples"`
	PrereqChains [][]string         `json:"prereq_chain"`
}

// ConceptTitles returns the titles of all concepts in the subgraph, in order.
func (s *Subgraph) ConceptTitles() []string {
	titles := make([]string, len(s.Concepts))
	for i, c := range s.Concepts {
		titles[i] = c.Title
	}
	return titles
}

// RetrievalResult is the terminal output of one retrieve call, handed to
// the answer generation stage. Constructed once, never mutated afterwards.
type RetrievalResult struct {
	Query           string               `json:"query"`
	SemanticMatches []store.ConceptMatch `json:"semantic_matches"`
	SeedConcepts    []string             `json:"seed_concepts"`
	Subgraph        Subgraph             `json:"subgraph"`
	OrderedConcepts []string             `json:"ordered_concepts"`
}

// Summary returns a one-look description of what was retrieved.
func (r *RetrievalResult) Summary() string {
	order := r.OrderedConcepts
	suffix := ""
	if len(order) > 5 {
		order = order[:5]
		suffix = "..."
	}
	return fmt.Sprintf(
		"Query: %s\nSeeds: %s\nConcepts: %d\nResources: %d\nExamples: %d\nOrder: %s%s",
		r.Query,
		strings.Join(r.SeedConcepts, ", "),
		len(r.Subgraph.Concepts),
		len(r.Subgraph.Resources),
		len(r.Subgraph.Examples),
		strings.Join(order, " -> "),
		suffix,
	)
}
