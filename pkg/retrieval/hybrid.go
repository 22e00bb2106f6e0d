package retrieval

import (
	"context"
	"fmt"

	"github.com/didact-dev/didact/pkg/store"
)

// Retriever composes semantic seed selection, graph expansion, and
// topological sequencing into one retrieval call. It holds no cross-call
// state beyond the injected gateways, so concurrent retrievals are safe.
type Retriever struct {
	index     store.ConceptIndex
	expander  *Expander
	sequencer *Sequencer
}

// NewRetriever creates a new hybrid retriever over the given gateways.
func NewRetriever(index store.ConceptIndex, graph store.ConceptGraph) *Retriever {
	return &Retriever{
		index:     index,
		expander:  NewExpander(graph),
		sequencer: NewSequencer(graph),
	}
}

// Retrieve finds concepts relevant to the query and expands them into an
// ordered explanation context. No semantic matches above the score
// threshold yields a defined empty result, not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts Options) (*RetrievalResult, error) {
	return r.RetrieveWithConcepts(ctx, query, nil, opts)
}

// RetrieveWithConcepts places explicit seed titles ahead of semantic
// matches before expansion. Semantic matches already present among the
// seeds are not added twice. Callers that extract concept mentions from
// the question verbatim use this entry point.
func (r *Retriever) RetrieveWithConcepts(ctx context.Context, query string, explicit []string, opts Options) (*RetrievalResult, error) {
	ApplyDefaults(&opts)

	matches, err := r.index.Search(ctx, query, opts.TopKSemantic, opts.MinScore)
	if err != nil {
		return nil, fmt.Errorf("semantic search failed: %w", err)
	}
	if matches == nil {
		matches = []store.ConceptMatch{}
	}

	seeds := MergeSeeds(explicit, matches)
	if len(seeds) == 0 {
		return EmptyResult(query), nil
	}

	subgraph, err := r.expander.ExpandSeeds(ctx, seeds, opts)
	if err != nil {
		return nil, err
	}

	ordered, err := r.sequencer.Order(ctx, subgraph.Concepts)
	if err != nil {
		return nil, err
	}

	return &RetrievalResult{
		Query:           query,
		SemanticMatches: matches,
		SeedConcepts:    seeds,
		Subgraph:        *subgraph,
		OrderedConcepts: ordered,
	}, nil
}

// MergeSeeds places explicit seed titles ahead of semantic match titles,
// skipping matches already present among the explicit seeds. Explicit
// titles pass through verbatim, repeats included.
func MergeSeeds(explicit []string, matches []store.ConceptMatch) []string {
	seeds := make([]string, 0, len(explicit)+len(matches))
	seeds = append(seeds, explicit...)
	inSeeds := make(map[string]bool, cap(seeds))
	for _, title := range seeds {
		inSeeds[title] = true
	}
	for _, m := range matches {
		if inSeeds[m.Title] {
			continue
		}
		inSeeds[m.Title] = true
		seeds = append(seeds, m.Title)
	}
	return seeds
}

// EmptyResult is the defined empty-result state for a query with no usable
// seeds.
func EmptyResult(query string) *RetrievalResult {
	return &RetrievalResult{
		Query:           query,
		SemanticMatches: []store.ConceptMatch{},
		SeedConcepts:    []string{},
		Subgraph: Subgraph{
			SeedConcepts: []string{},
			Concepts:     []RetrievedConcept{},
			Resources:    []store.Resource{},
			Examples:     []store.Example{},
			PrereqChains: [][]string{},
		},
		OrderedConcepts: []string{},
	}
}
