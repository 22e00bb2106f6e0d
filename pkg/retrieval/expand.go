package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/didact-dev/didact/pkg/store"
)

// Source ranks for the dedup sort: at equal depth, seeds beat
// prerequisites beat peer-related concepts.
const (
	rankSeed = iota
	rankPrerequisite
	rankRelated
)

// Expander turns seed titles into a bounded, deduplicated subgraph of
// concepts plus their supporting resources, examples, and prerequisite
// chains. It only reads from the graph and holds no per-call state.
type Expander struct {
	graph store.ConceptGraph
}

// NewExpander creates a new graph expansion engine.
func NewExpander(graph store.ConceptGraph) *Expander {
	return &Expander{graph: graph}
}

// rankedConcept pairs a retrieved concept with its source rank so the
// dedup sort can use an explicit (depth, rank) key.
type rankedConcept struct {
	concept RetrievedConcept
	rank    int
}

// ExpandSeeds expands seed concepts into a subgraph. Seed titles missing
// from the graph are dropped silently; they never poison the retrieval.
func (e *Expander) ExpandSeeds(ctx context.Context, seedTitles []string, opts Options) (*Subgraph, error) {
	ApplyDefaults(&opts)

	// Step 1: fetch seed concepts, depth 0.
	seeds, err := e.graph.GetConcepts(ctx, seedTitles)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch seed concepts: %w", err)
	}

	merged := make([]rankedConcept, 0, len(seeds))
	for _, c := range seeds {
		merged = append(merged, rankedConcept{
			rank: rankSeed,
			concept: RetrievedConcept{
				Title:          c.Title,
				Definition:     c.Definition,
				Difficulty:     c.Difficulty,
				Depth:          0,
				RelationToSeed: RelationSeed,
				SeedConcept:    c.Title,
			},
		})
	}

	// Step 2: prerequisites, depth = minimum hop distance from the seed.
	prereqs, err := e.graph.GetPrerequisites(ctx, seedTitles, opts.PrereqDepth)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prerequisites: %w", err)
	}
	for _, hit := range prereqs {
		merged = append(merged, rankedConcept{
			rank: rankPrerequisite,
			concept: RetrievedConcept{
				Title:          hit.Concept.Title,
				Definition:     hit.Concept.Definition,
				Difficulty:     hit.Concept.Difficulty,
				Depth:          hit.Depth,
				RelationToSeed: RelationPrerequisite,
				SeedConcept:    hit.Seed,
			},
		})
	}

	// Step 3: peer-related concepts. Depth is always 1: a peer relation is
	// one pedagogical step regardless of how many edges were hopped.
	related, err := e.graph.GetRelated(ctx, seedTitles, opts.RelatedDepth)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch related concepts: %w", err)
	}
	for _, hit := range related {
		merged = append(merged, rankedConcept{
			rank: rankRelated,
			concept: RetrievedConcept{
				Title:          hit.Concept.Title,
				Definition:     hit.Concept.Definition,
				Difficulty:     hit.Concept.Difficulty,
				Depth:          1,
				RelationToSeed: strings.ToLower(hit.Relation),
				SeedConcept:    hit.Seed,
			},
		})
	}

	// Step 4: dedupe by title (lowest depth wins, first seen on ties),
	// sort by (depth, rank), truncate. Seeds and near prerequisites always
	// survive truncation over distant or peer-related concepts.
	concepts := dedupeConcepts(merged, opts.MaxConcepts)

	// Step 5: one prerequisite chain per seed, in seed order. A seed with
	// no prerequisite path gets the singleton chain [seed].
	chains := make([][]string, 0, len(seedTitles))
	for _, seed := range seedTitles {
		chain, err := e.graph.GetLongestPrereqChain(ctx, seed, opts.PrereqDepth)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch prerequisite chain for %q: %w", seed, err)
		}
		if len(chain) == 0 {
			chain = []string{seed}
		}
		chains = append(chains, chain)
	}

	// Steps 6 and 7: resources and examples for the final concept set.
	titles := make([]string, len(concepts))
	for i, c := range concepts {
		titles[i] = c.Title
	}

	resources, err := e.graph.GetResourcesFor(ctx, titles)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch resources: %w", err)
	}
	if resources == nil {
		resources = []store.Resource{}
	}

	examples, err := e.graph.GetExamplesFor(ctx, titles, opts.MaxExamplesPerConcept)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch examples: %w", err)
	}
	if examples == nil {
		examples = []store.Example{}
	}

	return &Subgraph{
		SeedConcepts: append([]string{}, seedTitles...),
		Concepts:     concepts,
		Resources:    resources,
		Examples:     examples,
		PrereqChains: chains,
	}, nil
}

// dedupeConcepts merges the seed, prerequisite, and related lists by title.
// When a title appears more than once, the lowest-depth entry wins and
// keeps the position of the first occurrence; ties keep the first-seen
// entry. The survivors are stable-sorted by (depth, rank) and truncated to
// maxConcepts.
func dedupeConcepts(merged []rankedConcept, maxConcepts int) []RetrievedConcept {
	index := make(map[string]int, len(merged))
	deduped := make([]rankedConcept, 0, len(merged))
	for _, rc := range merged {
		if i, ok := index[rc.concept.Title]; ok {
			if rc.concept.Depth < deduped[i].concept.Depth {
				deduped[i] = rc
			}
			continue
		}
		index[rc.concept.Title] = len(deduped)
		deduped = append(deduped, rc)
	}

	sort.SliceStable(deduped, func(i, j int) bool {
		if deduped[i].concept.Depth != deduped[j].concept.Depth {
			return deduped[i].concept.Depth < deduped[j].concept.Depth
		}
		return deduped[i].rank < deduped[j].rank
	})

	if maxConcepts >= 0 && len(deduped) > maxConcepts {
		deduped = deduped[:maxConcepts]
	}

	concepts := make([]RetrievedConcept, len(deduped))
	for i, rc := range deduped {
		concepts[i] = rc.concept
	}
	return concepts
}
