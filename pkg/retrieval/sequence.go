package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/didact-dev/didact/pkg/store"
)

// Sequencer orders concept sets so prerequisites precede dependents,
// using only PREREQ_OF edges internal to the set.
type Sequencer struct {
	graph store.ConceptGraph
}

// NewSequencer creates a new topological sequencer.
func NewSequencer(graph store.ConceptGraph) *Sequencer {
	return &Sequencer{graph: graph}
}

// Order returns the concept titles arranged so that for every PREREQ_OF
// edge with both endpoints in the set, the prerequisite comes first.
func (s *Sequencer) Order(ctx context.Context, concepts []RetrievedConcept) ([]string, error) {
	titles := make([]string, len(concepts))
	for i, c := range concepts {
		titles[i] = c.Title
	}
	return s.OrderTitles(ctx, titles)
}

// OrderTitles runs Kahn's algorithm over the PREREQ_OF edges internal to
// the given title set. The in-degree-zero queue is seeded in input order,
// and titles a cycle leaves unplaced are appended in input order, so the
// output is always a permutation of the input set; cycles never fail.
func (s *Sequencer) OrderTitles(ctx context.Context, titles []string) ([]string, error) {
	if len(titles) == 0 {
		return []string{}, nil
	}

	unique := make([]string, 0, len(titles))
	inSet := make(map[string]bool, len(titles))
	for _, t := range titles {
		if !inSet[t] {
			inSet[t] = true
			unique = append(unique, t)
		}
	}

	edges, err := s.graph.GetPrereqEdgesAmong(ctx, unique)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prerequisite edges: %w", err)
	}

	// Sort edges so the adjacency build does not depend on the gateway's
	// return order.
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Prereq != edges[j].Prereq {
			return edges[i].Prereq < edges[j].Prereq
		}
		return edges[i].Dependent < edges[j].Dependent
	})

	inDegree := make(map[string]int, len(unique))
	successors := make(map[string][]string, len(unique))
	for _, edge := range edges {
		if !inSet[edge.Prereq] || !inSet[edge.Dependent] {
			continue
		}
		successors[edge.Prereq] = append(successors[edge.Prereq], edge.Dependent)
		inDegree[edge.Dependent]++
	}

	queue := make([]string, 0, len(unique))
	for _, t := range unique {
		if inDegree[t] == 0 {
			queue = append(queue, t)
		}
	}

	ordered := make([]string, 0, len(unique))
	placed := make(map[string]bool, len(unique))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		ordered = append(ordered, current)
		placed[current] = true

		for _, next := range successors[current] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	// Titles caught in a cycle never reach in-degree zero; append them in
	// input order rather than failing.
	if len(ordered) < len(unique) {
		for _, t := range unique {
			if !placed[t] {
				ordered = append(ordered, t)
			}
		}
	}

	return ordered, nil
}
