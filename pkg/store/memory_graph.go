package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// memEdge is a typed concept-to-concept edge.
type memEdge struct {
	source string
	target string
	kind   string
}

// memResource holds a resource and its EXPLAINS links.
type memResource struct {
	url      string
	rtype    string
	concepts map[string]struct{}
}

// MemoryGraph is an in-memory implementation of ConceptGraph. All records
// live in maps guarded by an RWMutex; traversal state is rebuilt per call so
// queries stay deterministic. Suitable for tests and small corpora; nothing
// is persisted across restarts.
type MemoryGraph struct {
	mu        sync.RWMutex
	concepts  map[string]Concept
	edges     []memEdge
	edgeSet   map[memEdge]struct{}
	resources map[string]*memResource
	resOrder  []string
	examples  map[string]Example
	exOrder   []string
}

// NewMemoryGraph creates an empty in-memory concept graph.
func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{
		concepts:  make(map[string]Concept),
		edgeSet:   make(map[memEdge]struct{}),
		resources: make(map[string]*memResource),
		examples:  make(map[string]Example),
	}
}

// GetConcepts returns concepts matching the given titles exactly, in input
// order. Missing titles are skipped.
func (m *MemoryGraph) GetConcepts(ctx context.Context, titles []string) ([]Concept, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Concept, 0, len(titles))
	for _, title := range titles {
		if c, ok := m.concepts[title]; ok {
			result = append(result, copyConcept(c))
		}
	}
	return result, nil
}

// GetPrerequisites walks PREREQ_OF edges backward from each seed with BFS,
// which yields the minimum hop distance per prerequisite.
func (m *MemoryGraph) GetPrerequisites(ctx context.Context, seeds []string, maxDepth int) ([]PrereqHit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Reverse adjacency: dependent -> prerequisites, in edge insertion order.
	reverse := make(map[string][]string)
	for _, e := range m.edges {
		if e.kind == RelPrereqOf {
			reverse[e.target] = append(reverse[e.target], e.source)
		}
	}

	var hits []PrereqHit
	for _, seed := range seeds {
		if _, ok := m.concepts[seed]; !ok {
			continue
		}

		depths := map[string]int{seed: 0}
		queue := []string{seed}
		var found []string

		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]
			if depths[current] >= maxDepth {
				continue
			}
			for _, prereq := range reverse[current] {
				if _, seen := depths[prereq]; seen {
					continue
				}
				depths[prereq] = depths[current] + 1
				found = append(found, prereq)
				queue = append(queue, prereq)
			}
		}

		sort.Slice(found, func(i, j int) bool {
			if depths[found[i]] != depths[found[j]] {
				return depths[found[i]] < depths[found[j]]
			}
			return found[i] < found[j]
		})

		for _, title := range found {
			c, ok := m.concepts[title]
			if !ok {
				continue
			}
			hits = append(hits, PrereqHit{
				Concept: copyConcept(c),
				Depth:   depths[title],
				Seed:    seed,
			})
		}
	}
	return hits, nil
}

// GetRelated walks peer relations in either direction from each seed with
// BFS. The reported relation kind is the first edge on the discovery path.
func (m *MemoryGraph) GetRelated(ctx context.Context, seeds []string, maxDepth int) ([]RelatedHit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type peer struct {
		title string
		kind  string
	}
	adjacent := make(map[string][]peer)
	for _, e := range m.edges {
		if e.kind == RelPrereqOf {
			continue
		}
		adjacent[e.source] = append(adjacent[e.source], peer{e.target, e.kind})
		adjacent[e.target] = append(adjacent[e.target], peer{e.source, e.kind})
	}

	var hits []RelatedHit
	for _, seed := range seeds {
		if _, ok := m.concepts[seed]; !ok {
			continue
		}

		type visit struct {
			title    string
			depth    int
			firstRel string
		}
		seen := map[string]struct{}{seed: {}}
		queue := []visit{{title: seed}}
		var found []visit

		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]
			if current.depth >= maxDepth {
				continue
			}
			for _, p := range adjacent[current.title] {
				if _, ok := seen[p.title]; ok {
					continue
				}
				seen[p.title] = struct{}{}
				rel := current.firstRel
				if current.depth == 0 {
					rel = p.kind
				}
				v := visit{title: p.title, depth: current.depth + 1, firstRel: rel}
				found = append(found, v)
				queue = append(queue, v)
			}
		}

		for _, v := range found {
			c, ok := m.concepts[v.title]
			if !ok {
				continue
			}
			hits = append(hits, RelatedHit{
				Concept:  copyConcept(c),
				Relation: v.firstRel,
				Seed:     seed,
			})
		}
	}
	return hits, nil
}

// GetLongestPrereqChain enumerates simple PREREQ_OF paths ending at the seed
// and returns the titles of the longest, deepest prerequisite first.
func (m *MemoryGraph) GetLongestPrereqChain(ctx context.Context, seed string, maxDepth int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.concepts[seed]; !ok {
		return []string{}, nil
	}

	reverse := make(map[string][]string)
	for _, e := range m.edges {
		if e.kind == RelPrereqOf {
			reverse[e.target] = append(reverse[e.target], e.source)
		}
	}
	for _, prereqs := range reverse {
		sort.Strings(prereqs)
	}

	// DFS backward from the seed over simple paths; first longest found wins.
	var best []string
	path := []string{seed}
	onPath := map[string]struct{}{seed: {}}

	var walk func(current string, depth int)
	walk = func(current string, depth int) {
		if depth > 0 && len(path) > len(best) {
			best = append([]string(nil), path...)
		}
		if depth >= maxDepth {
			return
		}
		for _, prereq := range reverse[current] {
			if _, ok := onPath[prereq]; ok {
				continue
			}
			onPath[prereq] = struct{}{}
			path = append(path, prereq)
			walk(prereq, depth+1)
			path = path[:len(path)-1]
			delete(onPath, prereq)
		}
	}
	walk(seed, 0)

	if best == nil {
		return []string{}, nil
	}
	// The walk records seed-first; chains read deepest prerequisite first.
	reversed := make([]string, len(best))
	for i, title := range best {
		reversed[len(best)-1-i] = title
	}
	return reversed, nil
}

// GetResourcesFor returns each resource explaining any of the given titles
// once, with its Concepts limited to the queried set in input order.
func (m *MemoryGraph) GetResourcesFor(ctx context.Context, titles []string) ([]Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []Resource
	for _, url := range m.resOrder {
		res := m.resources[url]
		var explained []string
		added := make(map[string]struct{})
		for _, t := range titles {
			if _, ok := added[t]; ok {
				continue
			}
			if _, ok := res.concepts[t]; ok {
				explained = append(explained, t)
				added[t] = struct{}{}
			}
		}
		if len(explained) == 0 {
			continue
		}
		result = append(result, Resource{
			URL:      res.url,
			Type:     res.rtype,
			Concepts: explained,
		})
	}
	return result, nil
}

// GetExamplesFor returns up to maxPerConcept examples per title, ordered by
// example type then text, grouped in input title order.
func (m *MemoryGraph) GetExamplesFor(ctx context.Context, titles []string, maxPerConcept int) ([]Example, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byConcept := make(map[string][]Example)
	for _, id := range m.exOrder {
		ex := m.examples[id]
		byConcept[ex.Concept] = append(byConcept[ex.Concept], ex)
	}

	var result []Example
	for _, title := range titles {
		group := byConcept[title]
		sort.Slice(group, func(i, j int) bool {
			if group[i].Type != group[j].Type {
				return group[i].Type < group[j].Type
			}
			return group[i].Text < group[j].Text
		})
		if maxPerConcept >= 0 && len(group) > maxPerConcept {
			group = group[:maxPerConcept]
		}
		result = append(result, group...)
	}
	return result, nil
}

// GetPrereqEdgesAmong returns PREREQ_OF edges with both endpoints in the set.
func (m *MemoryGraph) GetPrereqEdgesAmong(ctx context.Context, titles []string) ([]PrereqEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inSet := make(map[string]struct{}, len(titles))
	for _, t := range titles {
		inSet[t] = struct{}{}
	}

	var edges []PrereqEdge
	for _, e := range m.edges {
		if e.kind != RelPrereqOf {
			continue
		}
		if _, ok := inSet[e.source]; !ok {
			continue
		}
		if _, ok := inSet[e.target]; !ok {
			continue
		}
		edges = append(edges, PrereqEdge{Prereq: e.source, Dependent: e.target})
	}
	return edges, nil
}

// AllConcepts returns every concept ordered by title.
func (m *MemoryGraph) AllConcepts(ctx context.Context) ([]Concept, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	titles := make([]string, 0, len(m.concepts))
	for title := range m.concepts {
		titles = append(titles, title)
	}
	sort.Strings(titles)

	result := make([]Concept, 0, len(titles))
	for _, title := range titles {
		result = append(result, copyConcept(m.concepts[title]))
	}
	return result, nil
}

// UpsertConcepts merges concepts by title.
func (m *MemoryGraph) UpsertConcepts(ctx context.Context, concepts []Concept) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range concepts {
		if c.Title == "" {
			continue
		}
		incoming := copyConcept(c)
		incoming.Difficulty = NormalizeDifficulty(incoming.Difficulty)
		mentions := incoming.MentionCount
		if mentions <= 0 {
			mentions = 1
		}

		existing, ok := m.concepts[c.Title]
		if !ok {
			incoming.Aliases = unionAliases(nil, incoming.Aliases, c.Title)
			incoming.MentionCount = mentions
			m.concepts[c.Title] = incoming
			continue
		}

		if len(incoming.Definition) > len(existing.Definition) {
			existing.Definition = incoming.Definition
		}
		if existing.Difficulty == DifficultyUnknown && incoming.Difficulty != DifficultyUnknown {
			existing.Difficulty = incoming.Difficulty
		}
		existing.Aliases = unionAliases(existing.Aliases, incoming.Aliases, existing.Title)
		existing.MentionCount += mentions
		m.concepts[c.Title] = existing
	}
	return nil
}

// AddRelation adds a typed edge between two existing concepts.
func (m *MemoryGraph) AddRelation(ctx context.Context, source, target, relType string) error {
	if !IsConceptRelation(relType) {
		return fmt.Errorf("%w: %s", ErrUnknownRelation, relType)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.concepts[source]; !ok {
		return fmt.Errorf("relation source %q: %w", source, ErrConceptNotFound)
	}
	if _, ok := m.concepts[target]; !ok {
		return fmt.Errorf("relation target %q: %w", target, ErrConceptNotFound)
	}

	e := memEdge{source: source, target: target, kind: relType}
	if _, ok := m.edgeSet[e]; ok {
		return nil
	}
	m.edgeSet[e] = struct{}{}
	m.edges = append(m.edges, e)
	return nil
}

// UpsertResource merges a resource by URL and links it to the listed
// concepts that exist.
func (m *MemoryGraph) UpsertResource(ctx context.Context, res Resource) error {
	if res.URL == "" {
		return fmt.Errorf("resource URL cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.resources[res.URL]
	if !ok {
		existing = &memResource{
			url:      res.URL,
			rtype:    "unknown",
			concepts: make(map[string]struct{}),
		}
		m.resources[res.URL] = existing
		m.resOrder = append(m.resOrder, res.URL)
	}
	if res.Type != "" {
		existing.rtype = res.Type
	}
	for _, ref := range res.Concepts {
		if title, ok := m.resolveTitleLocked(ref); ok {
			existing.concepts[title] = struct{}{}
		}
	}
	return nil
}

// UpsertExamples stores examples whose concept resolves by title or alias.
func (m *MemoryGraph) UpsertExamples(ctx context.Context, examples []Example) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := 0
	for _, ex := range examples {
		if ex.Text == "" {
			continue
		}
		title, ok := m.resolveTitleLocked(ex.Concept)
		if !ok {
			continue
		}
		id := ExampleID(ex.Text, title)
		if _, exists := m.examples[id]; !exists {
			m.exOrder = append(m.exOrder, id)
		}
		m.examples[id] = Example{
			Text:    ex.Text,
			Type:    NormalizeExampleType(ex.Type),
			Concept: title,
			Source:  ex.Source,
		}
		stored++
	}
	return stored, nil
}

// Stats returns record counts per kind.
func (m *MemoryGraph) Stats(ctx context.Context) (GraphStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return GraphStats{
		Concepts:  int64(len(m.concepts)),
		Relations: int64(len(m.edges)),
		Resources: int64(len(m.resources)),
		Examples:  int64(len(m.examples)),
	}, nil
}

// PruneOrphans removes concepts with no relations, resources or examples.
func (m *MemoryGraph) PruneOrphans(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	linked := make(map[string]struct{})
	for _, e := range m.edges {
		linked[e.source] = struct{}{}
		linked[e.target] = struct{}{}
	}
	for _, res := range m.resources {
		for title := range res.concepts {
			linked[title] = struct{}{}
		}
	}
	for _, ex := range m.examples {
		linked[ex.Concept] = struct{}{}
	}

	var removed int64
	for title := range m.concepts {
		if _, ok := linked[title]; !ok {
			delete(m.concepts, title)
			removed++
		}
	}
	return removed, nil
}

// Close is a no-op for the in-memory graph.
func (m *MemoryGraph) Close() error {
	return nil
}

// resolveTitleLocked maps a concept reference onto a stored title, matching
// the title exactly first and falling back to an alias scan. Callers must
// hold at least a read lock.
func (m *MemoryGraph) resolveTitleLocked(ref string) (string, bool) {
	if ref == "" {
		return "", false
	}
	if _, ok := m.concepts[ref]; ok {
		return ref, true
	}

	titles := make([]string, 0, len(m.concepts))
	for title := range m.concepts {
		titles = append(titles, title)
	}
	sort.Strings(titles)
	for _, title := range titles {
		for _, alias := range m.concepts[title].Aliases {
			if alias == ref {
				return title, true
			}
		}
	}
	return "", false
}

// copyConcept returns a defensive copy so callers never share slices with
// the store.
func copyConcept(c Concept) Concept {
	out := c
	if c.Aliases != nil {
		out.Aliases = append([]string(nil), c.Aliases...)
	}
	return out
}

// unionAliases merges alias lists preserving order, skipping duplicates and
// the concept's own title.
func unionAliases(existing, incoming []string, title string) []string {
	seen := make(map[string]struct{}, len(existing))
	out := append([]string(nil), existing...)
	for _, a := range existing {
		seen[a] = struct{}{}
	}
	for _, a := range incoming {
		if a == "" || a == title {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

// Compile-time interface check
var _ ConceptGraph = (*MemoryGraph)(nil)
