package store

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
)

func newTestSQLiteGraph(t *testing.T) *SQLiteGraph {
	t.Helper()
	g, err := NewSQLiteGraph(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteGraph failed: %v", err)
	}
	t.Cleanup(func() { g.Close() })
	return g
}

func TestSQLiteGraphGetPrerequisites_MatchesMemorySemantics(t *testing.T) {
	g := newTestSQLiteGraph(t)
	seedCourseGraph(t, g)

	hits, err := g.GetPrerequisites(context.Background(), []string{"Gradient Descent"}, 2)
	if err != nil {
		t.Fatalf("GetPrerequisites failed: %v", err)
	}

	depths := make(map[string]int, len(hits))
	for _, h := range hits {
		depths[h.Concept.Title] = h.Depth
		if h.Seed != "Gradient Descent" {
			t.Errorf("Expected seed Gradient Descent, got %q", h.Seed)
		}
	}
	expected := map[string]int{"Derivatives": 1, "Statistics": 1, "Calculus": 2}
	if !reflect.DeepEqual(depths, expected) {
		t.Errorf("Expected depths %v, got %v", expected, depths)
	}
}

func TestSQLiteGraphGetRelated_BothDirections(t *testing.T) {
	g := newTestSQLiteGraph(t)
	seedCourseGraph(t, g)

	hits, err := g.GetRelated(context.Background(), []string{"Gradient Descent"}, 1)
	if err != nil {
		t.Fatalf("GetRelated failed: %v", err)
	}

	relations := make(map[string]string, len(hits))
	for _, h := range hits {
		relations[h.Concept.Title] = h.Relation
	}
	expected := map[string]string{
		"Newton's Method": RelContrastsWith,
		"SGD":             RelIsA,
	}
	if !reflect.DeepEqual(relations, expected) {
		t.Errorf("Expected related %v, got %v", expected, relations)
	}
}

func TestSQLiteGraphGetLongestPrereqChain(t *testing.T) {
	g := newTestSQLiteGraph(t)
	seedCourseGraph(t, g)
	ctx := context.Background()

	chain, err := g.GetLongestPrereqChain(ctx, "Gradient Descent", 3)
	if err != nil {
		t.Fatalf("GetLongestPrereqChain failed: %v", err)
	}
	expected := []string{"Linear Algebra", "Calculus", "Derivatives", "Gradient Descent"}
	if !reflect.DeepEqual(chain, expected) {
		t.Errorf("Expected chain %v, got %v", expected, chain)
	}

	chain, err = g.GetLongestPrereqChain(ctx, "Linear Algebra", 3)
	if err != nil {
		t.Fatalf("GetLongestPrereqChain failed: %v", err)
	}
	if len(chain) != 0 {
		t.Errorf("Expected empty chain without prerequisites, got %v", chain)
	}
}

func TestSQLiteGraphUpsertConcepts_MergeSemantics(t *testing.T) {
	ctx := context.Background()
	g := newTestSQLiteGraph(t)

	err := g.UpsertConcepts(ctx, []Concept{
		{Title: "Backpropagation", Definition: "Chain rule on a network.", Difficulty: "nonsense", Aliases: []string{"backprop"}},
	})
	if err != nil {
		t.Fatalf("UpsertConcepts failed: %v", err)
	}
	err = g.UpsertConcepts(ctx, []Concept{
		{
			Title:      "Backpropagation",
			Definition: "Applying the chain rule backward through a network to compute gradients.",
			Difficulty: "intermediate",
			Aliases:    []string{"backprop", "BP", "Backpropagation"},
		},
	})
	if err != nil {
		t.Fatalf("UpsertConcepts merge failed: %v", err)
	}

	concepts, err := g.GetConcepts(ctx, []string{"Backpropagation"})
	if err != nil {
		t.Fatalf("GetConcepts failed: %v", err)
	}
	if len(concepts) != 1 {
		t.Fatalf("Expected 1 concept, got %d", len(concepts))
	}
	c := concepts[0]
	if c.Definition != "Applying the chain rule backward through a network to compute gradients." {
		t.Errorf("Expected the longer definition to win, got %q", c.Definition)
	}
	if c.Difficulty != DifficultyIntermediate {
		t.Errorf("Expected unknown difficulty upgraded, got %q", c.Difficulty)
	}
	if !reflect.DeepEqual(c.Aliases, []string{"backprop", "BP"}) {
		t.Errorf("Expected alias union without the title itself, got %v", c.Aliases)
	}
	if c.MentionCount != 2 {
		t.Errorf("Expected mention count accumulated to 2, got %d", c.MentionCount)
	}
}

func TestSQLiteGraphAddRelation_Errors(t *testing.T) {
	ctx := context.Background()
	g := newTestSQLiteGraph(t)
	seedCourseGraph(t, g)

	if err := g.AddRelation(ctx, "Calculus", "Derivatives", "EXPLAINS"); !errors.Is(err, ErrUnknownRelation) {
		t.Errorf("Expected ErrUnknownRelation, got %v", err)
	}
	if err := g.AddRelation(ctx, "Calculus", "No Such Concept", RelPrereqOf); !errors.Is(err, ErrConceptNotFound) {
		t.Errorf("Expected ErrConceptNotFound, got %v", err)
	}

	// Duplicate edges hit the primary key and are ignored.
	if err := g.AddRelation(ctx, "Calculus", "Derivatives", RelPrereqOf); err != nil {
		t.Errorf("Expected duplicate relation to be a no-op, got %v", err)
	}
	stats, err := g.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Relations != 6 {
		t.Errorf("Expected 6 relations after duplicate no-op, got %d", stats.Relations)
	}
}

func TestSQLiteGraphResources_MergeAndScopedConcepts(t *testing.T) {
	ctx := context.Background()
	g := newTestSQLiteGraph(t)
	seedCourseGraph(t, g)

	err := g.UpsertResource(ctx, Resource{
		URL:      "https://example.edu/notes/optimization",
		Type:     "webpage",
		Concepts: []string{"Gradient Descent", "Derivatives"},
	})
	if err != nil {
		t.Fatalf("UpsertResource failed: %v", err)
	}
	// Alias links resolve to the canonical title; the empty type does not
	// overwrite the stored one.
	err = g.UpsertResource(ctx, Resource{
		URL:      "https://example.edu/notes/optimization",
		Concepts: []string{"GD", "Calculus"},
	})
	if err != nil {
		t.Fatalf("UpsertResource merge failed: %v", err)
	}

	resources, err := g.GetResourcesFor(ctx, []string{"Gradient Descent", "Calculus"})
	if err != nil {
		t.Fatalf("GetResourcesFor failed: %v", err)
	}
	if len(resources) != 1 {
		t.Fatalf("Expected 1 deduplicated resource, got %d", len(resources))
	}
	if resources[0].Type != "webpage" {
		t.Errorf("Expected type preserved across merge, got %q", resources[0].Type)
	}
	if !reflect.DeepEqual(resources[0].Concepts, []string{"Gradient Descent", "Calculus"}) {
		t.Errorf("Expected concepts scoped to the queried set, got %v", resources[0].Concepts)
	}
}

func TestSQLiteGraphExamples_AliasResolutionAndCap(t *testing.T) {
	ctx := context.Background()
	g := newTestSQLiteGraph(t)
	seedCourseGraph(t, g)

	stored, err := g.UpsertExamples(ctx, []Example{
		{Text: "Walk through one update step on f(x)=x^2.", Type: "walkthrough", Concept: "GD"},
		{Text: "def step(x, lr): return x - lr * grad(x)", Type: "code", Concept: "Gradient Descent"},
		{Text: "Derive the update rule from a Taylor expansion.", Type: "math", Concept: "Gradient Descent"},
		{Text: "Orphan example.", Type: "code", Concept: "No Such Concept"},
	})
	if err != nil {
		t.Fatalf("UpsertExamples failed: %v", err)
	}
	if stored != 3 {
		t.Errorf("Expected 3 examples stored with the orphan skipped, got %d", stored)
	}

	examples, err := g.GetExamplesFor(ctx, []string{"Gradient Descent"}, 2)
	if err != nil {
		t.Fatalf("GetExamplesFor failed: %v", err)
	}
	if len(examples) != 2 {
		t.Fatalf("Expected the per-concept cap applied, got %d examples", len(examples))
	}
	if examples[0].Type != ExampleCode || examples[1].Type != ExampleMath {
		t.Errorf("Expected [code math], got [%s %s]", examples[0].Type, examples[1].Type)
	}
	for _, ex := range examples {
		if ex.Concept != "Gradient Descent" {
			t.Errorf("Expected alias resolved to canonical title, got %q", ex.Concept)
		}
	}
}

func TestSQLiteGraphGetPrereqEdgesAmong(t *testing.T) {
	g := newTestSQLiteGraph(t)
	seedCourseGraph(t, g)

	edges, err := g.GetPrereqEdgesAmong(context.Background(), []string{"Calculus", "Derivatives", "Gradient Descent"})
	if err != nil {
		t.Fatalf("GetPrereqEdgesAmong failed: %v", err)
	}
	expected := []PrereqEdge{
		{Prereq: "Calculus", Dependent: "Derivatives"},
		{Prereq: "Derivatives", Dependent: "Gradient Descent"},
	}
	if !reflect.DeepEqual(edges, expected) {
		t.Errorf("Expected internal edges %v, got %v", expected, edges)
	}
}

func TestSQLiteGraphPruneOrphans(t *testing.T) {
	ctx := context.Background()
	g := newTestSQLiteGraph(t)
	seedCourseGraph(t, g)

	if err := g.UpsertConcepts(ctx, []Concept{{Title: "Course Logistics"}}); err != nil {
		t.Fatalf("UpsertConcepts failed: %v", err)
	}

	removed, err := g.PruneOrphans(ctx)
	if err != nil {
		t.Fatalf("PruneOrphans failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 orphan removed, got %d", removed)
	}
	stats, err := g.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Concepts != 7 {
		t.Errorf("Expected the connected concepts kept, got %d", stats.Concepts)
	}
}

func TestSQLiteGraphDocumentTracker(t *testing.T) {
	ctx := context.Background()
	g := newTestSQLiteGraph(t)

	processed, err := g.IsDocumentProcessed(ctx, "abc123")
	if err != nil {
		t.Fatalf("IsDocumentProcessed failed: %v", err)
	}
	if processed {
		t.Error("Expected an unseen hash to be unprocessed")
	}

	if err := g.MarkDocumentProcessed(ctx, "abc123", "notes.md", 4); err != nil {
		t.Fatalf("MarkDocumentProcessed failed: %v", err)
	}
	// Re-marking the same hash upserts instead of erroring.
	if err := g.MarkDocumentProcessed(ctx, "abc123", "notes.md", 5); err != nil {
		t.Fatalf("MarkDocumentProcessed upsert failed: %v", err)
	}

	processed, err = g.IsDocumentProcessed(ctx, "abc123")
	if err != nil {
		t.Fatalf("IsDocumentProcessed failed: %v", err)
	}
	if !processed {
		t.Error("Expected the marked hash to be processed")
	}

	count, err := g.GetProcessedDocumentCount(ctx)
	if err != nil {
		t.Fatalf("GetProcessedDocumentCount failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 tracked document after upsert, got %d", count)
	}

	if err := g.ClearProcessedDocuments(ctx); err != nil {
		t.Fatalf("ClearProcessedDocuments failed: %v", err)
	}
	count, err = g.GetProcessedDocumentCount(ctx)
	if err != nil {
		t.Fatalf("GetProcessedDocumentCount failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected tracking cleared, got %d", count)
	}
}

func TestSQLiteGraph_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "didact.db")

	g, err := NewSQLiteGraph(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteGraph failed: %v", err)
	}
	seedCourseGraph(t, g)
	if err := g.MarkDocumentProcessed(ctx, "doc-1", "lecture.md", 3); err != nil {
		t.Fatalf("MarkDocumentProcessed failed: %v", err)
	}
	if err := g.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewSQLiteGraph(dbPath)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer reopened.Close()

	stats, err := reopened.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Concepts != 7 || stats.Relations != 6 {
		t.Errorf("Expected 7 concepts and 6 relations after reopen, got %+v", stats)
	}

	concepts, err := reopened.GetConcepts(ctx, []string{"Gradient Descent"})
	if err != nil {
		t.Fatalf("GetConcepts failed: %v", err)
	}
	if len(concepts) != 1 || !reflect.DeepEqual(concepts[0].Aliases, []string{"GD"}) {
		t.Errorf("Expected aliases persisted, got %v", concepts)
	}

	processed, err := reopened.IsDocumentProcessed(ctx, "doc-1")
	if err != nil {
		t.Fatalf("IsDocumentProcessed failed: %v", err)
	}
	if !processed {
		t.Error("Expected document tracking persisted across reopen")
	}
}

func TestMemoryTracker(t *testing.T) {
	ctx := context.Background()
	tr := NewMemoryTracker()

	processed, err := tr.IsDocumentProcessed(ctx, "h1")
	if err != nil {
		t.Fatalf("IsDocumentProcessed failed: %v", err)
	}
	if processed {
		t.Error("Expected an unseen hash to be unprocessed")
	}

	if err := tr.MarkDocumentProcessed(ctx, "h1", "", 0); err != nil {
		t.Fatalf("MarkDocumentProcessed failed: %v", err)
	}
	processed, _ = tr.IsDocumentProcessed(ctx, "h1")
	if !processed {
		t.Error("Expected the marked hash to be processed")
	}
	count, _ := tr.GetProcessedDocumentCount(ctx)
	if count != 1 {
		t.Errorf("Expected 1 tracked document, got %d", count)
	}

	if err := tr.ClearProcessedDocuments(ctx); err != nil {
		t.Fatalf("ClearProcessedDocuments failed: %v", err)
	}
	count, _ = tr.GetProcessedDocumentCount(ctx)
	if count != 0 {
		t.Errorf("Expected tracking cleared, got %d", count)
	}
}
