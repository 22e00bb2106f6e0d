package didact

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/didact-dev/didact/pkg/generation"
	"github.com/didact-dev/didact/pkg/store"
)

// calculusGraph seeds the canonical fixture: Calculus -> Derivatives ->
// Gradient Descent as a prerequisite chain, with a contrasting peer.
func calculusGraph(t *testing.T) *store.MemoryGraph {
	t.Helper()
	ctx := context.Background()
	g := store.NewMemoryGraph()

	require.NoError(t, g.UpsertConcepts(ctx, []store.Concept{
		{Title: "Calculus", Definition: "Study of continuous change.", Difficulty: store.DifficultyBeginner},
		{Title: "Derivatives", Definition: "Instantaneous rate of change.", Difficulty: store.DifficultyBeginner},
		{Title: "Gradient Descent", Definition: "Descent along the negative gradient.", Difficulty: store.DifficultyIntermediate},
		{Title: "Newton's Method", Definition: "Second-order root finding.", Difficulty: store.DifficultyAdvanced},
	}))
	require.NoError(t, g.AddRelation(ctx, "Calculus", "Derivatives", store.RelPrereqOf))
	require.NoError(t, g.AddRelation(ctx, "Derivatives", "Gradient Descent", store.RelPrereqOf))
	require.NoError(t, g.AddRelation(ctx, "Gradient Descent", "Newton's Method", store.RelContrastsWith))
	return g
}

func gradientDescentMatch() []store.ConceptMatch {
	return []store.ConceptMatch{
		{Title: "Gradient Descent", Definition: "Descent along the negative gradient.", Difficulty: store.DifficultyIntermediate, Score: 0.92},
	}
}

func TestRetrieve_OrdersPrerequisitesFirst(t *testing.T) {
	ctx := context.Background()
	exporter := &captureExporter{}
	index := &fakeIndex{
		searchFunc: func(ctx context.Context, query string, topK int, minScore float64) ([]store.ConceptMatch, error) {
			return gradientDescentMatch(), nil
		},
	}

	d, err := New(Config{Graph: calculusGraph(t), Index: index, Trace: exporter})
	require.NoError(t, err)

	result, err := d.Retrieve(ctx, "how does gradient descent work?")
	require.NoError(t, err)

	require.Equal(t, []string{"Gradient Descent"}, result.SeedConcepts)
	require.Len(t, result.Subgraph.Concepts, 4)
	require.Equal(t,
		[][]string{{"Calculus", "Derivatives", "Gradient Descent"}},
		result.Subgraph.PrereqChains)

	// Prerequisites come before their dependents in the teaching order.
	position := make(map[string]int, len(result.OrderedConcepts))
	for i, title := range result.OrderedConcepts {
		position[title] = i
	}
	require.Less(t, position["Calculus"], position["Derivatives"])
	require.Less(t, position["Derivatives"], position["Gradient Descent"])

	rec := exporter.last(t)
	require.Equal(t, "retrieve", rec.Operation)
	require.Equal(t, "success", rec.Status)
	var stages []string
	for _, span := range rec.Spans {
		stages = append(stages, span.Name)
	}
	require.Equal(t, []string{"search-semantic", "expand-graph", "order-concepts"}, stages)
}

func TestRetrieve_NoMatchesYieldsEmptyResult(t *testing.T) {
	ctx := context.Background()
	index := &fakeIndex{
		searchFunc: func(ctx context.Context, query string, topK int, minScore float64) ([]store.ConceptMatch, error) {
			return nil, nil
		},
	}
	d, err := New(Config{Graph: calculusGraph(t), Index: index})
	require.NoError(t, err)

	result, err := d.Retrieve(ctx, "what is the meaning of life?")
	require.NoError(t, err)
	require.Empty(t, result.SeedConcepts)
	require.Empty(t, result.Subgraph.Concepts)
	require.Empty(t, result.OrderedConcepts)
}

func TestRetrieve_IndexFailurePropagates(t *testing.T) {
	ctx := context.Background()
	index := &fakeIndex{
		searchFunc: func(ctx context.Context, query string, topK int, minScore float64) ([]store.ConceptMatch, error) {
			return nil, errors.New("dial tcp 127.0.0.1:8000: connection refused")
		},
	}
	d, err := New(Config{Graph: calculusGraph(t), Index: index})
	require.NoError(t, err)

	_, retrieveErr := d.Retrieve(ctx, "how does gradient descent work?")
	require.Error(t, retrieveErr)
	require.Equal(t, ErrTypeNetwork, ClassifyError(retrieveErr))
}

func TestRetrieveWithConcepts_ExplicitSeedsComeFirst(t *testing.T) {
	ctx := context.Background()
	index := &fakeIndex{
		searchFunc: func(ctx context.Context, query string, topK int, minScore float64) ([]store.ConceptMatch, error) {
			return gradientDescentMatch(), nil
		},
	}
	d, err := New(Config{Graph: calculusGraph(t), Index: index})
	require.NoError(t, err)

	result, err := d.RetrieveWithConcepts(ctx, "explain the chain of ideas", []string{"Calculus"})
	require.NoError(t, err)
	require.Equal(t, []string{"Calculus", "Gradient Descent"}, result.SeedConcepts)
}

func TestAsk_GeneratesAnswerFromRetrievedContext(t *testing.T) {
	ctx := context.Background()
	exporter := &captureExporter{}
	index := &fakeIndex{
		searchFunc: func(ctx context.Context, query string, topK int, minScore float64) ([]store.ConceptMatch, error) {
			return gradientDescentMatch(), nil
		},
	}
	chat := &fakeLLM{response: "Start with calculus, then derivatives, then the descent rule."}

	d, err := New(Config{Graph: calculusGraph(t), Index: index, Chat: chat, Trace: exporter})
	require.NoError(t, err)

	answer, result, err := d.Ask(ctx, "how does gradient descent work?")
	require.NoError(t, err)
	require.Equal(t, chat.response, answer)
	require.NotNil(t, result)
	require.Equal(t, 1, chat.calls)

	rec := exporter.last(t)
	require.Equal(t, "ask", rec.Operation)
	var stages []string
	for _, span := range rec.Spans {
		stages = append(stages, span.Name)
	}
	require.Equal(t,
		[]string{"search-semantic", "expand-graph", "order-concepts", "build-context", "generate"},
		stages)
}

func TestAsk_EmptyRetrievalSkipsTheLLM(t *testing.T) {
	ctx := context.Background()
	index := &fakeIndex{
		searchFunc: func(ctx context.Context, query string, topK int, minScore float64) ([]store.ConceptMatch, error) {
			return nil, nil
		},
	}
	chat := &fakeLLM{response: "never used"}

	d, err := New(Config{Graph: calculusGraph(t), Index: index, Chat: chat})
	require.NoError(t, err)

	answer, result, err := d.Ask(ctx, "something the course never covers")
	require.NoError(t, err)
	require.Equal(t, generation.NoMaterialAnswer, answer)
	require.NotNil(t, result)
	require.Zero(t, chat.calls)
}
