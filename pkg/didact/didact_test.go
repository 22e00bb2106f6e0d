package didact

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/didact-dev/didact/pkg/llm"
	"github.com/didact-dev/didact/pkg/store"
	"github.com/didact-dev/didact/pkg/trace"
)

// fakeIndex is a func-field ConceptIndex test double. Unset funcs behave
// as harmless no-ops.
type fakeIndex struct {
	mu         sync.Mutex
	searchFunc func(ctx context.Context, query string, topK int, minScore float64) ([]store.ConceptMatch, error)
	indexErr   error
	indexed    []store.Concept
	resets     int
}

func (f *fakeIndex) Search(ctx context.Context, query string, topK int, minScore float64) ([]store.ConceptMatch, error) {
	if f.searchFunc == nil {
		return nil, nil
	}
	return f.searchFunc(ctx, query, topK, minScore)
}

func (f *fakeIndex) Index(ctx context.Context, concepts []store.Concept) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexErr != nil {
		return f.indexErr
	}
	f.indexed = append(f.indexed, concepts...)
	return nil
}

func (f *fakeIndex) Reset(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	f.indexed = nil
	return nil
}

func (f *fakeIndex) Close() error { return nil }

// fakeLLM serves canned completions. CompleteWithSchema unmarshals the
// response the way the real clients do after fence stripping.
type fakeLLM struct {
	response string
	err      error
	calls    int
}

func (f *fakeLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return f.CompleteWithSystem(ctx, "", prompt)
}

func (f *fakeLLM) CompleteWithSystem(ctx context.Context, system, prompt string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeLLM) CompleteWithSchema(ctx context.Context, prompt string, schema any) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	if err := json.Unmarshal([]byte(f.response), schema); err == nil {
		return nil
	}
	normalized, _, err := llm.NormalizeJSONArraysToStrings([]byte(f.response))
	if err != nil {
		return fmt.Errorf("failed to normalize LLM response: %w", err)
	}
	return json.Unmarshal(normalized, schema)
}

// captureExporter records exported traces for assertions.
type captureExporter struct {
	mu      sync.Mutex
	records []*trace.TraceRecord
}

func (c *captureExporter) Export(ctx context.Context, record *trace.TraceRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, record)
	return nil
}

func (c *captureExporter) Close() error { return nil }

func (c *captureExporter) last(t *testing.T) *trace.TraceRecord {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.records, "expected at least one exported trace")
	return c.records[len(c.records)-1]
}

func TestNew_RequiresGraph(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	require.Equal(t, ErrTypeValidation, ClassifyError(err))
}

func TestNew_AppliesDefaults(t *testing.T) {
	g := store.NewMemoryGraph()
	d, err := New(Config{Graph: g})
	require.NoError(t, err)

	require.Equal(t, 512, d.chunker.MaxTokens)
	require.Equal(t, 50, d.chunker.Overlap)
	require.Equal(t, DefaultIndexWorkers, d.config.IndexWorkers)
	require.Equal(t, DefaultIndexBatchSize, d.config.IndexBatchSize)
	require.NotNil(t, d.logger)
	require.NotNil(t, d.metrics)
	require.NotNil(t, d.trace)

	// No LLM clients configured: the write and generate paths refuse.
	require.Nil(t, d.extractor)
	require.Nil(t, d.generator)
}

func TestOperationsRequireTheirGateways(t *testing.T) {
	d, err := New(Config{Graph: store.NewMemoryGraph()})
	require.NoError(t, err)
	ctx := context.Background()

	_, retrieveErr := d.Retrieve(ctx, "what is a derivative?")
	require.Error(t, retrieveErr)

	_, _, askErr := d.Ask(ctx, "what is a derivative?")
	require.Error(t, askErr)

	_, ingestErr := d.Ingest(ctx, "some text", "")
	require.Error(t, ingestErr)

	_, indexErr := d.IndexConcepts(ctx)
	require.Error(t, indexErr)

	for _, err := range []error{retrieveErr, askErr, ingestErr, indexErr} {
		require.Equal(t, ErrTypeValidation, ClassifyError(err))
	}
}

func TestStats_ReturnsGraphCounts(t *testing.T) {
	ctx := context.Background()
	g := store.NewMemoryGraph()
	require.NoError(t, g.UpsertConcepts(ctx, []store.Concept{
		{Title: "Calculus", Definition: "Study of continuous change."},
		{Title: "Derivatives", Definition: "Instantaneous rate of change."},
	}))
	require.NoError(t, g.AddRelation(ctx, "Calculus", "Derivatives", store.RelPrereqOf))

	exporter := &captureExporter{}
	d, err := New(Config{Graph: g, Trace: exporter})
	require.NoError(t, err)

	stats, err := d.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.Concepts)
	require.Equal(t, int64(1), stats.Relations)

	rec := exporter.last(t)
	require.Equal(t, "stats", rec.Operation)
	require.Equal(t, "success", rec.Status)
}

func TestPruneOrphans_RemovesUnconnectedConcepts(t *testing.T) {
	ctx := context.Background()
	g := store.NewMemoryGraph()
	require.NoError(t, g.UpsertConcepts(ctx, []store.Concept{
		{Title: "Calculus"},
		{Title: "Derivatives"},
		{Title: "Leftover Heading"},
	}))
	require.NoError(t, g.AddRelation(ctx, "Calculus", "Derivatives", store.RelPrereqOf))

	d, err := New(Config{Graph: g})
	require.NoError(t, err)

	removed, err := d.PruneOrphans(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	remaining, err := g.AllConcepts(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
}

func TestClose_ClosesGatewaysAndExporter(t *testing.T) {
	d, err := New(Config{Graph: store.NewMemoryGraph(), Index: &fakeIndex{}, Trace: &captureExporter{}})
	require.NoError(t, err)
	require.NoError(t, d.Close())
}
