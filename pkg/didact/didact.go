// Package didact is the front door to the tutoring knowledge system: it
// wires the graph and index gateways, the LLM clients, and the retrieval
// pipeline into one instrumented facade.
package didact

import (
	"context"
	"errors"
	"fmt"

	"github.com/didact-dev/didact/pkg/chunker"
	"github.com/didact-dev/didact/pkg/extraction"
	"github.com/didact-dev/didact/pkg/generation"
	"github.com/didact-dev/didact/pkg/llm"
	"github.com/didact-dev/didact/pkg/logger"
	"github.com/didact-dev/didact/pkg/metrics"
	"github.com/didact-dev/didact/pkg/retrieval"
	"github.com/didact-dev/didact/pkg/store"
	"github.com/didact-dev/didact/pkg/trace"
)

// Default knobs for the ingestion and indexing paths.
const (
	DefaultIndexWorkers   = 4
	DefaultIndexBatchSize = 32
)

// Config holds the gateways and knobs for a Didact instance. Graph is the
// only hard requirement; the other gateways are validated by the
// operations that need them, so a read-only deployment can omit the LLM
// clients entirely.
type Config struct {
	// Graph is the knowledge graph gateway. Required.
	Graph store.ConceptGraph

	// Index is the semantic concept index. Required for Retrieve, Ask
	// and IndexConcepts.
	Index store.ConceptIndex

	// LLM is the chat client used for concept extraction during Ingest.
	LLM llm.LLMClient

	// Chat is the chat client used for answer generation during Ask.
	// It may be the same client as LLM, typically with warmer sampling.
	Chat llm.LLMClient

	// Tracker skips documents already ingested. Optional; without it
	// every Ingest call processes its document.
	Tracker store.DocumentTracker

	// Logger receives structured log output (default: no-op).
	Logger *logger.Logger

	// Metrics receives operation and stage measurements (default: no-op).
	Metrics metrics.Collector

	// Trace receives per-operation trace records (default: no-op).
	Trace trace.Exporter

	// ChunkSize is the token budget per ingestion chunk (default: 512).
	ChunkSize int

	// ChunkOverlap is the token overlap between chunks (default: 50).
	ChunkOverlap int

	// Retrieval configures every Retrieve and Ask call. Zero fields take
	// the retrieval defaults.
	Retrieval retrieval.Options

	// IndexWorkers sizes the worker pool for IndexConcepts (default: 4).
	IndexWorkers int

	// IndexBatchSize is the number of concepts embedded per index batch
	// (default: 32).
	IndexBatchSize int
}

// Didact composes the retrieval engine with ingestion, indexing and answer
// generation. Instances are safe for concurrent use: every operation works
// on call-local state over the shared, thread-safe gateways.
type Didact struct {
	config    Config
	graph     store.ConceptGraph
	index     store.ConceptIndex
	tracker   store.DocumentTracker
	chunker   *chunker.Chunker
	extractor *extraction.Extractor
	generator *generation.Generator
	expander  *retrieval.Expander
	sequencer *retrieval.Sequencer
	logger    *logger.Logger
	metrics   metrics.Collector
	trace     trace.Exporter
}

// New validates the configuration and builds a Didact instance. Gateways
// are injected, never constructed here: the caller owns connection
// lifetimes and may share one gateway across several instances.
func New(cfg Config) (*Didact, error) {
	if cfg.Graph == nil {
		return nil, errors.New("graph gateway is required")
	}

	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = chunker.DefaultMaxTokens
	}
	if cfg.ChunkOverlap == 0 {
		cfg.ChunkOverlap = chunker.DefaultOverlap
	}
	if cfg.IndexWorkers <= 0 {
		cfg.IndexWorkers = DefaultIndexWorkers
	}
	if cfg.IndexBatchSize <= 0 {
		cfg.IndexBatchSize = DefaultIndexBatchSize
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoopCollector()
	}
	if cfg.Trace == nil {
		cfg.Trace = &trace.NoopExporter{}
	}

	d := &Didact{
		config:    cfg,
		graph:     cfg.Graph,
		index:     cfg.Index,
		tracker:   cfg.Tracker,
		chunker:   &chunker.Chunker{MaxTokens: cfg.ChunkSize, Overlap: cfg.ChunkOverlap},
		expander:  retrieval.NewExpander(cfg.Graph),
		sequencer: retrieval.NewSequencer(cfg.Graph),
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		trace:     cfg.Trace,
	}
	if cfg.LLM != nil {
		d.extractor = extraction.NewExtractor(cfg.LLM)
	}
	if cfg.Chat != nil {
		d.generator = generation.NewGenerator(cfg.Chat)
	}
	return d, nil
}

// Stats returns record counts per kind and publishes them as storage
// gauges.
func (d *Didact) Stats(ctx context.Context) (store.GraphStats, error) {
	op := d.beginOp(opStats)
	stats, err := d.graph.Stats(ctx)
	if err != nil {
		err = fmt.Errorf("failed to read graph stats: %w", err)
		op.finish(ctx, err)
		return store.GraphStats{}, err
	}

	d.metrics.SetStorageCount(ctx, "concepts", stats.Concepts)
	d.metrics.SetStorageCount(ctx, "relations", stats.Relations)
	d.metrics.SetStorageCount(ctx, "resources", stats.Resources)
	d.metrics.SetStorageCount(ctx, "examples", stats.Examples)

	op.finish(ctx, nil)
	return stats, nil
}

// PruneOrphans removes concepts with no relations, resources or examples
// and returns the number removed.
func (d *Didact) PruneOrphans(ctx context.Context) (int64, error) {
	op := d.beginOp(opPrune)
	removed, err := d.graph.PruneOrphans(ctx)
	if err != nil {
		err = fmt.Errorf("failed to prune orphan concepts: %w", err)
		op.finish(ctx, err)
		return 0, err
	}
	d.logger.Info("pruned orphan concepts", "removed", removed)
	op.finish(ctx, nil)
	return removed, nil
}

// Close releases the injected gateways and the trace exporter. The
// instance must not be used afterwards.
func (d *Didact) Close() error {
	var errs []error
	if d.index != nil {
		if err := d.index.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close concept index: %w", err))
		}
	}
	if err := d.graph.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close concept graph: %w", err))
	}
	if err := d.trace.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close trace exporter: %w", err))
	}
	d.logger.Sync()
	return errors.Join(errs...)
}
