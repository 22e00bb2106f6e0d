package didact

import (
	"context"
	"errors"
	"fmt"

	"github.com/didact-dev/didact/pkg/generation"
	"github.com/didact-dev/didact/pkg/retrieval"
	"github.com/didact-dev/didact/pkg/store"
)

// Retrieve finds concepts relevant to the query and expands them into an
// ordered explanation context. No semantic matches above the score
// threshold yields a defined empty result, not an error.
func (d *Didact) Retrieve(ctx context.Context, query string) (*retrieval.RetrievalResult, error) {
	return d.RetrieveWithConcepts(ctx, query, nil)
}

// RetrieveWithConcepts places explicit concept titles ahead of semantic
// matches as expansion seeds. Titles the semantic search also returns are
// not seeded twice.
func (d *Didact) RetrieveWithConcepts(ctx context.Context, query string, explicit []string) (*retrieval.RetrievalResult, error) {
	if d.index == nil {
		return nil, errors.New("concept index is required for retrieval")
	}

	op := d.beginOp(opRetrieve)
	result, err := d.retrieveStages(ctx, op, query, explicit)
	op.finish(ctx, err)
	return result, err
}

// retrieveStages runs the three retrieval stages under the given
// operation, so Retrieve and Ask share one instrumented pipeline.
func (d *Didact) retrieveStages(ctx context.Context, op *operation, query string, explicit []string) (*retrieval.RetrievalResult, error) {
	opts := d.config.Retrieval
	retrieval.ApplyDefaults(&opts)

	sp := op.startSpan(stageSearchSemantic)
	matches, err := d.index.Search(ctx, query, opts.TopKSemantic, opts.MinScore)
	sp.end(ctx, err, map[string]int64{"matchCount": int64(len(matches))})
	if err != nil {
		return nil, fmt.Errorf("semantic search failed: %w", err)
	}
	if matches == nil {
		matches = []store.ConceptMatch{}
	}

	seeds := retrieval.MergeSeeds(explicit, matches)
	op.record.IDs["seedCount"] = len(seeds)
	if len(seeds) == 0 {
		d.logger.Debug("no seeds for query, returning empty result")
		return retrieval.EmptyResult(query), nil
	}

	sp = op.startSpan(stageExpandGraph)
	subgraph, err := d.expander.ExpandSeeds(ctx, seeds, opts)
	if err != nil {
		sp.end(ctx, err, nil)
		return nil, err
	}
	sp.end(ctx, nil, map[string]int64{
		"conceptCount":  int64(len(subgraph.Concepts)),
		"resourceCount": int64(len(subgraph.Resources)),
		"exampleCount":  int64(len(subgraph.Examples)),
	})

	sp = op.startSpan(stageOrderConcepts)
	ordered, err := d.sequencer.Order(ctx, subgraph.Concepts)
	sp.end(ctx, err, nil)
	if err != nil {
		return nil, err
	}

	return &retrieval.RetrievalResult{
		Query:           query,
		SemanticMatches: matches,
		SeedConcepts:    seeds,
		Subgraph:        *subgraph,
		OrderedConcepts: ordered,
	}, nil
}

// Ask retrieves an explanation context for the question and generates a
// tutor answer from it. The retrieval result is returned alongside the
// answer so callers can show sources. An empty retrieval produces a fixed
// answer without an LLM round trip.
func (d *Didact) Ask(ctx context.Context, question string) (string, *retrieval.RetrievalResult, error) {
	if d.generator == nil {
		return "", nil, errors.New("chat client is required for ask")
	}
	if d.index == nil {
		return "", nil, errors.New("concept index is required for ask")
	}

	op := d.beginOp(opAsk)

	result, err := d.retrieveStages(ctx, op, question, nil)
	if err != nil {
		op.finish(ctx, err)
		return "", nil, err
	}
	if len(result.Subgraph.Concepts) == 0 {
		op.finish(ctx, nil)
		return generation.NoMaterialAnswer, result, nil
	}

	sp := op.startSpan(stageBuildContext)
	contextBlock := generation.BuildContext(result)
	sp.end(ctx, nil, map[string]int64{"contextChars": int64(len(contextBlock))})

	sp = op.startSpan(stageGenerate)
	answer, err := d.generator.Generate(ctx, question, contextBlock)
	sp.end(ctx, err, nil)
	op.finish(ctx, err)
	if err != nil {
		return "", nil, err
	}
	return answer, result, nil
}
