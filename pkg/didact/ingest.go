package didact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/didact-dev/didact/pkg/store"
)

// IngestReport summarizes one document ingestion.
type IngestReport struct {
	// DocumentHash is the SHA-256 content hash identifying the document.
	DocumentHash string `json:"document_hash"`

	// Skipped is true when a tracker reported the document already
	// processed; all counts are zero in that case.
	Skipped bool `json:"skipped"`

	Chunks    int `json:"chunks"`
	Concepts  int `json:"concepts"`
	Relations int `json:"relations"`
	Examples  int `json:"examples"`
}

// Ingest chunks a document, extracts concepts, relations and examples per
// chunk, and writes them to the graph. When source is a nonempty URL, a
// resource for it is linked to every concept of the document. A configured
// tracker makes re-ingestion of unchanged documents a no-op.
func (d *Didact) Ingest(ctx context.Context, text, source string) (*IngestReport, error) {
	if d.extractor == nil {
		return nil, errors.New("llm client is required for ingest")
	}

	sum := sha256.Sum256([]byte(text))
	report := &IngestReport{DocumentHash: hex.EncodeToString(sum[:])}

	if d.tracker != nil {
		processed, err := d.tracker.IsDocumentProcessed(ctx, report.DocumentHash)
		if err != nil {
			return nil, fmt.Errorf("failed to check document tracker: %w", err)
		}
		if processed {
			d.logger.Info("document already processed, skipping", "hash", report.DocumentHash, "source", source)
			report.Skipped = true
			return report, nil
		}
	}

	op := d.beginOp(opIngest)
	op.record.IDs["documentHash"] = report.DocumentHash
	err := d.ingestDocument(ctx, op, text, source, report)
	op.finish(ctx, err)
	if err != nil {
		return nil, err
	}

	if d.tracker != nil {
		if err := d.tracker.MarkDocumentProcessed(ctx, report.DocumentHash, source, report.Chunks); err != nil {
			return nil, fmt.Errorf("failed to mark document processed: %w", err)
		}
	}

	d.logger.Info("document ingested",
		"source", source,
		"chunks", report.Chunks,
		"concepts", report.Concepts,
		"relations", report.Relations,
		"examples", report.Examples,
	)
	return report, nil
}

func (d *Didact) ingestDocument(ctx context.Context, op *operation, text, source string, report *IngestReport) error {
	sp := op.startSpan(stageChunk)
	chunks := d.chunker.Chunk(text)
	sp.end(ctx, nil, map[string]int64{"chunkCount": int64(len(chunks))})
	report.Chunks = len(chunks)
	if len(chunks) == 0 {
		return nil
	}

	// Extraction is per chunk; concept merging across chunks happens in
	// the graph upsert, which unions aliases and accumulates mentions.
	var concepts []store.Concept
	type relation struct {
		source, target, relType string
	}
	var relations []relation
	var examples []store.Example

	sp = op.startSpan(stageExtract)
	for _, chunk := range chunks {
		extracted, err := d.extractor.Extract(ctx, chunk.Text)
		if err != nil {
			extractErr := fmt.Errorf("extraction failed for chunk %s: %w", chunk.ID, err)
			sp.end(ctx, extractErr, nil)
			return extractErr
		}
		for _, c := range extracted.Concepts {
			concepts = append(concepts, store.Concept{
				Title:        c.Title,
				Definition:   c.Definition,
				Difficulty:   c.Difficulty,
				Aliases:      c.Aliases,
				MentionCount: 1,
			})
		}
		for _, r := range extracted.Relations {
			relations = append(relations, relation{source: r.Source, target: r.Target, relType: r.RelationType})
		}
		for _, ex := range extracted.Examples {
			examples = append(examples, store.Example{
				Text:    ex.Text,
				Type:    ex.ExampleType,
				Concept: ex.Concept,
				Source:  source,
			})
		}
	}
	sp.end(ctx, nil, map[string]int64{
		"conceptCount":  int64(len(concepts)),
		"relationCount": int64(len(relations)),
		"exampleCount":  int64(len(examples)),
	})

	sp = op.startSpan(stageWriteGraph)
	writeErr := func() error {
		if err := d.graph.UpsertConcepts(ctx, concepts); err != nil {
			return fmt.Errorf("failed to upsert concepts: %w", err)
		}
		relationWrites := 0
		for _, r := range relations {
			err := d.graph.AddRelation(ctx, r.source, r.target, r.relType)
			switch {
			case err == nil:
				relationWrites++
			case errors.Is(err, store.ErrConceptNotFound) || errors.Is(err, store.ErrUnknownRelation):
				d.logger.Warn("skipping relation", "source", r.source, "target", r.target, "type", r.relType, "error", err)
			default:
				return fmt.Errorf("failed to add relation: %w", err)
			}
		}
		exampleWrites, err := d.graph.UpsertExamples(ctx, examples)
		if err != nil {
			return fmt.Errorf("failed to upsert examples: %w", err)
		}
		if source != "" && len(concepts) > 0 {
			res := store.Resource{
				URL:      source,
				Type:     classifySource(source),
				Concepts: conceptTitles(concepts),
			}
			if err := d.graph.UpsertResource(ctx, res); err != nil {
				return fmt.Errorf("failed to upsert resource: %w", err)
			}
		}
		report.Concepts = len(concepts)
		report.Relations = relationWrites
		report.Examples = exampleWrites
		return nil
	}()
	sp.end(ctx, writeErr, map[string]int64{
		"conceptUpserts":  int64(report.Concepts),
		"relationUpserts": int64(report.Relations),
		"exampleUpserts":  int64(report.Examples),
	})
	return writeErr
}

// IndexConcepts rebuilds the semantic index from the graph: every concept
// is embedded and stored, in fixed-size batches spread over a worker pool.
// The call blocks until all batches finish and returns the concept count
// together with the first batch error; remaining batches drain either way.
func (d *Didact) IndexConcepts(ctx context.Context) (int, error) {
	if d.index == nil {
		return 0, errors.New("concept index is required for indexing")
	}

	op := d.beginOp(opIndex)
	count, err := d.indexAll(ctx, op)
	op.finish(ctx, err)
	return count, err
}

func (d *Didact) indexAll(ctx context.Context, op *operation) (int, error) {
	concepts, err := d.graph.AllConcepts(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read concepts from graph: %w", err)
	}
	if err := d.index.Reset(ctx); err != nil {
		return 0, fmt.Errorf("failed to reset concept index: %w", err)
	}

	pool, err := ants.NewPool(d.config.IndexWorkers)
	if err != nil {
		return 0, fmt.Errorf("failed to create index worker pool: %w", err)
	}
	defer pool.Release()

	sp := op.startSpan(stageIndexConcepts)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	recordErr := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	batchSize := d.config.IndexBatchSize
	batches := 0
	for start := 0; start < len(concepts); start += batchSize {
		end := start + batchSize
		if end > len(concepts) {
			end = len(concepts)
		}
		batch := concepts[start:end]
		batches++

		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			if err := d.index.Index(ctx, batch); err != nil {
				recordErr(err)
			}
		}); err != nil {
			wg.Done()
			recordErr(fmt.Errorf("failed to submit index batch: %w", err))
		}
	}
	wg.Wait()

	sp.end(ctx, firstErr, map[string]int64{
		"conceptCount": int64(len(concepts)),
		"batchCount":   int64(batches),
	})
	if firstErr != nil {
		return len(concepts), fmt.Errorf("failed to index concepts: %w", firstErr)
	}

	d.metrics.SetStorageCount(ctx, "index", int64(len(concepts)))
	d.logger.Info("concept index rebuilt", "concepts", len(concepts), "batches", batches)
	return len(concepts), nil
}

func conceptTitles(concepts []store.Concept) []string {
	seen := make(map[string]bool, len(concepts))
	titles := make([]string, 0, len(concepts))
	for _, c := range concepts {
		if !seen[c.Title] {
			seen[c.Title] = true
			titles = append(titles, c.Title)
		}
	}
	return titles
}

// classifySource maps a source URL to a resource type tag.
func classifySource(url string) string {
	lower := strings.ToLower(url)
	switch {
	case strings.Contains(lower, "youtube.com") || strings.Contains(lower, "youtu.be"):
		return "video"
	case strings.HasSuffix(lower, ".pdf"):
		return "pdf"
	case strings.HasSuffix(lower, ".png") || strings.HasSuffix(lower, ".jpg") ||
		strings.HasSuffix(lower, ".jpeg") || strings.HasSuffix(lower, ".gif") ||
		strings.HasSuffix(lower, ".svg") || strings.HasSuffix(lower, ".webp"):
		return "image"
	default:
		return "webpage"
	}
}
