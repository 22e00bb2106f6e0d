package didact

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/didact-dev/didact/pkg/trace"
)

// Operation names, stable for metrics labels and trace records.
const (
	opRetrieve = "retrieve"
	opIngest   = "ingest"
	opIndex    = "index"
	opAsk      = "ask"
	opStats    = "stats"
	opPrune    = "prune"
)

// Stage names, stable across operations. See trace.SpanRecord.
const (
	stageSearchSemantic = "search-semantic"
	stageExpandGraph    = "expand-graph"
	stageOrderConcepts  = "order-concepts"
	stageChunk          = "chunk"
	stageExtract        = "extract"
	stageWriteGraph     = "write-graph"
	stageIndexConcepts  = "index-concepts"
	stageBuildContext   = "build-context"
	stageGenerate       = "generate"
)

// operation accumulates spans and counters for one facade call and flushes
// them to the metrics collector and trace exporter when finished.
type operation struct {
	d      *Didact
	name   string
	start  time.Time
	record *trace.TraceRecord
}

func (d *Didact) beginOp(name string) *operation {
	now := time.Now()
	return &operation{
		d:     d,
		name:  name,
		start: now,
		record: &trace.TraceRecord{
			Timestamp:   now.UTC(),
			OperationID: uuid.NewString(),
			Operation:   name,
			IDs:         map[string]interface{}{},
		},
	}
}

// finish closes the operation: total duration, status, error
// classification, one metrics record, one exported trace. A failing trace
// export is logged and swallowed; observability must never fail the
// operation it observes.
func (o *operation) finish(ctx context.Context, err error) {
	o.record.DurationMs = time.Since(o.start).Milliseconds()
	o.record.Status = "success"
	if err != nil {
		o.record.Status = "error"
		o.record.ErrorType = ClassifyError(err)
		o.d.metrics.RecordError(ctx, o.name, o.record.ErrorType)
	}
	o.d.metrics.RecordOperation(ctx, o.name, o.record.Status, o.record.DurationMs)
	if exportErr := o.d.trace.Export(ctx, o.record); exportErr != nil {
		o.d.logger.Warn("trace export failed", "operation", o.name, "error", exportErr)
	}
}

// spanTimer measures one stage within an operation.
type spanTimer struct {
	op    *operation
	name  string
	start time.Time
}

func (o *operation) startSpan(name string) *spanTimer {
	return &spanTimer{op: o, name: name, start: time.Now()}
}

// end records the span on the trace and as a stage metric. Counters may be
// nil.
func (s *spanTimer) end(ctx context.Context, err error, counters map[string]int64) {
	durationMs := time.Since(s.start).Milliseconds()
	span := trace.SpanRecord{
		Name:       s.name,
		DurationMs: durationMs,
		OK:         err == nil,
		Counters:   counters,
	}
	if err != nil {
		span.ErrorType = ClassifyError(err)
	}
	s.op.record.Spans = append(s.op.record.Spans, span)
	s.op.d.metrics.RecordStage(ctx, s.op.name, s.name, durationMs)
}
