//go:build !tracing

package trace

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewFileExporter_DisabledBuildReturnsNoop(t *testing.T) {
	dir := t.TempDir()
	tracePath := filepath.Join(dir, "traces.jsonl")

	exporter, err := NewFileExporter(tracePath)
	if err != nil {
		t.Fatalf("NewFileExporter failed: %v", err)
	}
	if _, ok := exporter.(*NoopExporter); !ok {
		t.Fatalf("Expected NoopExporter, got %T", exporter)
	}

	record := &TraceRecord{
		Timestamp:   time.Now(),
		OperationID: "op-1",
		Operation:   "ingest",
		DurationMs:  10,
		Status:      "success",
	}
	if err := exporter.Export(context.Background(), record); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if err := exporter.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// No file should have been written
	if _, err := os.Stat(tracePath); !os.IsNotExist(err) {
		t.Error("Expected no trace file in disabled build")
	}
}
