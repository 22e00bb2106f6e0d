package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew_DevelopmentMode(t *testing.T) {
	l, err := New("dev", "debug")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if l == nil {
		t.Fatal("Expected logger, got nil")
	}
	l.Debug("starting", "component", "test")
	l.Info("ready", "count", 3)
	l.Sync()
}

func TestNew_ProductionMode(t *testing.T) {
	l, err := New("production", "warn")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	l.Warn("slow query", "elapsed_ms", 120)
	l.Sync()
}

func TestNew_DefaultLevelIsInfo(t *testing.T) {
	l, err := New("dev", "")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if got := l.sugar.Level(); got != zapcore.InfoLevel {
		t.Errorf("Expected info level, got %v", got)
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New("dev", "shouting")
	if err == nil {
		t.Fatal("Expected error for invalid level, got nil")
	}
}

func TestNop_DiscardsEverything(t *testing.T) {
	l := Nop()
	l.Debug("ignored")
	l.Info("ignored")
	l.Warn("ignored")
	l.Error("ignored")
	l.Sync()
}

func TestWith_ReturnsDerivedLogger(t *testing.T) {
	base := Nop()
	child := base.With("request_id", "abc123")
	if child == nil {
		t.Fatal("Expected derived logger, got nil")
	}
	if child == base {
		t.Error("Expected a new logger instance")
	}
	child.Info("handled")
}
