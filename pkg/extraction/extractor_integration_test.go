//go:build integration

package extraction

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/didact-dev/didact/pkg/llm"
)

func TestExtractorIntegration_RealAPI(t *testing.T) {
	apiKey := os.Getenv("OPENROUTER_API_KEY")
	if apiKey == "" {
		t.Skip("Skipping integration test: OPENROUTER_API_KEY not set")
	}

	client := llm.NewOpenAILLM(llm.OpenAIConfig{APIKey: apiKey})
	extractor := NewExtractor(client)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	text := "Gradient descent is an optimization algorithm that iteratively steps " +
		"against the gradient of a loss function. Understanding derivatives is " +
		"required first: the gradient is a vector of partial derivatives. " +
		"For example, minimizing y = x^2 starts at x=4 and steps to x=3.2 with " +
		"a learning rate of 0.1."

	result, err := extractor.Extract(ctx, text)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if len(result.Concepts) == 0 {
		t.Error("Expected at least one concept from a dense paragraph")
	}
	for _, c := range result.Concepts {
		t.Logf("concept: %s [%s] %s", c.Title, c.Difficulty, c.Definition)
	}
	for _, r := range result.Relations {
		t.Logf("relation: %s -[%s]-> %s", r.Source, r.RelationType, r.Target)
	}
	for _, ex := range result.Examples {
		t.Logf("example [%s] for %s: %s", ex.ExampleType, ex.Concept, ex.Text)
	}
}
