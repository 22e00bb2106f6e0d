package embeddings

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms/openai"
)

const defaultEmbeddingModel = "text-embedding-3-small"

// OpenAIConfig configures an OpenAI-compatible embedding client.
type OpenAIConfig struct {
	// APIKey authenticates against the endpoint. Optional when BaseURL
	// points at a local server that ignores authentication.
	APIKey string

	// Model is the embedding model name. Defaults to "text-embedding-3-small".
	Model string

	// BaseURL overrides the API base URL for OpenAI-compatible servers.
	BaseURL string
}

// OpenAIClient implements EmbeddingClient through an OpenAI-compatible
// embeddings endpoint.
type OpenAIClient struct {
	llm *openai.LLM
}

// NewOpenAIClient creates a new OpenAI embedding client.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	model := cfg.Model
	if model == "" {
		model = defaultEmbeddingModel
	}

	opts := []openai.Option{openai.WithEmbeddingModel(model)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	switch {
	case cfg.APIKey != "":
		opts = append(opts, openai.WithToken(cfg.APIKey))
	case cfg.BaseURL != "":
		// Local and proxy servers accept any token.
		opts = append(opts, openai.WithToken("none"))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}
	return &OpenAIClient{llm: llm}, nil
}

// Embed generates embeddings for multiple texts
func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vectors, err := c.llm.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: %d texts, %d vectors", len(texts), len(vectors))
	}
	return vectors, nil
}

// EmbedOne generates an embedding for a single text
func (c *OpenAIClient) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return vectors[0], nil
}

// Compile-time interface check
var _ EmbeddingClient = (*OpenAIClient)(nil)
