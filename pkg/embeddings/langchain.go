package embeddings

import (
	"context"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
)

// embedderClient adapts an EmbeddingClient to the langchaingo
// EmbedderClient interface so vector stores can drive it.
type embedderClient struct {
	client EmbeddingClient
}

// CreateEmbedding generates embeddings for the given texts.
func (e embedderClient) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	return e.client.Embed(ctx, texts)
}

// AsEmbedder wraps an EmbeddingClient as a langchaingo embedder. Newlines
// are stripped from texts before embedding.
func AsEmbedder(client EmbeddingClient) (lcembeddings.Embedder, error) {
	return lcembeddings.NewEmbedder(embedderClient{client: client}, lcembeddings.WithStripNewLines(true))
}
