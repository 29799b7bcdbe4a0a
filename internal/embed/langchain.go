// Package embed adapts langchaingo embedding clients to the crawler's
// Embedder boundary.
package embed

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
)

// LangChain wraps any langchaingo embeddings.Embedder (OpenAI, Ollama,
// VertexAI, ...) behind the crawler.Embedder interface.
type LangChain struct {
	client embeddings.Embedder
}

// NewLangChain wraps client.
func NewLangChain(client embeddings.Embedder) *LangChain {
	return &LangChain{client: client}
}

// Embed implements crawler.Embedder.
func (l *LangChain) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := l.client.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	return vectors, nil
}
