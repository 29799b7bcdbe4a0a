// Package pipeline feeds cleaned page text into the retrieval collaborators:
// chunking, embedding and vector-store upsert.
package pipeline

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// ChunkerConfig bounds chunk size in tokens.
type ChunkerConfig struct {
	MaxTokens int
	Overlap   int
}

// DefaultChunkerConfig returns sensible retrieval defaults.
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		MaxTokens: 512,
		Overlap:   50,
	}
}

// ChunkText splits text into token-bounded chunks with overlap.
func ChunkText(text string, cfg ChunkerConfig) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if cfg.MaxTokens <= 0 {
		cfg = DefaultChunkerConfig()
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(cfg.MaxTokens),
		textsplitter.WithChunkOverlap(cfg.Overlap),
		textsplitter.WithLenFunc(countTokens),
	)
	parts, err := splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}

	chunks := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		chunks = append(chunks, part)
	}
	return chunks, nil
}
