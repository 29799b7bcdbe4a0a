// Package memory provides in-memory retrieval collaborators for tests and
// dry runs without external services.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"sync"

	"github.com/JakeFAU/sitecrawl/internal/crawler"
)

// VectorStore keeps points in a map keyed by ID, so upserts of the same ID
// overwrite like a real vector database.
type VectorStore struct {
	mu     sync.RWMutex
	points map[string]crawler.Point
}

// NewVectorStore creates an empty store.
func NewVectorStore() *VectorStore {
	return &VectorStore{points: make(map[string]crawler.Point)}
}

// Upsert implements crawler.VectorStore.
func (s *VectorStore) Upsert(_ context.Context, points []crawler.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		s.points[p.ID] = p
	}
	return nil
}

// Len returns the number of stored points.
func (s *VectorStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}

// Get returns the point with id, if present.
func (s *VectorStore) Get(id string) (crawler.Point, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.points[id]
	return p, ok
}

// Embedder produces deterministic fake vectors derived from the text, so
// tests can assert stability without a model.
type Embedder struct {
	Dimensions int
}

// NewEmbedder creates an Embedder with the given vector width.
func NewEmbedder(dimensions int) *Embedder {
	if dimensions <= 0 {
		dimensions = 8
	}
	return &Embedder{Dimensions: dimensions}
}

// Embed implements crawler.Embedder.
func (e *Embedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		sum := sha256.Sum256([]byte(text))
		vec := make([]float32, e.Dimensions)
		for d := range vec {
			bits := binary.BigEndian.Uint32(sum[(d*4)%len(sum):])
			vec[d] = float32(bits%1000) / 1000
		}
		vectors[i] = vec
	}
	return vectors, nil
}
