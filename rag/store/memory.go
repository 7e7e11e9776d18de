package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/smallnest/tenantflow/rag"
)

// InMemoryVectorStore is a brute-force cosine similarity store.
type InMemoryVectorStore struct {
	mu         sync.RWMutex
	documents  []rag.Document
	embeddings [][]float32
	index      map[string]int
	embedder   rag.Embedder
}

var _ rag.VectorStore = (*InMemoryVectorStore)(nil)

// NewInMemoryVectorStore creates a store that embeds with embedder.
func NewInMemoryVectorStore(embedder rag.Embedder) *InMemoryVectorStore {
	return &InMemoryVectorStore{
		index:    make(map[string]int),
		embedder: embedder,
	}
}

// AddDocuments embeds documents lacking an embedding and stores them. A
// document whose id already exists replaces the stored one.
func (s *InMemoryVectorStore) AddDocuments(ctx context.Context, docs []rag.Document) ([]string, error) {
	var texts []string
	var missing []int
	for i, d := range docs {
		if len(d.Embedding) == 0 {
			texts = append(texts, d.Content)
			missing = append(missing, i)
		}
	}

	vectors := make([][]float32, len(docs))
	for i, d := range docs {
		vectors[i] = d.Embedding
	}
	if len(missing) > 0 {
		if s.embedder == nil {
			return nil, rag.ErrNoEmbedder
		}
		embedded, err := s.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed documents: %w", err)
		}
		if len(embedded) != len(missing) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d documents", len(embedded), len(missing))
		}
		for j, i := range missing {
			vectors[i] = embedded[j]
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, len(docs))
	for i, d := range docs {
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		d.Embedding = nil
		ids[i] = d.ID

		if pos, ok := s.index[d.ID]; ok {
			s.documents[pos] = d
			s.embeddings[pos] = vectors[i]
			continue
		}
		s.index[d.ID] = len(s.documents)
		s.documents = append(s.documents, d)
		s.embeddings = append(s.embeddings, vectors[i])
	}
	return ids, nil
}

// SimilaritySearch embeds query and returns the k closest documents.
func (s *InMemoryVectorStore) SimilaritySearch(ctx context.Context, query string, k int) ([]rag.SearchResult, error) {
	if s.embedder == nil {
		return nil, rag.ErrNoEmbedder
	}
	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return s.Search(ctx, vec, k, nil)
}

// Search ranks stored documents against an embedding. When filter is set,
// only documents whose metadata matches every filter entry are considered.
func (s *InMemoryVectorStore) Search(_ context.Context, query []float32, k int, filter map[string]any) ([]rag.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]rag.SearchResult, 0, len(s.documents))
	for i, doc := range s.documents {
		if !matchesFilter(doc, filter) {
			continue
		}
		results = append(results, rag.SearchResult{
			Document: doc,
			Score:    cosineSimilarity32(query, s.embeddings[i]),
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// Delete removes documents by id and reports how many were removed.
func (s *InMemoryVectorStore) Delete(_ context.Context, ids []string) int {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.documents[:0]
	vecs := s.embeddings[:0]
	removed := 0
	for i, d := range s.documents {
		if drop[d.ID] {
			removed++
			continue
		}
		docs = append(docs, d)
		vecs = append(vecs, s.embeddings[i])
	}
	s.documents = docs
	s.embeddings = vecs

	s.index = make(map[string]int, len(docs))
	for i, d := range docs {
		s.index[d.ID] = i
	}
	return removed
}

// Len returns the number of stored documents.
func (s *InMemoryVectorStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.documents)
}

func matchesFilter(doc rag.Document, filter map[string]any) bool {
	for key, value := range filter {
		docValue, exists := doc.Metadata[key]
		if !exists || docValue != value {
			return false
		}
	}
	return true
}

// cosineSimilarity32 calculates cosine similarity between two float32 vectors
func cosineSimilarity32(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
