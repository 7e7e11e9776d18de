package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoEmbedder is returned when a document has no embedding and the store
// has no embedder to compute one.
var ErrNoEmbedder = errors.New("no embedder configured")

// Document is a retrievable piece of text.
type Document struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float32      `json:"-"`
}

// SearchResult is a document with its similarity score, higher is closer.
type SearchResult struct {
	Document
	Score float64 `json:"score"`
}

// Embedder turns text into vectors. Every langchaingo embeddings.Embedder
// satisfies it.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorStore is the similarity search collaborator used by retrieval
// nodes, the knowledge_search tool and article ingestion.
type VectorStore interface {
	// AddDocuments stores docs and returns their ids, assigning ids to
	// documents that have none.
	AddDocuments(ctx context.Context, docs []Document) ([]string, error)

	// SimilaritySearch returns at most k documents ranked by similarity.
	SimilaritySearch(ctx context.Context, query string, k int) ([]SearchResult, error)
}

// DefaultContextChars bounds the context string spliced into prompts.
const DefaultContextChars = 4000

// BuildContext renders search results as a numbered context block, cut at
// maxChars (DefaultContextChars when <= 0). Empty results give "".
func BuildContext(results []SearchResult, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultContextChars
	}

	var sb strings.Builder
	for i, r := range results {
		content := strings.TrimSpace(r.Content)
		if content == "" {
			continue
		}
		entry := fmt.Sprintf("[%d] %s", i+1, content)
		if src, ok := r.Metadata["source"]; ok {
			entry += fmt.Sprintf(" (source: %v)", src)
		}
		entry += "\n"

		if sb.Len()+len(entry) > maxChars {
			if sb.Len() == 0 {
				sb.WriteString(entry[:maxChars])
			}
			break
		}
		sb.WriteString(entry)
	}
	return strings.TrimRight(sb.String(), "\n")
}
