package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/smallnest/tenantflow/rag"
)

// KnowledgeSearch is the knowledge_search tool: a similarity search over
// the tenant knowledge base.
type KnowledgeSearch struct {
	store rag.VectorStore
	k     int
}

// NewKnowledgeSearch returns a knowledge_search tool over store. k is the
// default number of results (4 when <= 0).
func NewKnowledgeSearch(store rag.VectorStore, k int) *KnowledgeSearch {
	if k <= 0 {
		k = 4
	}
	return &KnowledgeSearch{store: store, k: k}
}

func (t *KnowledgeSearch) Name() string { return "knowledge_search" }

func (t *KnowledgeSearch) Description() string {
	return "Search the internal knowledge base (policies, FAQs, product docs) for passages relevant to a query."
}

// Parameters implements Parameterized.
func (t *KnowledgeSearch) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string", "description": "What to look up"},
			"k":     map[string]any{"type": "integer", "description": "Number of passages, default 4"},
		},
		"required": []string{"query"},
	}
}

// Call accepts {"query": "...", "k": 3} or a bare query string.
func (t *KnowledgeSearch) Call(ctx context.Context, input string) (string, error) {
	var args struct {
		Query string `json:"query"`
		K     int    `json:"k"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		args.Query = input
	}
	args.Query = strings.TrimSpace(args.Query)
	if args.Query == "" {
		return "", fmt.Errorf("empty query")
	}
	k := t.k
	if args.K > 0 {
		k = args.K
	}

	results, err := t.store.SimilaritySearch(ctx, args.Query, k)
	if err != nil {
		return "", fmt.Errorf("knowledge search: %w", err)
	}
	if len(results) == 0 {
		return "No relevant passages found", nil
	}
	return rag.BuildContext(results, 0), nil
}
