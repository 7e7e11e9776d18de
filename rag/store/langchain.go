package store

import (
	"context"
	"fmt"

	"github.com/smallnest/tenantflow/rag"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

// LangChainStore adapts a langchaingo vector store to rag.VectorStore.
type LangChainStore struct {
	store vectorstores.VectorStore
	opts  []vectorstores.Option
}

var _ rag.VectorStore = (*LangChainStore)(nil)

// NewLangChainStore wraps store. opts are passed to every call, e.g. a
// namespace or score threshold.
func NewLangChainStore(store vectorstores.VectorStore, opts ...vectorstores.Option) *LangChainStore {
	return &LangChainStore{store: store, opts: opts}
}

// AddDocuments implements rag.VectorStore. The document id travels in the
// "id" metadata key since langchaingo documents have no id field.
func (l *LangChainStore) AddDocuments(ctx context.Context, docs []rag.Document) ([]string, error) {
	schemaDocs := make([]schema.Document, len(docs))
	for i, doc := range docs {
		meta := make(map[string]any, len(doc.Metadata)+1)
		for k, v := range doc.Metadata {
			meta[k] = v
		}
		if doc.ID != "" {
			meta["id"] = doc.ID
		}
		schemaDocs[i] = schema.Document{PageContent: doc.Content, Metadata: meta}
	}

	ids, err := l.store.AddDocuments(ctx, schemaDocs, l.opts...)
	if err != nil {
		return nil, err
	}

	out := make([]string, len(docs))
	for i, doc := range docs {
		switch {
		case doc.ID != "":
			out[i] = doc.ID
		case i < len(ids):
			out[i] = ids[i]
		}
	}
	return out, nil
}

// SimilaritySearch implements rag.VectorStore.
func (l *LangChainStore) SimilaritySearch(ctx context.Context, query string, k int) ([]rag.SearchResult, error) {
	docs, err := l.store.SimilaritySearch(ctx, query, k, l.opts...)
	if err != nil {
		return nil, err
	}

	results := make([]rag.SearchResult, len(docs))
	for i, d := range docs {
		meta := make(map[string]any, len(d.Metadata))
		for k, v := range d.Metadata {
			meta[k] = v
		}
		id, _ := meta["id"].(string)
		if id == "" {
			id = fmt.Sprintf("doc_%d", i)
		}
		results[i] = rag.SearchResult{
			Document: rag.Document{ID: id, Content: d.PageContent, Metadata: meta},
			Score:    float64(d.Score),
		}
	}
	return results, nil
}

// vectorStoreAdapter exposes a rag.VectorStore through the langchaingo
// interface so langchaingo chains and retrievers can use it.
type vectorStoreAdapter struct {
	store rag.VectorStore
}

// AsLangChain returns store as a langchaingo vectorstores.VectorStore.
// The ScoreThreshold option is honored; other options are ignored.
func AsLangChain(store rag.VectorStore) vectorstores.VectorStore {
	return vectorStoreAdapter{store: store}
}

func (a vectorStoreAdapter) AddDocuments(ctx context.Context, docs []schema.Document, _ ...vectorstores.Option) ([]string, error) {
	in := make([]rag.Document, len(docs))
	for i, d := range docs {
		id, _ := d.Metadata["id"].(string)
		in[i] = rag.Document{ID: id, Content: d.PageContent, Metadata: d.Metadata}
	}
	return a.store.AddDocuments(ctx, in)
}

func (a vectorStoreAdapter) SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error) {
	var opts vectorstores.Options
	for _, o := range options {
		o(&opts)
	}

	results, err := a.store.SimilaritySearch(ctx, query, numDocuments)
	if err != nil {
		return nil, err
	}

	out := make([]schema.Document, 0, len(results))
	for _, r := range results {
		if opts.ScoreThreshold > 0 && float32(r.Score) < opts.ScoreThreshold {
			continue
		}
		meta := make(map[string]any, len(r.Metadata)+1)
		for k, v := range r.Metadata {
			meta[k] = v
		}
		meta["id"] = r.ID
		out = append(out, schema.Document{PageContent: r.Content, Metadata: meta, Score: float32(r.Score)})
	}
	return out, nil
}
