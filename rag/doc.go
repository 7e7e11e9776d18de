// Package rag holds the retrieval contracts shared by the chat agent, the
// spam policy analyzer and article ingestion.
//
// A VectorStore ranks documents by similarity to a text query. The store
// subpackage provides an in-memory cosine store and adapters to and from
// langchaingo's vectorstores.VectorStore, so any langchaingo backend
// (pgvector, qdrant, chroma) can be plugged in:
//
//	vs := store.NewInMemoryVectorStore(store.NewHashEmbedder(256))
//	docs, _ := rag.LoadDir(ctx, "./knowledge", rag.LoaderOptions{ChunkSize: 800})
//	_, _ = vs.AddDocuments(ctx, docs)
//	results, _ := vs.SimilaritySearch(ctx, "refund policy", 4)
//	prompt := rag.BuildContext(results, 0)
package rag
