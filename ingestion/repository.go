package ingestion

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/smallnest/tenantflow/rag"
)

// Repository persists the records of one kind.
type Repository interface {
	Save(ctx context.Context, r Record) (bool, error)
	SaveBatch(ctx context.Context, records []Record) (int, error)
}

// Repositories maps each kind to its repository.
type Repositories map[Kind]Repository

// Check reports the first kind without a repository.
func (rs Repositories) Check() error {
	for _, k := range Kinds() {
		if rs[k] == nil {
			return fmt.Errorf("%w for %s", ErrMissingRepository, k)
		}
	}
	return nil
}

// MemoryRepository keeps records in memory.
type MemoryRepository struct {
	mu   sync.Mutex
	rows []Record
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

// Save implements Repository.
func (m *MemoryRepository) Save(ctx context.Context, r Record) (bool, error) {
	n, err := m.SaveBatch(ctx, []Record{r})
	return n == 1, err
}

// SaveBatch implements Repository.
func (m *MemoryRepository) SaveBatch(ctx context.Context, records []Record) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		cp := make(Record, len(r))
		for k, v := range r {
			cp[k] = v
		}
		m.rows = append(m.rows, cp)
	}
	return len(records), nil
}

// Rows returns the saved records.
func (m *MemoryRepository) Rows() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.rows...)
}

// VectorRepository writes article records into a vector store.
type VectorRepository struct {
	store rag.VectorStore
	kind  Kind
}

// NewVectorRepository returns a repository over store.
func NewVectorRepository(store rag.VectorStore, kind Kind) *VectorRepository {
	return &VectorRepository{store: store, kind: kind}
}

// Save implements Repository.
func (v *VectorRepository) Save(ctx context.Context, r Record) (bool, error) {
	n, err := v.SaveBatch(ctx, []Record{r})
	return n == 1, err
}

// SaveBatch implements Repository. The document text is the title followed
// by the body; other fields become metadata.
func (v *VectorRepository) SaveBatch(ctx context.Context, records []Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	docs := make([]rag.Document, 0, len(records))
	for _, r := range records {
		title, _ := r["title"].(string)
		body, _ := r["body"].(string)
		meta := map[string]any{"kind": string(v.kind), "source": "upload:" + string(v.kind)}
		for k, val := range r {
			if k != "body" && k != "id" {
				meta[k] = val
			}
		}
		id, _ := r["id"].(string)
		docs = append(docs, rag.Document{
			ID:       id,
			Content:  strings.TrimSpace(title + "\n\n" + body),
			Metadata: meta,
		})
	}
	ids, err := v.store.AddDocuments(ctx, docs)
	if err != nil {
		return 0, fmt.Errorf("add %d documents: %w", len(docs), err)
	}
	return len(ids), nil
}
