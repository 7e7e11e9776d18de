package rag

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
)

// LoaderOptions controls how knowledge files are chunked.
type LoaderOptions struct {
	ChunkSize    int
	ChunkOverlap int

	// Extensions lists the file suffixes to load. Defaults to .txt and .md.
	Extensions []string
}

// LoadDir reads every matching file under dir with langchaingo's text
// loader and splits it with the recursive character splitter. Each chunk
// carries "source" and "chunk" metadata and a stable id.
func LoadDir(ctx context.Context, dir string, opts LoaderOptions) ([]Document, error) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1000
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = opts.ChunkSize / 5
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = []string{".txt", ".md"}
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(opts.ChunkSize),
		textsplitter.WithChunkOverlap(opts.ChunkOverlap),
	)

	var docs []Document
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !hasExt(path, opts.Extensions) {
			return nil
		}
		chunks, err := loadFile(ctx, path, splitter)
		if err != nil {
			return err
		}
		docs = append(docs, chunks...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", dir, err)
	}
	return docs, nil
}

func loadFile(ctx context.Context, path string, splitter textsplitter.TextSplitter) ([]Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	chunks, err := documentloaders.NewText(f).LoadAndSplit(ctx, splitter)
	if err != nil {
		return nil, fmt.Errorf("split %s: %w", path, err)
	}
	return fromSchema(chunks, path), nil
}

func fromSchema(chunks []schema.Document, source string) []Document {
	out := make([]Document, 0, len(chunks))
	for i, c := range chunks {
		if strings.TrimSpace(c.PageContent) == "" {
			continue
		}
		meta := make(map[string]any, len(c.Metadata)+2)
		for k, v := range c.Metadata {
			meta[k] = v
		}
		meta["source"] = source
		meta["chunk"] = i
		out = append(out, Document{
			ID:       fmt.Sprintf("%s#%d", source, i),
			Content:  c.PageContent,
			Metadata: meta,
		})
	}
	return out
}

func hasExt(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}
