package rag

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildContext(t *testing.T) {
	t.Parallel()

	assert.Empty(t, BuildContext(nil, 0))

	results := []SearchResult{
		{Document: Document{Content: " first ", Metadata: map[string]any{"source": "a.md"}}},
		{Document: Document{Content: ""}},
		{Document: Document{Content: "third"}},
	}
	assert.Equal(t, "[1] first (source: a.md)\n[3] third", BuildContext(results, 0))

	long := []SearchResult{{Document: Document{Content: strings.Repeat("x", 50)}}}
	assert.Len(t, BuildContext(long, 10), 10)

	two := []SearchResult{
		{Document: Document{Content: "aaaa"}},
		{Document: Document{Content: "bbbb"}},
	}
	assert.Equal(t, "[1] aaaa", BuildContext(two, 12))
}

func TestLoadDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "policy.md"), []byte("Spam policy.\n\nNever share passwords."), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "faq.txt"), []byte("Refunds take 14 days."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "image.png"), []byte{0x89, 0x50}, 0o644))

	docs, err := LoadDir(context.Background(), dir, LoaderOptions{ChunkSize: 500})
	require.NoError(t, err)
	require.NotEmpty(t, docs)

	sources := map[string]bool{}
	for _, d := range docs {
		src, _ := d.Metadata["source"].(string)
		sources[filepath.Base(src)] = true
		assert.NotEmpty(t, d.ID)
		assert.NotEmpty(t, strings.TrimSpace(d.Content))
	}
	assert.True(t, sources["policy.md"])
	assert.True(t, sources["faq.txt"])
	assert.False(t, sources["image.png"])

	_, err = LoadDir(context.Background(), filepath.Join(dir, "missing"), LoaderOptions{})
	assert.Error(t, err)
}
