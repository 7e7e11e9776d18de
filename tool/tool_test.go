package tool

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smallnest/tenantflow/rag"
	"github.com/smallnest/tenantflow/rag/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/tools"
)

type echoTool struct{ name string }

func (e echoTool) Name() string        { return e.name }
func (e echoTool) Description() string { return "echoes" }
func (e echoTool) Call(_ context.Context, input string) (string, error) {
	return "echo:" + input, nil
}

type failTool struct{}

func (failTool) Name() string        { return "fail" }
func (failTool) Description() string { return "always fails" }
func (failTool) Call(context.Context, string) (string, error) {
	return "", errors.New("broken")
}

func TestNewCatalogValidates(t *testing.T) {
	t.Parallel()

	_, err := NewCatalog(echoTool{name: "a"}, echoTool{name: "a"})
	assert.ErrorIs(t, err, ErrDuplicateTool)

	_, err = NewCatalog(echoTool{name: " "})
	assert.Error(t, err)

	_, err = NewCatalog(nil)
	assert.Error(t, err)

	c, err := NewCatalog(echoTool{name: "b"}, echoTool{name: "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, c.Names())
	assert.Equal(t, 2, c.Len())
}

func TestDefinitions(t *testing.T) {
	t.Parallel()

	c, err := NewCatalog(echoTool{name: "echo"}, CurrentTime{})
	require.NoError(t, err)

	defs := c.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "function", defs[0].Type)
	assert.Equal(t, "echo", defs[0].Function.Name)
	props := defs[0].Function.Parameters.(map[string]any)["properties"].(map[string]any)
	assert.Contains(t, props, "input")

	props = defs[1].Function.Parameters.(map[string]any)["properties"].(map[string]any)
	assert.Contains(t, props, "timezone")

	var nilCatalog *Catalog
	assert.Nil(t, nilCatalog.Definitions())
	assert.Zero(t, nilCatalog.Len())
}

func TestDispatch(t *testing.T) {
	t.Parallel()

	c, err := NewCatalog(echoTool{name: "echo"}, failTool{})
	require.NoError(t, err)
	ctx := context.Background()

	assert.Equal(t, "echo:hello", c.Dispatch(ctx, "echo", `{"input":"hello"}`))
	assert.Equal(t, "echo:not json", c.Dispatch(ctx, "echo", "not json"))
	assert.Equal(t, `echo:{"q":1}`, c.Dispatch(ctx, "echo", `{"q":1}`))
	assert.Equal(t, "Error: broken", c.Dispatch(ctx, "fail", "{}"))
	assert.Equal(t, "Error: unknown tool: nope", c.Dispatch(ctx, "nope", "{}"))

	_, err = c.Invoke(ctx, "nope", "{}")
	assert.ErrorIs(t, err, ErrUnknownTool)

	var nilCatalog *Catalog
	assert.Contains(t, nilCatalog.Dispatch(ctx, "echo", ""), "unknown tool")
}

func TestCalculator(t *testing.T) {
	t.Parallel()

	c, err := NewCatalog(Defaults(nil, nil)...)
	require.NoError(t, err)
	assert.Equal(t, []string{"calculator", "current_time"}, c.Names())

	assert.Equal(t, "6", c.Dispatch(context.Background(), "calculator", `{"input":"2*3"}`))
}

func TestCurrentTime(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	ct := CurrentTime{Now: func() time.Time { return fixed }}

	out, err := ct.Call(context.Background(), "{}")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-14T15:09:26Z (Saturday)", out)

	out, err = ct.Call(context.Background(), `{"timezone":"Asia/Tokyo"}`)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-15T00:09:26+09:00 (Sunday)", out)

	_, err = ct.Call(context.Background(), `{"timezone":"Mars/Olympus"}`)
	assert.Error(t, err)
}

func TestKnowledgeSearch(t *testing.T) {
	t.Parallel()

	vs := store.NewInMemoryVectorStore(store.NewHashEmbedder(64))
	_, err := vs.AddDocuments(context.Background(), []rag.Document{
		{ID: "p1", Content: "Phishing emails imitate banks to steal passwords"},
		{ID: "p2", Content: "Refunds are processed in 14 days"},
	})
	require.NoError(t, err)

	ks := NewKnowledgeSearch(vs, 1)
	out, err := ks.Call(context.Background(), `{"query":"phishing banks"}`)
	require.NoError(t, err)
	assert.Equal(t, "[1] Phishing emails imitate banks to steal passwords", out)

	out, err = ks.Call(context.Background(), "refunds days")
	require.NoError(t, err)
	assert.Contains(t, out, "Refunds")

	_, err = ks.Call(context.Background(), `{"query":"  "}`)
	assert.Error(t, err)

	empty := NewKnowledgeSearch(store.NewInMemoryVectorStore(store.NewHashEmbedder(8)), 0)
	out, err = empty.Call(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, "No relevant passages found", out)
}

func TestBraveSearch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-Subscription-Token"))
		assert.Equal(t, "golang graphs", r.URL.Query().Get("q"))
		assert.Equal(t, "3", r.URL.Query().Get("count"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"web":{"results":[{"title":"Go","url":"https://go.dev","description":"The Go language"}]}}`)
	}))
	defer srv.Close()

	b, err := NewBraveSearch("test-key", WithBraveBaseURL(srv.URL), WithBraveCount(3))
	require.NoError(t, err)

	c, err := NewCatalog(b)
	require.NoError(t, err)
	out := c.Dispatch(context.Background(), "web_search", `{"input":"golang graphs"}`)
	assert.Equal(t, "1. Title: Go\nURL: https://go.dev\nDescription: The Go language", out)
}

func TestBraveSearchErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") == "empty" {
			fmt.Fprint(w, `{"web":{"results":[]}}`)
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	b, err := NewBraveSearch("k", WithBraveBaseURL(srv.URL), WithBraveCount(100))
	require.NoError(t, err)
	assert.Equal(t, 20, b.Count)

	_, err = b.Call(context.Background(), "limited")
	assert.ErrorContains(t, err, "429")

	out, err := b.Call(context.Background(), "empty")
	require.NoError(t, err)
	assert.Equal(t, "No results found", out)

	_, err = b.Call(context.Background(), " ")
	assert.Error(t, err)
}

func TestNewBraveSearchRequiresKey(t *testing.T) {
	t.Setenv("BRAVE_API_KEY", "")
	_, err := NewBraveSearch("")
	assert.Error(t, err)
}

var _ tools.Tool = (*BraveSearch)(nil)
var _ Parameterized = (*KnowledgeSearch)(nil)
var _ Parameterized = CurrentTime{}
