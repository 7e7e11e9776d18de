package llmtest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func human(s string) []llms.MessageContent {
	return []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, s)}
}

func TestScriptOrder(t *testing.T) {
	t.Parallel()

	m := New(Text("one"), Text("two"))
	for _, want := range []string{"one", "two"} {
		got, err := m.Call(context.Background(), "q")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := m.Call(context.Background(), "q")
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Len(t, m.Calls(), 3)
}

func TestToolCallsAndOptions(t *testing.T) {
	t.Parallel()

	m := New(Tools(ToolCall("c1", "calculator", map[string]string{"expression": "1+1"})))
	tools := []llms.Tool{{Type: "function", Function: &llms.FunctionDefinition{Name: "calculator"}}}

	resp, err := m.GenerateContent(context.Background(), human("sum"), llms.WithTools(tools))
	require.NoError(t, err)
	require.Len(t, resp.Choices[0].ToolCalls, 1)
	assert.Equal(t, `{"expression":"1+1"}`, resp.Choices[0].ToolCalls[0].FunctionCall.Arguments)
	assert.Equal(t, "tool_calls", resp.Choices[0].StopReason)

	calls := m.Calls()
	require.Len(t, calls, 1)
	assert.Len(t, calls[0].Options.Tools, 1)
}

func TestStreamingChunks(t *testing.T) {
	t.Parallel()

	m := New(Text("the quick fox"), Tools(ToolCall("c1", "current_time", `{}`)))

	var got []string
	stream := llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
		got = append(got, string(chunk))
		return nil
	})

	resp, err := m.GenerateContent(context.Background(), human("x"), stream)
	require.NoError(t, err)
	assert.Equal(t, []string{"the ", "quick ", "fox"}, got)
	assert.Equal(t, "the quick fox", strings.Join(got, ""))
	assert.Equal(t, "the quick fox", resp.Choices[0].Content)

	got = nil
	_, err = m.GenerateContent(context.Background(), human("x"), stream)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got[0], `"function"`)
	assert.True(t, strings.HasPrefix(got[0], "["))
}

func TestFailuresAndCancel(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	m := New(Fail(boom), Text("late"))
	_, err := m.Call(context.Background(), "q")
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Call(ctx, "q")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEchoAndRepeat(t *testing.T) {
	t.Parallel()

	e := Echo()
	got, err := e.Call(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, "echo: ping", got)

	r := Repeat(Text("same"))
	for i := 0; i < 3; i++ {
		got, err := r.Call(context.Background(), "q")
		require.NoError(t, err)
		assert.Equal(t, "same", got)
	}

	r.Push(Text("pushed"))
	got, err = r.Call(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "pushed", got)
}
