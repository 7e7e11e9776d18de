package chatagent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/smallnest/tenantflow/graph"
	"github.com/smallnest/tenantflow/llm/llmtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func drain(deltas <-chan string, errFn func() error) (string, error) {
	var sb strings.Builder
	for d := range deltas {
		sb.WriteString(d)
	}
	return sb.String(), errFn()
}

func script() []llmtest.Response {
	return []llmtest.Response{
		llmtest.Tools(llmtest.ToolCall("call_1", "echo", `{"input":"42"}`)),
		llmtest.Text("The tool said 42, so the answer is 42."),
	}
}

func TestStreamMatchesInvoke(t *testing.T) {
	t.Parallel()

	invoked := newAgent(t, Options{Model: llmtest.New(script()...), Tools: newCatalog(t)})
	final, err := invoked.Invoke(context.Background(), State{Messages: []Message{Human("q")}}, nil)
	require.NoError(t, err)

	streamed := newAgent(t, Options{Model: llmtest.New(script()...), Tools: newCatalog(t)})
	text, err := drain(Translate(streamed.Stream(context.Background(), State{Messages: []Message{Human("q")}}, nil)))
	require.NoError(t, err)

	assert.Equal(t, final.FinalAnswer(), text)
	assert.NotContains(t, text, "function")
}

func TestStreamDropsTextOfToolCallTurns(t *testing.T) {
	t.Parallel()

	turns := func() []llmtest.Response {
		return []llmtest.Response{
			{Text: "Let me check. ", ToolCalls: []llms.ToolCall{llmtest.ToolCall("call_1", "echo", `{"input":"42"}`)}},
			llmtest.Text("final answer"),
		}
	}

	invoked := newAgent(t, Options{Model: llmtest.New(turns()...), Tools: newCatalog(t)})
	final, err := invoked.Invoke(context.Background(), State{Messages: []Message{Human("q")}}, nil)
	require.NoError(t, err)
	require.Equal(t, "final answer", final.FinalAnswer())

	streamed := newAgent(t, Options{Model: llmtest.New(turns()...), Tools: newCatalog(t)})
	text, err := drain(Translate(streamed.Stream(context.Background(), State{Messages: []Message{Human("q")}}, nil)))
	require.NoError(t, err)
	assert.Equal(t, "final answer", text)
}

// blockingModel answers in one piece and ignores the streaming callback.
type blockingModel struct{ text string }

func (m blockingModel) GenerateContent(context.Context, []llms.MessageContent, ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.text}}}, nil
}

func (m blockingModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestStreamNonStreamingModel(t *testing.T) {
	t.Parallel()

	a := newAgent(t, Options{Model: blockingModel{text: "whole answer"}})
	text, err := drain(Translate(a.Stream(context.Background(), State{Messages: []Message{Human("q")}}, nil)))
	require.NoError(t, err)
	assert.Equal(t, "whole answer", text)
}

func TestTranslateSkipsToolCallMessages(t *testing.T) {
	t.Parallel()

	events := make(chan graph.Event, 9)
	events <- graph.NodeStart{Node: NodeGenerate, Step: 1}
	events <- graph.Token{Node: NodeGenerate, Text: `[{"id":"c1","type":"function","function":{"name":"echo","arguments":"{}"}}]`}
	events <- graph.ChainDelta[State]{Node: NodeGenerate, Step: 1, Delta: State{Messages: []Message{
		{Role: RoleAI, Content: "let me check", ToolCalls: []ToolCall{{ID: "c1", Name: "echo"}}},
	}}}
	events <- graph.NodeEnd{Node: NodeGenerate, Step: 1}
	events <- graph.NodeStart{Node: NodeInvokeTools, Step: 2}
	events <- graph.ChainDelta[State]{Node: NodeInvokeTools, Step: 2, Delta: State{Messages: []Message{ToolResult("c1", "echo", "ok")}}}
	events <- graph.NodeStart{Node: NodeGenerate, Step: 3}
	events <- graph.ChainDelta[State]{Node: NodeGenerate, Step: 3, Delta: State{Messages: []Message{AI("final")}}}
	events <- graph.ChainEnd[State]{}
	close(events)

	text, err := drain(Translate(events))
	require.NoError(t, err)
	assert.Equal(t, "final", text)
}

func TestTranslateFlushesThenStopsOnError(t *testing.T) {
	t.Parallel()

	boom := errors.New("node exploded")
	events := make(chan graph.Event, 4)
	events <- graph.NodeStart{Node: NodeGenerate, Step: 1}
	events <- graph.Token{Node: NodeGenerate, Text: "partial "}
	events <- graph.Token{Node: NodeGenerate, Text: "text"}
	events <- graph.Error{Node: NodeGenerate, Err: boom}
	close(events)

	text, err := drain(Translate(events))
	assert.Equal(t, "partial text", text)
	assert.ErrorIs(t, err, boom)
}

func TestTranslateReleasesTokensOnlyForAnswers(t *testing.T) {
	t.Parallel()

	events := make(chan graph.Event, 16)
	events <- graph.NodeStart{Node: NodeGenerate, Step: 1}
	events <- graph.Token{Node: NodeGenerate, Text: "thinking "}
	events <- graph.Token{Node: NodeGenerate, Text: "aloud"}
	events <- graph.ChainDelta[State]{Node: NodeGenerate, Step: 1, Delta: State{Messages: []Message{
		{Role: RoleAI, Content: "thinking aloud", ToolCalls: []ToolCall{{ID: "c1", Name: "echo"}}},
	}}}
	events <- graph.NodeEnd{Node: NodeGenerate, Step: 1}
	events <- graph.NodeStart{Node: NodeGenerate, Step: 3}
	events <- graph.Token{Node: NodeGenerate, Text: "the "}
	events <- graph.Token{Node: NodeGenerate, Text: "answer"}
	events <- graph.ChainDelta[State]{Node: NodeGenerate, Step: 3, Delta: State{Messages: []Message{AI("the answer")}}}
	events <- graph.NodeEnd{Node: NodeGenerate, Step: 3}
	events <- graph.ChainEnd[State]{}
	close(events)

	deltas, errFn := Translate(events)
	var got []string
	for d := range deltas {
		got = append(got, d)
	}
	require.NoError(t, errFn())
	assert.Equal(t, []string{"the ", "answer"}, got)
}

func TestTranslateUsesMessageWhenTokensDiffer(t *testing.T) {
	t.Parallel()

	events := make(chan graph.Event, 8)
	events <- graph.NodeStart{Node: NodeGenerate, Step: 1}
	events <- graph.Token{Node: NodeGenerate, Text: "half"}
	events <- graph.ChainDelta[State]{Node: NodeGenerate, Step: 1, Delta: State{Messages: []Message{AI(GenerationFailedMessage)}}}
	events <- graph.ChainEnd[State]{}
	close(events)

	text, err := drain(Translate(events))
	require.NoError(t, err)
	assert.Equal(t, GenerationFailedMessage, text)
}

func TestTranslateReportsIncompleteStream(t *testing.T) {
	t.Parallel()

	events := make(chan graph.Event, 4)
	events <- graph.NodeStart{Node: NodeGenerate, Step: 1}
	events <- graph.Token{Node: NodeGenerate, Text: "cut "}
	events <- graph.Token{Node: NodeGenerate, Text: "short"}
	close(events)

	text, err := drain(Translate(events))
	assert.Empty(t, text)
	assert.ErrorIs(t, err, graph.ErrStreamIncomplete)
}

func TestIsToolCallChunk(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want bool
	}{
		{`[{"id":"1","type":"function","function":{"name":"x"}}]`, true},
		{`[1, 2, 3]`, false},
		{`[see above]`, false},
		{`plain text`, false},
		{`[]`, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isToolCallChunk(tt.in), tt.in)
	}
}
