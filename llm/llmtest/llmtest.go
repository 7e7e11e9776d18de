// Package llmtest provides a scripted llms.Model for tests and offline runs.
package llmtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// ErrExhausted is returned when the script has no response left.
var ErrExhausted = errors.New("llmtest: script exhausted")

// Response is one scripted model turn.
type Response struct {
	Text      string
	ToolCalls []llms.ToolCall

	// Chunks overrides how Text is streamed. When empty, Text is split after
	// every space.
	Chunks []string

	// Err makes the call fail.
	Err error
}

// Text returns a plain text response.
func Text(s string) Response {
	return Response{Text: s}
}

// Fail returns a failing response.
func Fail(err error) Response {
	return Response{Err: err}
}

// Tools returns a response asking for the given tool calls.
func Tools(calls ...llms.ToolCall) Response {
	return Response{ToolCalls: calls}
}

// ToolCall builds a function tool call with JSON arguments.
func ToolCall(id, name string, args any) llms.ToolCall {
	var raw string
	switch a := args.(type) {
	case string:
		raw = a
	default:
		b, err := json.Marshal(a)
		if err != nil {
			panic(err)
		}
		raw = string(b)
	}
	return llms.ToolCall{
		ID:           id,
		Type:         "function",
		FunctionCall: &llms.FunctionCall{Name: name, Arguments: raw},
	}
}

// Call records one request to the model.
type Call struct {
	Messages []llms.MessageContent
	Options  llms.CallOptions
}

// Model replays scripted responses in order. Once the script is exhausted
// the fallback is returned on every call, or ErrExhausted when none is set.
type Model struct {
	mu        sync.Mutex
	responses []Response
	fallback  *Response
	calls     []Call
}

var _ llms.Model = (*Model)(nil)

// New returns a model that answers with the given responses in order.
func New(responses ...Response) *Model {
	return &Model{responses: responses}
}

// Repeat returns a model that always answers with r.
func Repeat(r Response) *Model {
	return &Model{fallback: &r}
}

// Echo returns a model that answers with the last human message.
func Echo() *Model {
	return &Model{fallback: &Response{}}
}

// Push appends responses to the script.
func (m *Model) Push(responses ...Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, responses...)
}

// Calls returns the recorded requests.
func (m *Model) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

func (m *Model) next(messages []llms.MessageContent, opts llms.CallOptions) (Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, Call{Messages: messages, Options: opts})
	if len(m.responses) > 0 {
		r := m.responses[0]
		m.responses = m.responses[1:]
		return r, nil
	}
	if m.fallback == nil {
		return Response{}, ErrExhausted
	}
	r := *m.fallback
	if r.Text == "" && len(r.ToolCalls) == 0 && r.Err == nil {
		r.Text = lastHuman(messages)
	}
	return r, nil
}

// GenerateContent implements llms.Model.
func (m *Model) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	r, err := m.next(messages, opts)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.Err != nil {
		return nil, r.Err
	}

	if opts.StreamingFunc != nil {
		for _, chunk := range chunks(r) {
			if err := opts.StreamingFunc(ctx, []byte(chunk)); err != nil {
				return nil, err
			}
		}
		if len(r.ToolCalls) > 0 {
			// Streaming providers report tool calls as a JSON chunk.
			payload, err := json.Marshal(toolCallChunk(r.ToolCalls))
			if err != nil {
				return nil, err
			}
			if err := opts.StreamingFunc(ctx, payload); err != nil {
				return nil, err
			}
		}
	}

	stop := "stop"
	if len(r.ToolCalls) > 0 {
		stop = "tool_calls"
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content:    r.Text,
		ToolCalls:  append([]llms.ToolCall(nil), r.ToolCalls...),
		StopReason: stop,
	}}}, nil
}

// Call implements llms.Model.
func (m *Model) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func chunks(r Response) []string {
	if len(r.Chunks) > 0 {
		return r.Chunks
	}
	if r.Text == "" {
		return nil
	}
	return strings.SplitAfter(r.Text, " ")
}

type chunkCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

func toolCallChunk(calls []llms.ToolCall) []chunkCall {
	out := make([]chunkCall, 0, len(calls))
	for _, tc := range calls {
		c := chunkCall{ID: tc.ID, Type: "function"}
		if tc.FunctionCall != nil {
			c.Function.Name = tc.FunctionCall.Name
			c.Function.Arguments = tc.FunctionCall.Arguments
		}
		out = append(out, c)
	}
	return out
}

func lastHuman(messages []llms.MessageContent) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != llms.ChatMessageTypeHuman {
			continue
		}
		var sb strings.Builder
		for _, p := range messages[i].Parts {
			if t, ok := p.(llms.TextContent); ok {
				sb.WriteString(t.Text)
			}
		}
		return fmt.Sprintf("echo: %s", sb.String())
	}
	return "echo:"
}
