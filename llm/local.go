package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/llms"
)

// ErrEmptyResponse is returned when the endpoint answers without choices.
var ErrEmptyResponse = errors.New("no response")

const defaultLocalBaseURL = "http://localhost:8000/v1"

// LocalLLM talks to an OpenAI-compatible chat completions endpoint.
type LocalLLM struct {
	client         *goopenai.Client
	model          string
	embeddingModel string
}

var _ llms.Model = (*LocalLLM)(nil)

type localOptions struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	embedding  string
}

// LocalOption configures a LocalLLM.
type LocalOption func(*localOptions)

// WithLocalModel sets the model name sent with every request.
func WithLocalModel(model string) LocalOption {
	return func(o *localOptions) {
		if model != "" {
			o.model = model
		}
	}
}

// WithLocalAPIKey sets the bearer token. Most local servers ignore it.
func WithLocalAPIKey(key string) LocalOption {
	return func(o *localOptions) {
		if key != "" {
			o.apiKey = key
		}
	}
}

// WithLocalBaseURL sets the endpoint, e.g. "http://localhost:8000/v1".
func WithLocalBaseURL(baseURL string) LocalOption {
	return func(o *localOptions) {
		o.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithLocalEmbeddingModel sets the model used by CreateEmbedding.
func WithLocalEmbeddingModel(model string) LocalOption {
	return func(o *localOptions) {
		if model != "" {
			o.embedding = model
		}
	}
}

// WithLocalHTTPClient sets the HTTP client.
func WithLocalHTTPClient(c *http.Client) LocalOption {
	return func(o *localOptions) {
		o.httpClient = c
	}
}

// NewLocal returns a LocalLLM. The base URL defaults to LOCAL_LLM_BASE_URL
// or http://localhost:8000/v1.
func NewLocal(opts ...LocalOption) (*LocalLLM, error) {
	o := &localOptions{
		apiKey:    "local",
		model:     "default",
		baseURL:   defaultLocalBaseURL,
		embedding: string(goopenai.SmallEmbedding3),
	}
	if env := os.Getenv("LOCAL_LLM_BASE_URL"); env != "" {
		o.baseURL = env
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.baseURL == "" {
		return nil, fmt.Errorf("local provider: base URL required")
	}

	cfg := goopenai.DefaultConfig(o.apiKey)
	cfg.BaseURL = o.baseURL
	if o.httpClient != nil {
		cfg.HTTPClient = o.httpClient
	}
	return &LocalLLM{
		client:         goopenai.NewClientWithConfig(cfg),
		model:          o.model,
		embeddingModel: o.embedding,
	}, nil
}

// Call generates a response for a single prompt.
func (l *LocalLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, l, prompt, options...)
}

// GenerateContent implements llms.Model. Tools from the call options are
// forwarded; returned tool calls are mapped to llms.ToolCall. With a
// streaming func set, text deltas are streamed as they arrive.
func (l *LocalLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := &llms.CallOptions{}
	for _, opt := range options {
		opt(opts)
	}

	req := goopenai.ChatCompletionRequest{
		Model:       l.model,
		Messages:    toChatMessages(messages),
		Temperature: float32(opts.Temperature),
		MaxTokens:   opts.MaxTokens,
	}
	if opts.Model != "" {
		req.Model = opts.Model
	}
	for _, t := range opts.Tools {
		if t.Function == nil {
			continue
		}
		req.Tools = append(req.Tools, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			},
		})
	}

	if opts.StreamingFunc != nil {
		return l.stream(ctx, req, opts.StreamingFunc)
	}

	resp, err := l.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	msg := resp.Choices[0].Message
	choice := &llms.ContentChoice{
		Content:    msg.Content,
		StopReason: string(resp.Choices[0].FinishReason),
		GenerationInfo: map[string]any{
			"prompt_tokens":     resp.Usage.PromptTokens,
			"completion_tokens": resp.Usage.CompletionTokens,
			"total_tokens":      resp.Usage.TotalTokens,
		},
	}
	for _, tc := range msg.ToolCalls {
		choice.ToolCalls = append(choice.ToolCalls, fromOpenAIToolCall(tc))
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{choice}}, nil
}

// CreateEmbedding embeds texts, making LocalLLM an embeddings.EmbedderClient.
func (l *LocalLLM) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := l.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequestStrings{
		Input: texts,
		Model: goopenai.EmbeddingModel(l.embeddingModel),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding endpoint returned %d vectors for %d texts", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

func (l *LocalLLM) stream(ctx context.Context, req goopenai.ChatCompletionRequest, fn func(context.Context, []byte) error) (*llms.ContentResponse, error) {
	req.Stream = true
	s, err := l.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	var (
		content strings.Builder
		stop    string
		calls   = map[int]*goopenai.ToolCall{}
	)
	for {
		chunk, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		c := chunk.Choices[0]
		if c.FinishReason != "" {
			stop = string(c.FinishReason)
		}
		if c.Delta.Content != "" {
			content.WriteString(c.Delta.Content)
			if err := fn(ctx, []byte(c.Delta.Content)); err != nil {
				return nil, err
			}
		}
		for i, tc := range c.Delta.ToolCalls {
			idx := i
			if tc.Index != nil {
				idx = *tc.Index
			}
			acc, ok := calls[idx]
			if !ok {
				acc = &goopenai.ToolCall{Type: goopenai.ToolTypeFunction}
				calls[idx] = acc
			}
			if tc.ID != "" {
				acc.ID = tc.ID
			}
			if tc.Function.Name != "" {
				acc.Function.Name = tc.Function.Name
			}
			acc.Function.Arguments += tc.Function.Arguments
		}
	}

	choice := &llms.ContentChoice{Content: content.String(), StopReason: stop}
	idxs := make([]int, 0, len(calls))
	for idx := range calls {
		idxs = append(idxs, idx)
	}
	sort.Ints(idxs)
	for _, idx := range idxs {
		choice.ToolCalls = append(choice.ToolCalls, fromOpenAIToolCall(*calls[idx]))
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{choice}}, nil
}

func fromOpenAIToolCall(tc goopenai.ToolCall) llms.ToolCall {
	return llms.ToolCall{
		ID:   tc.ID,
		Type: string(goopenai.ToolTypeFunction),
		FunctionCall: &llms.FunctionCall{
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		},
	}
}

func toChatMessages(messages []llms.MessageContent) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		var (
			text  strings.Builder
			calls []goopenai.ToolCall
		)
		for _, part := range msg.Parts {
			switch p := part.(type) {
			case llms.TextContent:
				text.WriteString(p.Text)
			case llms.ToolCall:
				if p.FunctionCall == nil {
					continue
				}
				calls = append(calls, goopenai.ToolCall{
					ID:       p.ID,
					Type:     goopenai.ToolTypeFunction,
					Function: goopenai.FunctionCall{Name: p.FunctionCall.Name, Arguments: p.FunctionCall.Arguments},
				})
			case llms.ToolCallResponse:
				// Each tool result is its own message.
				out = append(out, goopenai.ChatCompletionMessage{
					Role:       goopenai.ChatMessageRoleTool,
					Content:    p.Content,
					Name:       p.Name,
					ToolCallID: p.ToolCallID,
				})
			}
		}

		var role string
		switch msg.Role {
		case llms.ChatMessageTypeSystem:
			role = goopenai.ChatMessageRoleSystem
		case llms.ChatMessageTypeAI:
			role = goopenai.ChatMessageRoleAssistant
		case llms.ChatMessageTypeTool:
			continue
		default:
			role = goopenai.ChatMessageRoleUser
		}
		out = append(out, goopenai.ChatCompletionMessage{
			Role:      role,
			Content:   text.String(),
			ToolCalls: calls,
		})
	}
	return out
}
