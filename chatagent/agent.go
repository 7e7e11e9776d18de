package chatagent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/smallnest/tenantflow/collab"
	"github.com/smallnest/tenantflow/graph"
	"github.com/smallnest/tenantflow/llm"
	"github.com/smallnest/tenantflow/log"
	"github.com/smallnest/tenantflow/rag"
	"github.com/smallnest/tenantflow/tool"
	"github.com/tmc/langchaingo/llms"
)

// Node names.
const (
	NodeRetrieve    = "retrieve"
	NodeGenerate    = "generate"
	NodeInvokeTools = "invoke_tools"
)

const (
	// DefaultSystemPrompt is used when Options.SystemPrompt is empty.
	DefaultSystemPrompt = "You are a helpful assistant. Answer concisely and use the available tools when they help."

	// DefaultMaxToolHops bounds the generate/invoke_tools loop.
	DefaultMaxToolHops = 5

	// MaxToolHopsMessage is the answer once the tool loop hits its limit.
	MaxToolHopsMessage = "I stopped after reaching the maximum number of tool calls for one request. Please try a simpler or more specific question."

	// GenerationFailedMessage is the answer when the model cannot be reached.
	GenerationFailedMessage = "Sorry, I could not generate a response right now. Please try again later."
)

// Options configures a chat agent.
type Options struct {
	Model llms.Model

	// Provider decides whether the tool catalog is bound to the model. The
	// zero value means the capability is unknown and tools are bound.
	Provider llm.Provider

	Tools *tool.Catalog

	// Retriever enables the retrieve node.
	Retriever rag.VectorStore
	K         int

	SystemPrompt string
	MaxToolHops  int

	Dispatcher *collab.Dispatcher
	Logger     log.Logger
	Tracer     *graph.Tracer
}

// Agent is a compiled chat graph:
//
//	[retrieve] -> generate -> (invoke_tools -> generate)* -> END
type Agent struct {
	opts     Options
	runnable *graph.Runnable[State]
}

// New builds and compiles the chat graph.
func New(opts Options) (*Agent, error) {
	if opts.Model == nil {
		return nil, errors.New("chatagent: model is required")
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if opts.MaxToolHops <= 0 {
		opts.MaxToolHops = DefaultMaxToolHops
	}
	if opts.K <= 0 {
		opts.K = 4
	}
	opts.Logger = log.OrDefault(opts.Logger)

	a := &Agent{opts: opts}

	workflow := graph.NewStateGraph[State]()
	workflow.SetName("chat_agent")

	if opts.Retriever != nil {
		workflow.AddNode(NodeRetrieve, "Similarity search for the last user message", a.retrieve, graph.Writes("context"))
		workflow.AddEdge(NodeRetrieve, NodeGenerate)
		workflow.SetEntryPoint(NodeRetrieve)
	} else {
		workflow.SetEntryPoint(NodeGenerate)
	}
	workflow.AddNode(NodeGenerate, "Model call with optional tool binding", a.generate, graph.Writes("messages", "answer"))
	workflow.AddNode(NodeInvokeTools, "Run requested tools", a.invokeTools, graph.Writes("messages", "tool_hops"))

	workflow.AddConditionalEdge(NodeGenerate, a.shouldUseTools, map[string]string{
		"tools":   NodeInvokeTools,
		graph.END: graph.END,
	})
	workflow.AddEdge(NodeInvokeTools, NodeGenerate)

	runnable, err := workflow.Compile()
	if err != nil {
		return nil, fmt.Errorf("compile chat graph: %w", err)
	}
	a.runnable = runnable.WithLogger(opts.Logger)
	if opts.Tracer != nil {
		a.runnable = a.runnable.WithTracer(opts.Tracer)
	}
	return a, nil
}

// Runnable returns the compiled graph.
func (a *Agent) Runnable() *graph.Runnable[State] {
	return a.runnable
}

// Invoke runs the graph to completion.
func (a *Agent) Invoke(ctx context.Context, initial State, config *graph.Config) (State, error) {
	return a.runnable.InvokeWithConfig(ctx, initial, config)
}

// Stream runs the graph and reports its events. See Translate.
func (a *Agent) Stream(ctx context.Context, initial State, config *graph.Config) <-chan graph.Event {
	return a.runnable.Stream(ctx, initial, config)
}

func (a *Agent) retrieve(ctx context.Context, state State) (State, error) {
	query := lastHumanText(state.Messages)
	if query == "" {
		return State{}, nil
	}

	res := collab.Do(ctx, a.opts.Dispatcher, "similarity search", func(ctx context.Context) ([]rag.SearchResult, error) {
		return a.opts.Retriever.SimilaritySearch(ctx, query, a.opts.K)
	})
	if !res.OK() {
		a.opts.Logger.Warn("chatagent: retrieval failed, continuing without context: %v", res.Err)
		return State{}, nil
	}
	return State{Context: rag.BuildContext(res.Value, rag.DefaultContextChars)}, nil
}

func (a *Agent) generate(ctx context.Context, state State) (State, error) {
	if state.ToolHops >= a.opts.MaxToolHops {
		a.opts.Logger.Warn("chatagent: tool hop limit %d reached", a.opts.MaxToolHops)
		return answer(MaxToolHopsMessage), nil
	}

	messages := append([]llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, a.systemPrompt(state.Context)),
	}, toLLM(state.Messages)...)

	var opts []llms.CallOption
	if a.bindTools() {
		opts = append(opts, llms.WithTools(a.opts.Tools.Definitions()))
	}
	var gate *tokenGate
	if graph.Streaming(ctx) {
		gate = &tokenGate{}
		opts = append(opts, llms.WithStreamingFunc(gate.emit))
	}

	res := collab.Do(ctx, a.opts.Dispatcher, "generate", func(ctx context.Context) (*llms.ContentChoice, error) {
		resp, err := a.opts.Model.GenerateContent(ctx, messages, opts...)
		if err != nil {
			return nil, err
		}
		if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
			return nil, collab.InvalidOutput(errors.New("model returned no choices"))
		}
		return resp.Choices[0], nil
	})
	gate.close()

	if !res.OK() {
		if res.Kind == collab.KindCancelled {
			return State{}, res.Err
		}
		a.opts.Logger.Warn("chatagent: generate failed (%s): %v", res.Kind, res.Err)
		return answer(GenerationFailedMessage), nil
	}

	msg := fromChoice(res.Value)
	if msg.HasToolCalls() {
		return State{Messages: []Message{msg}}, nil
	}
	return State{Messages: []Message{msg}, Answer: msg.Content}, nil
}

func (a *Agent) invokeTools(ctx context.Context, state State) (State, error) {
	delta := State{ToolHops: state.ToolHops + 1}

	last, ok := state.LastMessage()
	if !ok || !last.HasToolCalls() {
		return delta, nil
	}

	for _, tc := range last.ToolCalls {
		res := collab.Do(ctx, a.opts.Dispatcher, "tool "+tc.Name, func(ctx context.Context) (string, error) {
			return a.opts.Tools.Dispatch(ctx, tc.Name, tc.Arguments), nil
		})
		content := res.Value
		if !res.OK() {
			if res.Kind == collab.KindCancelled {
				return State{}, res.Err
			}
			a.opts.Logger.Warn("chatagent: tool %s failed (%s): %v", tc.Name, res.Kind, res.Err)
			content = fmt.Sprintf("Error: %v", res.Err)
		}
		delta.Messages = append(delta.Messages, ToolResult(tc.ID, tc.Name, content))
	}
	return delta, nil
}

// shouldUseTools looks only at the last message. An empty log ends the run.
func (a *Agent) shouldUseTools(_ context.Context, state State) string {
	last, ok := state.LastMessage()
	if !ok || !last.HasToolCalls() || state.ToolHops >= a.opts.MaxToolHops {
		return graph.END
	}
	return "tools"
}

func (a *Agent) bindTools() bool {
	if a.opts.Tools.Len() == 0 {
		return false
	}
	return a.opts.Provider == "" || a.opts.Provider.SupportsToolCalling()
}

func (a *Agent) systemPrompt(retrieved string) string {
	if retrieved == "" {
		return a.opts.SystemPrompt
	}
	return a.opts.SystemPrompt + "\n\nUse the following context when it is relevant:\n" + retrieved
}

func answer(text string) State {
	return State{Messages: []Message{AI(text)}, Answer: text}
}

// tokenGate forwards streamed chunks until the generate call has returned.
// A model still running after a timeout must not emit into later steps.
type tokenGate struct {
	mu     sync.Mutex
	closed bool
}

var errGateClosed = errors.New("chatagent: generation already finished")

func (g *tokenGate) emit(ctx context.Context, chunk []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return errGateClosed
	}
	return graph.EmitToken(ctx, string(chunk))
}

func (g *tokenGate) close() {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}
