package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallnest/tenantflow/chatagent"
	"github.com/smallnest/tenantflow/graph"
	"github.com/smallnest/tenantflow/ingestion"
	"github.com/smallnest/tenantflow/llm"
	"github.com/smallnest/tenantflow/spamtriage"
	"github.com/smallnest/tenantflow/store"
)

// ChatRequest is one user turn.
type ChatRequest struct {
	Text string `json:"message"`

	// Provider defaults to the configured provider.
	Provider llm.Provider `json:"provider,omitempty"`

	// SystemPrompt replaces the configured prompt for this turn.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// History is the prior conversation. When it is nil and ThreadID is
	// set, the messages saved for the thread are used.
	History []chatagent.Message `json:"history,omitempty"`

	// ThreadID names the conversation. The final state is saved under it.
	ThreadID string `json:"thread_id,omitempty"`
}

func (a *App) prepare(ctx context.Context, req ChatRequest) (*chatagent.Agent, chatagent.State, *graph.Config, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, chatagent.State{}, nil, ErrEmptyMessage
	}
	p := req.Provider
	if p == "" {
		p = a.cfg.Provider()
	}
	agent, err := a.Agent(p)
	if err != nil {
		return nil, chatagent.State{}, nil, err
	}
	if req.SystemPrompt != "" {
		if agent, err = a.newAgent(p, req.SystemPrompt); err != nil {
			return nil, chatagent.State{}, nil, err
		}
	}

	history := req.History
	if history == nil && req.ThreadID != "" {
		prior, _, err := agent.Runnable().GetState(ctx, a.checkpointer, req.ThreadID)
		if err != nil {
			return nil, chatagent.State{}, nil, fmt.Errorf("load thread %s: %w", req.ThreadID, err)
		}
		history = prior.Messages
	}

	messages := make([]chatagent.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, chatagent.Human(req.Text))

	var cfg *graph.Config
	if req.ThreadID != "" {
		cfg = &graph.Config{
			ThreadID:     req.ThreadID,
			Checkpointer: a.checkpointer,
			Metadata:     map[string]any{"provider": string(p)},
		}
	}
	return agent, chatagent.State{Messages: messages}, cfg, nil
}

// Run answers one chat turn.
func (a *App) Run(ctx context.Context, req ChatRequest) (string, error) {
	agent, initial, cfg, err := a.prepare(ctx, req)
	if err != nil {
		return "", err
	}
	final, err := agent.Invoke(ctx, initial, cfg)
	return final.FinalAnswer(), err
}

// TextStream is the answer of a streamed chat turn.
type TextStream struct {
	deltas <-chan string
	err    func() error
}

// Deltas returns the answer text in generation order. The channel closes
// when the run ends; the caller must drain it or cancel the run context.
func (s *TextStream) Deltas() <-chan string {
	return s.deltas
}

// Err reports the run error. It is valid once Deltas is closed.
func (s *TextStream) Err() error {
	return s.err()
}

// Collect drains the stream and returns the full text.
func (s *TextStream) Collect() (string, error) {
	var sb strings.Builder
	for d := range s.deltas {
		sb.WriteString(d)
	}
	return sb.String(), s.err()
}

// RunStream answers one chat turn incrementally.
func (a *App) RunStream(ctx context.Context, req ChatRequest) (*TextStream, error) {
	agent, initial, cfg, err := a.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	deltas, errFn := chatagent.Translate(agent.Stream(ctx, initial, cfg))
	return &TextStream{deltas: deltas, err: errFn}, nil
}

// RunSpamTriage decides what to do with one inbound item.
func (a *App) RunSpamTriage(ctx context.Context, item spamtriage.Item) (spamtriage.Decision, error) {
	return a.triage.Run(ctx, item)
}

// RunIngestion validates, normalizes and stores one batch.
func (a *App) RunIngestion(ctx context.Context, kind ingestion.Kind, records []ingestion.Record) (ingestion.Result, error) {
	return a.ingest.Run(ctx, kind, records)
}

// ThreadHistory returns the messages saved for threadID. A thread without a
// snapshot yields store.ErrCheckpointNotFound.
func (a *App) ThreadHistory(ctx context.Context, threadID string) ([]chatagent.Message, error) {
	state, ok, err := graph.LoadState[chatagent.State](ctx, a.checkpointer, threadID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("thread %s: %w", threadID, store.ErrCheckpointNotFound)
	}
	if state.Messages == nil {
		return []chatagent.Message{}, nil
	}
	return state.Messages, nil
}

// DeleteThread removes the snapshot of threadID and reports whether it existed.
func (a *App) DeleteThread(ctx context.Context, threadID string) (bool, error) {
	return a.checkpointer.Delete(ctx, threadID)
}
