package chatagent

import (
	"encoding/json"
	"strings"

	"github.com/smallnest/tenantflow/graph"
)

// Translate turns the engine events of a chat run into answer text deltas.
//
// Tokens of a generate visit are held until the visit's assistant message
// is known. They are released when the message carries no tool calls and
// its content is exactly the streamed text; otherwise the message content
// is sent as one delta instead. A visit that requests tools contributes
// nothing, so concatenating the deltas yields the final answer.
//
// The returned function reports the run error once the channel is closed.
// On an Error event the held text is flushed and the channel closes. A
// channel that closes without ChainEnd or Error reports
// graph.ErrStreamIncomplete. The consumer must drain the channel or cancel
// the run.
func Translate(events <-chan graph.Event) (<-chan string, func() error) {
	out := make(chan string)
	var runErr error

	go func() {
		defer close(out)

		var held []string
		flush := func() {
			for _, t := range held {
				out <- t
			}
			held = held[:0]
		}

		terminated := false
		for ev := range events {
			switch e := ev.(type) {
			case graph.NodeStart:
				if e.Node == NodeGenerate {
					held = held[:0]
				}
			case graph.Token:
				if e.Node != NodeGenerate || isToolCallChunk(e.Text) {
					continue
				}
				held = append(held, e.Text)
			case graph.ChainDelta[State]:
				if e.Node != NodeGenerate {
					continue
				}
				for _, m := range e.Delta.Messages {
					if m.Role != RoleAI || m.HasToolCalls() {
						continue
					}
					if strings.Join(held, "") == m.Content {
						flush()
					} else if m.Content != "" {
						out <- m.Content
					}
				}
				held = held[:0]
			case graph.NodeEnd:
			case graph.ChainEnd[State]:
				terminated = true
				runErr = e.CheckpointErr
			case graph.Error:
				terminated = true
				flush()
				runErr = e.Err
			}
		}
		if !terminated {
			runErr = graph.ErrStreamIncomplete
		}
	}()

	return out, func() error { return runErr }
}

// isToolCallChunk recognises the JSON array streaming providers send for
// tool calls, e.g. [{"id":"call_1","type":"function","function":{...}}].
func isToolCallChunk(text string) bool {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return false
	}
	var calls []map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &calls); err != nil || len(calls) == 0 {
		return false
	}
	for _, c := range calls {
		if _, ok := c["function"]; ok {
			return true
		}
	}
	return false
}
