package chatagent

// State is the chat workflow state.
type State struct {
	Messages       []Message `json:"messages" graph:"append"`
	Context        string    `json:"context,omitempty"`
	ToolHops       int       `json:"tool_hops,omitempty"`
	ProcessingPath []string  `json:"processing_path,omitempty" graph:"path"`
	Answer         string    `json:"answer,omitempty"`
}

// LastMessage returns the newest message of the log.
func (s State) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// FinalAnswer returns the content of the last assistant message.
func (s State) FinalAnswer() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleAI {
			return s.Messages[i].Content
		}
	}
	return ""
}

func lastHumanText(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleHuman {
			return msgs[i].Content
		}
	}
	return ""
}
