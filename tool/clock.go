package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/tmc/langchaingo/tools"
)

// CurrentTime is the current_time tool.
type CurrentTime struct {
	// Now defaults to time.Now.
	Now func() time.Time
}

func (CurrentTime) Name() string { return "current_time" }

func (CurrentTime) Description() string {
	return "Get the current date and time, optionally in an IANA time zone such as Europe/Berlin."
}

// Parameters implements Parameterized.
func (CurrentTime) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"timezone": map[string]any{"type": "string", "description": "IANA zone name, default UTC"},
		},
	}
}

// Call returns the time in RFC 3339 with the weekday.
func (c CurrentTime) Call(_ context.Context, input string) (string, error) {
	var args struct {
		Timezone string `json:"timezone"`
	}
	if s := strings.TrimSpace(input); s != "" && s != "{}" {
		if err := json.Unmarshal([]byte(s), &args); err != nil {
			args.Timezone = s
		}
	}

	loc := time.UTC
	if args.Timezone != "" {
		l, err := time.LoadLocation(args.Timezone)
		if err != nil {
			return "", fmt.Errorf("unknown time zone %q", args.Timezone)
		}
		loc = l
	}

	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	t := now().In(loc)
	return fmt.Sprintf("%s (%s)", t.Format(time.RFC3339), t.Weekday()), nil
}

// NewCalculator returns langchaingo's starlark-backed calculator.
func NewCalculator() tools.Tool {
	return tools.Calculator{}
}

// Defaults returns the standard tools. web_search is included only when a
// Brave client is given and knowledge_search only when a store is given.
func Defaults(search *BraveSearch, knowledge *KnowledgeSearch) []tools.Tool {
	ts := []tools.Tool{NewCalculator(), CurrentTime{}}
	if search != nil {
		ts = append(ts, search)
	}
	if knowledge != nil {
		ts = append(ts, knowledge)
	}
	return ts
}
