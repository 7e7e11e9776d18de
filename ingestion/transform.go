package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/smallnest/tenantflow/collab"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
)

// StrategyFunc picks the processing branch for a batch.
type StrategyFunc func(kind Kind, records []Record) Strategy

// DefaultStrategy is the rule path for every kind except players.
func DefaultStrategy(kind Kind, _ []Record) Strategy {
	if kind == KindPlayers {
		return StrategyPolicy
	}
	return StrategyRule
}

// RuleTransform normalizes validated records with the schema rules.
func RuleTransform(s Schema, records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		out = append(out, s.Normalize(r))
	}
	return out
}

// Normalizer cleans up a batch with model assistance. It must return one
// record per input record, in order.
type Normalizer interface {
	Normalize(ctx context.Context, s Schema, records []Record) ([]Record, error)
}

var normalizePrompt = prompts.NewPromptTemplate(`You clean up uploaded {{.kind}} records before they are stored.
Fields: {{.fields}}.
Fix capitalization and obvious typos, expand abbreviations of positions and team names,
convert numbers to integers and dates to YYYY-MM-DD. Do not invent values and do not add fields.
Return only a JSON array with exactly {{.count}} objects in the same order.

Records:
{{.records}}`, []string{"kind", "fields", "count", "records"})

// LLMNormalizer asks a model to normalize records.
type LLMNormalizer struct {
	Model llms.Model
}

// Normalize implements Normalizer. The answer is rejected unless it has the
// same number of records and every record passes the schema.
func (n LLMNormalizer) Normalize(ctx context.Context, s Schema, records []Record) ([]Record, error) {
	if n.Model == nil {
		return nil, errors.New("no model configured")
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encode records: %w", err)
	}
	fields := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		fields = append(fields, f.Name)
	}
	prompt, err := normalizePrompt.Format(map[string]any{
		"kind":    string(s.Kind),
		"fields":  strings.Join(fields, ", "),
		"count":   len(records),
		"records": string(payload),
	})
	if err != nil {
		return nil, fmt.Errorf("render prompt: %w", err)
	}

	text, err := llms.GenerateFromSinglePrompt(ctx, n.Model, prompt, llms.WithTemperature(0))
	if err != nil {
		return nil, err
	}

	start, end := strings.Index(text, "["), strings.LastIndex(text, "]")
	if start < 0 || end < start {
		return nil, collab.InvalidOutput(fmt.Errorf("no JSON array in %q", text))
	}
	var out []Record
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return nil, collab.InvalidOutput(fmt.Errorf("decode normalized records: %w", err))
	}
	if len(out) != len(records) {
		return nil, collab.InvalidOutput(fmt.Errorf("got %d records back, want %d", len(out), len(records)))
	}
	if _, errs := s.Validate(out); len(errs) > 0 {
		return nil, collab.InvalidOutput(fmt.Errorf("normalized records are invalid: %s", errs[0]))
	}
	return out, nil
}
