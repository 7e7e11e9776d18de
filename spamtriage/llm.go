package spamtriage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/smallnest/tenantflow/collab"
	"github.com/smallnest/tenantflow/log"
	"github.com/smallnest/tenantflow/rag"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
)

const maxBodyChars = 4000

var itemVars = []string{"sender", "subject", "body", "links", "attachments", "headers"}

var classifyPrompt = prompts.NewPromptTemplate(`You are a spam filter. Rate the message below.
Reply with JSON only: {"spam_prob": <0..1>, "confidence": "low|medium|high", "label": "SPAM|HAM|UNCERTAIN"}

From: {{.sender}}
Subject: {{.subject}}
Links: {{.links}}
Attachments: {{.attachments}}

{{.body}}`, itemVars)

var routePrompt = prompts.NewPromptTemplate(`Decide how a message should be checked.
Answer "rule" if a keyword score is enough, or "policy" if it needs a careful review
(links, attachments, requests for money or credentials, possible impersonation).
Answer with one word.

From: {{.sender}}
Subject: {{.subject}}
Links: {{.links}}
Attachments: {{.attachments}}
Headers: {{.headers}}

{{.body}}`, itemVars)

var policyPrompt = prompts.NewPromptTemplate(`You review messages against the tenant's content policy.
{{if .policies}}Relevant policy excerpts:
{{.policies}}

{{end}}Known risk codes: {{.codes}}.
Reply with JSON only:
{"is_spam": true|false, "risk_codes": [..], "confidence": "low|medium|high", "analysis": "<one or two sentences>"}

From: {{.sender}}
Subject: {{.subject}}
Links: {{.links}}
Attachments: {{.attachments}}
Headers: {{.headers}}

{{.body}}`, append([]string{"policies", "codes"}, itemVars...))

// LLMClassifier asks a model for the spam verdict.
type LLMClassifier struct {
	Model llms.Model
}

// Classify implements Classifier.
func (c LLMClassifier) Classify(ctx context.Context, item Item) (Verdict, error) {
	text, err := complete(ctx, c.Model, classifyPrompt, itemValues(item), llms.WithJSONMode())
	if err != nil {
		return Verdict{}, err
	}

	var out struct {
		SpamProb   *float64 `json:"spam_prob"`
		Confidence string   `json:"confidence"`
		Label      string   `json:"label"`
	}
	if err := decodeJSON(text, &out); err != nil {
		return Verdict{}, err
	}
	if out.SpamProb == nil || *out.SpamProb < 0 || *out.SpamProb > 1 {
		return Verdict{}, collab.InvalidOutput(fmt.Errorf("spam_prob missing or out of range in %q", text))
	}

	v := Verdict{SpamProb: *out.SpamProb, Confidence: parseConfidence(out.Confidence), Label: Label(strings.ToUpper(strings.TrimSpace(out.Label)))}
	if v.Label != LabelSpam && v.Label != LabelHam && v.Label != LabelUncertain {
		v.Label = labelFor(v.SpamProb)
	}
	return v, nil
}

// LLMRouter asks a model to pick the branch.
type LLMRouter struct {
	Model llms.Model
}

// Route implements Router.
func (r LLMRouter) Route(ctx context.Context, item Item) (Strategy, error) {
	text, err := complete(ctx, r.Model, routePrompt, itemValues(item))
	if err != nil {
		return "", err
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", collab.InvalidOutput(errors.New("empty routing answer"))
	}
	s, ok := ParseStrategy(strings.Trim(fields[0], `"'.,:;`))
	if !ok {
		return "", collab.InvalidOutput(fmt.Errorf("unexpected routing answer %q", text))
	}
	return s, nil
}

// LLMPolicyAnalyzer reviews an item with a model, optionally grounded on
// policy documents found in Retriever.
type LLMPolicyAnalyzer struct {
	Model     llms.Model
	Retriever rag.VectorStore
	K         int
	Logger    log.Logger
}

// Analyze implements PolicyAnalyzer.
func (a LLMPolicyAnalyzer) Analyze(ctx context.Context, item Item) (PolicyResult, error) {
	values := itemValues(item)
	values["policies"] = a.policies(ctx, item)
	codes := make([]string, 0, len(riskCodes))
	for _, c := range riskCodes {
		codes = append(codes, string(c))
	}
	values["codes"] = strings.Join(codes, ", ")

	text, err := complete(ctx, a.Model, policyPrompt, values, llms.WithJSONMode())
	if err != nil {
		return PolicyResult{}, err
	}

	var out struct {
		IsSpam     *bool    `json:"is_spam"`
		RiskCodes  []string `json:"risk_codes"`
		Confidence string   `json:"confidence"`
		Analysis   string   `json:"analysis"`
	}
	if err := decodeJSON(text, &out); err != nil {
		return PolicyResult{}, err
	}
	if out.IsSpam == nil {
		return PolicyResult{}, collab.InvalidOutput(fmt.Errorf("is_spam missing in %q", text))
	}

	result := PolicyResult{IsSpam: *out.IsSpam, Confidence: parseConfidence(out.Confidence), Analysis: out.Analysis}
	for _, raw := range out.RiskCodes {
		if code, ok := ParseRiskCode(raw); ok && !slices.Contains(result.RiskCodes, code) {
			result.RiskCodes = append(result.RiskCodes, code)
		}
	}
	return result, nil
}

func (a LLMPolicyAnalyzer) policies(ctx context.Context, item Item) string {
	if a.Retriever == nil {
		return ""
	}
	k := a.K
	if k <= 0 {
		k = 3
	}
	results, err := a.Retriever.SimilaritySearch(ctx, item.Subject+"\n"+item.Body, k)
	if err != nil {
		log.OrDefault(a.Logger).Warn("spamtriage: policy retrieval failed: %v", err)
		return ""
	}
	return rag.BuildContext(results, 2000)
}

func complete(ctx context.Context, model llms.Model, tmpl prompts.PromptTemplate, values map[string]any, opts ...llms.CallOption) (string, error) {
	if model == nil {
		return "", errors.New("no model configured")
	}
	prompt, err := tmpl.Format(values)
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	opts = append([]llms.CallOption{llms.WithTemperature(0)}, opts...)
	return llms.GenerateFromSinglePrompt(ctx, model, prompt, opts...)
}

func itemValues(item Item) map[string]any {
	body := item.Body
	if len(body) > maxBodyChars {
		body = body[:maxBodyChars]
	}
	headers := make([]string, 0, len(item.Headers))
	for k, v := range item.Headers {
		headers = append(headers, k+": "+v)
	}
	sort.Strings(headers)
	return map[string]any{
		"sender":      item.Sender,
		"subject":     item.Subject,
		"body":        body,
		"links":       orNone(strings.Join(item.Links, ", ")),
		"attachments": orNone(strings.Join(item.Attachments, ", ")),
		"headers":     orNone(strings.Join(headers, "; ")),
	}
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

// decodeJSON reads the first JSON object in a model answer, which may be
// wrapped in prose or a code fence.
func decodeJSON(text string, v any) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return collab.InvalidOutput(fmt.Errorf("no JSON object in %q", text))
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return collab.InvalidOutput(fmt.Errorf("decode model answer: %w", err))
	}
	return nil
}

func parseConfidence(s string) Confidence {
	switch Confidence(normalize(s)) {
	case ConfidenceHigh:
		return ConfidenceHigh
	case ConfidenceMedium:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
