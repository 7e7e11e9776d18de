package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrUnknownProvider is returned for provider names outside the closed set.
var ErrUnknownProvider = errors.New("unknown provider")

// Provider names an LLM backend.
type Provider string

const (
	// ProviderOpenAI is the hosted OpenAI API through langchaingo.
	ProviderOpenAI Provider = "openai"

	// ProviderOllama is a local Ollama server through langchaingo.
	ProviderOllama Provider = "ollama"

	// ProviderLocal is any OpenAI-compatible endpoint (vLLM, llama.cpp,
	// LM Studio) through go-openai.
	ProviderLocal Provider = "local"
)

var toolCalling = map[Provider]bool{
	ProviderOpenAI: true,
	ProviderOllama: false,
	ProviderLocal:  true,
}

// Providers returns every known provider, sorted.
func Providers() []Provider {
	out := make([]Provider, 0, len(toolCalling))
	for p := range toolCalling {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseProvider maps a configuration string to a Provider.
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := toolCalling[p]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
	}
	return p, nil
}

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	_, ok := toolCalling[p]
	return ok
}

// SupportsToolCalling reports whether models of this provider accept a
// bound tool catalog. Callers skip tool binding when it is false.
func (p Provider) SupportsToolCalling() bool {
	return toolCalling[p]
}

func (p Provider) String() string {
	return string(p)
}

// Settings configures a model instance.
type Settings struct {
	Model      string
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// Factory creates a model for one provider.
type Factory func(ctx context.Context, s Settings) (llms.Model, error)

// Registry maps every Provider to its Factory.
type Registry struct {
	factories map[Provider]Factory
}

// NewRegistry returns the default registry with the given factories
// replacing the built-in ones. Overrides for unknown providers are rejected
// here so a bad name is a startup error.
func NewRegistry(overrides map[Provider]Factory) (*Registry, error) {
	r := &Registry{factories: map[Provider]Factory{
		ProviderOpenAI: newOpenAI,
		ProviderOllama: newOllama,
		ProviderLocal:  newLocal,
	}}
	for p, f := range overrides {
		if !p.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, p)
		}
		if f == nil {
			return nil, fmt.Errorf("provider %s: nil factory", p)
		}
		r.factories[p] = f
	}
	return r, nil
}

// New creates a model for provider p.
func (r *Registry) New(ctx context.Context, p Provider, s Settings) (llms.Model, error) {
	f, ok := r.factories[p]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, p)
	}
	m, err := f(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("create %s model: %w", p, err)
	}
	return m, nil
}

func newOpenAI(_ context.Context, s Settings) (llms.Model, error) {
	var opts []openai.Option
	if s.Model != "" {
		opts = append(opts, openai.WithModel(s.Model))
	}
	if s.APIKey != "" {
		opts = append(opts, openai.WithToken(s.APIKey))
	}
	if s.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(s.BaseURL))
	}
	if s.HTTPClient != nil {
		opts = append(opts, openai.WithHTTPClient(s.HTTPClient))
	}
	return openai.New(opts...)
}

func newOllama(_ context.Context, s Settings) (llms.Model, error) {
	var opts []ollama.Option
	if s.Model != "" {
		opts = append(opts, ollama.WithModel(s.Model))
	}
	if s.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(s.BaseURL))
	}
	return ollama.New(opts...)
}

func newLocal(_ context.Context, s Settings) (llms.Model, error) {
	opts := []LocalOption{WithLocalModel(s.Model), WithLocalAPIKey(s.APIKey)}
	if s.BaseURL != "" {
		opts = append(opts, WithLocalBaseURL(s.BaseURL))
	}
	if s.HTTPClient != nil {
		opts = append(opts, WithLocalHTTPClient(s.HTTPClient))
	}
	return NewLocal(opts...)
}
