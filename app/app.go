// Package app wires configuration, collaborators and the three graphs into
// one application context. It is the only place that knows about every
// backend; the graph packages receive their collaborators explicitly.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/smallnest/tenantflow/chatagent"
	"github.com/smallnest/tenantflow/collab"
	"github.com/smallnest/tenantflow/config"
	"github.com/smallnest/tenantflow/graph"
	"github.com/smallnest/tenantflow/ingestion"
	"github.com/smallnest/tenantflow/llm"
	"github.com/smallnest/tenantflow/log"
	"github.com/smallnest/tenantflow/metrics"
	"github.com/smallnest/tenantflow/rag"
	ragstore "github.com/smallnest/tenantflow/rag/store"
	"github.com/smallnest/tenantflow/spamtriage"
	"github.com/smallnest/tenantflow/store"
	"github.com/smallnest/tenantflow/tool"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"
)

// ErrEmptyMessage is returned for a chat request without text.
var ErrEmptyMessage = errors.New("empty message")

type options struct {
	factories    map[llm.Provider]llm.Factory
	checkpointer store.Checkpointer
	repositories ingestion.Repositories
	embedder     rag.Embedder
	logger       log.Logger
	collector    *metrics.Collector
	extraTools   []tools.Tool
}

// Option customizes New.
type Option func(*options)

// WithModelFactory replaces the factory of one provider.
func WithModelFactory(p llm.Provider, f llm.Factory) Option {
	return func(o *options) {
		if o.factories == nil {
			o.factories = map[llm.Provider]llm.Factory{}
		}
		o.factories[p] = f
	}
}

// WithCheckpointer uses cp instead of the configured backend.
func WithCheckpointer(cp store.Checkpointer) Option {
	return func(o *options) { o.checkpointer = cp }
}

// WithRepositories uses repos instead of the configured backend. Kinds
// missing from repos are still built from the configuration.
func WithRepositories(repos ingestion.Repositories) Option {
	return func(o *options) { o.repositories = repos }
}

// WithEmbedder sets the embedder of the knowledge store.
func WithEmbedder(e rag.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

// WithLogger replaces the configured logger.
func WithLogger(l log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics reports graph runs to c.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.collector = c }
}

// WithTools adds tools to the chat catalog.
func WithTools(ts ...tools.Tool) Option {
	return func(o *options) { o.extraTools = append(o.extraTools, ts...) }
}

// App is the application context. It is safe for concurrent use.
type App struct {
	cfg    *config.Config
	logger log.Logger

	registry *llm.Registry
	models   map[llm.Provider]func() (llms.Model, error)

	checkpointer store.Checkpointer
	knowledge    *ragstore.InMemoryVectorStore
	catalog      *tool.Catalog
	dispatcher   *collab.Dispatcher
	collector    *metrics.Collector
	tracer       *graph.Tracer

	agents map[llm.Provider]*chatagent.Agent
	triage *spamtriage.Triage
	ingest *ingestion.Pipeline

	closeOnce sync.Once
	closers   []func() error
}

// New builds the application from cfg. Models are created on first use.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (a *App, err error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a = &App{cfg: cfg, logger: o.logger, collector: o.collector}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if a.logger == nil {
		if a.logger, err = cfg.Log.NewLogger(os.Stderr); err != nil {
			return nil, err
		}
	}
	if a.collector == nil && cfg.HTTP.Metrics {
		a.collector = metrics.NewCollector()
	}
	if a.collector != nil {
		a.tracer = a.collector.Tracer()
	}

	if a.registry, err = llm.NewRegistry(o.factories); err != nil {
		return nil, err
	}
	a.models = make(map[llm.Provider]func() (llms.Model, error))
	modelCtx := context.WithoutCancel(ctx)
	for _, p := range llm.Providers() {
		settings := cfg.LLM.Settings(p)
		a.models[p] = sync.OnceValues(func() (llms.Model, error) {
			a.logger.Debug("app: creating %s model %q", p, settings.Model)
			return a.registry.New(modelCtx, p, settings)
		})
	}

	if cfg.Workers.PoolSize > 0 {
		if a.dispatcher, err = collab.NewDispatcher(cfg.Workers.PoolSize, cfg.Workers.Timeout); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { a.dispatcher.Release(); return nil })
	}

	a.checkpointer = o.checkpointer
	if a.checkpointer == nil {
		cp, closer, err := newCheckpointer(ctx, cfg.Checkpointer, a.logger)
		if err != nil {
			return nil, err
		}
		a.checkpointer = cp
		a.closers = append(a.closers, closer)
	}

	if err := a.initKnowledge(ctx, cfg, o.embedder); err != nil {
		return nil, err
	}
	if err := a.initTools(cfg, o.extraTools); err != nil {
		return nil, err
	}

	a.agents = make(map[llm.Provider]*chatagent.Agent)
	for _, p := range llm.Providers() {
		agent, err := a.newAgent(p, "")
		if err != nil {
			return nil, err
		}
		a.agents[p] = agent
	}

	if err := a.initTriage(cfg); err != nil {
		return nil, err
	}
	if err := a.initIngestion(ctx, cfg, o.repositories); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) initKnowledge(ctx context.Context, cfg *config.Config, embedder rag.Embedder) error {
	if embedder == nil && cfg.LLM.EmbeddingModel != "" {
		local, err := llm.NewLocal(
			llm.WithLocalBaseURL(cfg.LLM.Local.BaseURL),
			llm.WithLocalAPIKey(cfg.LLM.Local.APIKey),
			llm.WithLocalEmbeddingModel(cfg.LLM.EmbeddingModel),
		)
		if err != nil {
			return fmt.Errorf("create embedding client: %w", err)
		}
		if embedder, err = embeddings.NewEmbedder(local); err != nil {
			return fmt.Errorf("create embedder: %w", err)
		}
	}
	if embedder == nil {
		embedder = ragstore.NewHashEmbedder(0)
	}
	a.knowledge = ragstore.NewInMemoryVectorStore(embedder)

	if cfg.Agent.KnowledgeDir == "" {
		return nil
	}
	docs, err := rag.LoadDir(ctx, cfg.Agent.KnowledgeDir, rag.LoaderOptions{})
	if err != nil {
		return fmt.Errorf("load knowledge: %w", err)
	}
	if len(docs) == 0 {
		a.logger.Warn("app: no documents found in %s", cfg.Agent.KnowledgeDir)
		return nil
	}
	if _, err := a.knowledge.AddDocuments(ctx, docs); err != nil {
		return fmt.Errorf("index knowledge: %w", err)
	}
	a.logger.Info("app: indexed %d knowledge chunks from %s", len(docs), cfg.Agent.KnowledgeDir)
	return nil
}

func (a *App) initTools(cfg *config.Config, extra []tools.Tool) error {
	var search *tool.BraveSearch
	if cfg.Agent.BraveAPIKey != "" {
		var err error
		if search, err = tool.NewBraveSearch(cfg.Agent.BraveAPIKey); err != nil {
			return err
		}
	}
	ts := append(tool.Defaults(search, tool.NewKnowledgeSearch(a.knowledge, cfg.Agent.RetrievalK)), extra...)
	catalog, err := tool.NewCatalog(ts...)
	if err != nil {
		return err
	}
	a.catalog = catalog
	return nil
}

func (a *App) newAgent(p llm.Provider, systemPrompt string) (*chatagent.Agent, error) {
	if systemPrompt == "" {
		systemPrompt = a.cfg.Agent.SystemPrompt
	}
	return chatagent.New(chatagent.Options{
		Model:        a.Model(p),
		Provider:     p,
		Tools:        a.catalog,
		Retriever:    a.knowledge,
		K:            a.cfg.Agent.RetrievalK,
		SystemPrompt: systemPrompt,
		MaxToolHops:  a.cfg.Agent.MaxToolHops,
		Dispatcher:   a.dispatcher,
		Logger:       a.logger,
		Tracer:       a.tracer,
	})
}

func (a *App) initTriage(cfg *config.Config) error {
	model := a.Model(cfg.Provider())
	opts := spamtriage.Options{
		Analyzer:   spamtriage.LLMPolicyAnalyzer{Model: model, Retriever: a.knowledge, Logger: a.logger},
		Dispatcher: a.dispatcher,
		Logger:     a.logger,
		Tracer:     a.tracer,
	}
	if cfg.Spam.LLMClassifier {
		opts.Classifier = spamtriage.LLMClassifier{Model: model}
	}
	if cfg.Spam.LLMRouter {
		opts.Router = spamtriage.LLMRouter{Model: model}
	}
	t, err := spamtriage.New(opts)
	if err != nil {
		return err
	}
	a.triage = t
	return nil
}

func (a *App) initIngestion(ctx context.Context, cfg *config.Config, given ingestion.Repositories) error {
	repos := ingestion.Repositories{}
	for k, r := range given {
		repos[k] = r
	}
	if repos.Check() != nil {
		built, closer, err := newRepositories(ctx, cfg.Ingestion, a.knowledge)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, closer)
		for k, r := range built {
			if repos[k] == nil {
				repos[k] = r
			}
		}
	}
	p, err := ingestion.New(ingestion.Options{
		Repositories: repos,
		Normalizer:   ingestion.LLMNormalizer{Model: a.Model(cfg.Provider())},
		Dispatcher:   a.dispatcher,
		Logger:       a.logger,
		Tracer:       a.tracer,
	})
	if err != nil {
		return err
	}
	a.ingest = p
	return nil
}

// Config returns the configuration the app was built with.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Logger returns the app logger.
func (a *App) Logger() log.Logger {
	return a.logger
}

// Metrics returns the metrics collector, or nil when metrics are off.
func (a *App) Metrics() *metrics.Collector {
	return a.collector
}

// Knowledge returns the vector store behind retrieval and article uploads.
func (a *App) Knowledge() rag.VectorStore {
	return a.knowledge
}

// Tools returns the chat tool catalog.
func (a *App) Tools() *tool.Catalog {
	return a.catalog
}

// Agent returns the chat agent of provider p.
func (a *App) Agent(p llm.Provider) (*chatagent.Agent, error) {
	agent, ok := a.agents[p]
	if !ok {
		return nil, fmt.Errorf("%w: %q", llm.ErrUnknownProvider, p)
	}
	return agent, nil
}

// Triage returns the spam triage graph.
func (a *App) Triage() *spamtriage.Triage {
	return a.triage
}

// Ingestion returns the ingestion graph.
func (a *App) Ingestion() *ingestion.Pipeline {
	return a.ingest
}

// Model returns the model of provider p. The model is created on its first
// call; a creation failure is returned by every call.
func (a *App) Model(p llm.Provider) llms.Model {
	get, ok := a.models[p]
	if !ok {
		get = func() (llms.Model, error) { return nil, fmt.Errorf("%w: %q", llm.ErrUnknownProvider, p) }
	}
	return &lazyModel{get: get}
}

// Close releases the worker pool and the storage backends.
func (a *App) Close() error {
	var errs []error
	a.closeOnce.Do(func() {
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// lazyModel defers model creation to the first call.
type lazyModel struct {
	get func() (llms.Model, error)
}

var _ llms.Model = (*lazyModel)(nil)

func (m *lazyModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	model, err := m.get()
	if err != nil {
		return nil, err
	}
	return model.GenerateContent(ctx, messages, options...)
}

func (m *lazyModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}
