// Package config loads tenantflow settings.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// environment variables. A .env file is read into the environment first;
// variables that are already set win over it.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/smallnest/tenantflow/llm"
	"github.com/smallnest/tenantflow/log"
	"gopkg.in/yaml.v3"
)

// Checkpointer backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendBadger   = "badger"
)

// Log formats.
const (
	LogFormatText  = "text"
	LogFormatGolog = "golog"
)

// ProviderConfig configures one LLM provider.
type ProviderConfig struct {
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// LLMConfig selects the default provider and configures each one.
type LLMConfig struct {
	Provider string         `yaml:"provider"`
	OpenAI   ProviderConfig `yaml:"openai"`
	Ollama   ProviderConfig `yaml:"ollama"`
	Local    ProviderConfig `yaml:"local"`

	// EmbeddingModel is used with the local provider for knowledge
	// retrieval. Empty selects the offline hash embedder.
	EmbeddingModel string `yaml:"embedding_model"`
}

// Settings returns the model settings for p.
func (c LLMConfig) Settings(p llm.Provider) llm.Settings {
	var pc ProviderConfig
	switch p {
	case llm.ProviderOpenAI:
		pc = c.OpenAI
	case llm.ProviderOllama:
		pc = c.Ollama
	case llm.ProviderLocal:
		pc = c.Local
	}
	return llm.Settings{Model: pc.Model, APIKey: pc.APIKey, BaseURL: pc.BaseURL}
}

// AgentConfig tunes the chat agent.
type AgentConfig struct {
	// SystemPrompt replaces the built-in prompt when set.
	SystemPrompt string `yaml:"system_prompt"`
	MaxToolHops  int    `yaml:"max_tool_hops"`
	RetrievalK   int    `yaml:"retrieval_k"`

	// KnowledgeDir holds documents indexed for retrieval at startup.
	KnowledgeDir string `yaml:"knowledge_dir"`

	// BraveAPIKey enables the web_search tool.
	BraveAPIKey string `yaml:"brave_api_key"`
}

// CheckpointerConfig selects where thread snapshots are kept.
type CheckpointerConfig struct {
	Backend string `yaml:"backend"`

	// DSN is the redis address, the sqlite file, the postgres connection
	// string or the badger directory.
	DSN      string        `yaml:"dsn"`
	Capacity int           `yaml:"capacity"`
	TTL      time.Duration `yaml:"ttl"`
}

// SpamConfig picks the triage collaborators.
type SpamConfig struct {
	LLMClassifier bool `yaml:"llm_classifier"`
	LLMRouter     bool `yaml:"llm_router"`
}

// IngestionConfig selects the relational repository backend.
type IngestionConfig struct {
	Repository string `yaml:"repository"`
	DSN        string `yaml:"dsn"`
}

// WorkerConfig sizes the collaborator pool.
type WorkerConfig struct {
	// PoolSize of 0 runs collaborator calls without a pool.
	PoolSize int           `yaml:"pool_size"`
	Timeout  time.Duration `yaml:"timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// NewLogger builds the configured logger writing to w.
func (c LogConfig) NewLogger(w io.Writer) (log.Logger, error) {
	level, err := log.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	if c.Format == LogFormatText {
		return log.NewCustomLogger(w, level), nil
	}
	return log.NewGolog(w, level), nil
}

// HTTPConfig configures the serve command.
type HTTPConfig struct {
	Addr    string `yaml:"addr"`
	Metrics bool   `yaml:"metrics"`
}

// Config is the full tenantflow configuration.
type Config struct {
	LLM          LLMConfig          `yaml:"llm"`
	Agent        AgentConfig        `yaml:"agent"`
	Checkpointer CheckpointerConfig `yaml:"checkpointer"`
	Spam         SpamConfig         `yaml:"spam"`
	Ingestion    IngestionConfig    `yaml:"ingestion"`
	Workers      WorkerConfig       `yaml:"workers"`
	Log          LogConfig          `yaml:"log"`
	HTTP         HTTPConfig         `yaml:"http"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider: string(llm.ProviderOpenAI),
			OpenAI:   ProviderConfig{Model: "gpt-4o-mini"},
			Ollama:   ProviderConfig{Model: "llama3.1", BaseURL: "http://localhost:11434"},
			Local:    ProviderConfig{Model: "default", BaseURL: "http://localhost:8000/v1"},
		},
		Agent: AgentConfig{
			MaxToolHops: 5,
			RetrievalK:  4,
		},
		Checkpointer: CheckpointerConfig{
			Backend:  BackendMemory,
			Capacity: 10000,
			TTL:      24 * time.Hour,
		},
		Ingestion: IngestionConfig{Repository: BackendMemory},
		Workers:   WorkerConfig{PoolSize: 64, Timeout: 60 * time.Second},
		Log:       LogConfig{Level: "info", Format: LogFormatGolog},
		HTTP:      HTTPConfig{Addr: ":8080", Metrics: true},
	}
}

// Load reads the configuration. path names an optional YAML file. envFiles
// lists .env files to read; without any, ./.env is read when it exists.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if len(envFiles) == 0 {
		if _, err := os.Stat(".env"); err == nil {
			envFiles = []string{".env"}
		}
	}
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	e := envReader{lookup: lookup}

	e.setString("TENANTFLOW_PROVIDER", &c.LLM.Provider)
	e.setString("TENANTFLOW_OPENAI_MODEL", &c.LLM.OpenAI.Model)
	e.setString("OPENAI_API_KEY", &c.LLM.OpenAI.APIKey)
	e.setString("OPENAI_BASE_URL", &c.LLM.OpenAI.BaseURL)
	e.setString("TENANTFLOW_OLLAMA_MODEL", &c.LLM.Ollama.Model)
	e.setString("TENANTFLOW_OLLAMA_URL", &c.LLM.Ollama.BaseURL)
	e.setString("TENANTFLOW_LOCAL_MODEL", &c.LLM.Local.Model)
	e.setString("TENANTFLOW_LOCAL_URL", &c.LLM.Local.BaseURL)
	e.setString("TENANTFLOW_LOCAL_API_KEY", &c.LLM.Local.APIKey)
	e.setString("TENANTFLOW_EMBEDDING_MODEL", &c.LLM.EmbeddingModel)

	e.setString("TENANTFLOW_SYSTEM_PROMPT", &c.Agent.SystemPrompt)
	e.setInt("TENANTFLOW_MAX_TOOL_HOPS", &c.Agent.MaxToolHops)
	e.setInt("TENANTFLOW_RETRIEVAL_K", &c.Agent.RetrievalK)
	e.setString("TENANTFLOW_KNOWLEDGE_DIR", &c.Agent.KnowledgeDir)
	e.setString("BRAVE_API_KEY", &c.Agent.BraveAPIKey)

	e.setString("TENANTFLOW_CHECKPOINTER", &c.Checkpointer.Backend)
	e.setString("TENANTFLOW_CHECKPOINTER_DSN", &c.Checkpointer.DSN)
	e.setInt("TENANTFLOW_CHECKPOINTER_CAPACITY", &c.Checkpointer.Capacity)
	e.setDuration("TENANTFLOW_CHECKPOINTER_TTL", &c.Checkpointer.TTL)

	e.setBool("TENANTFLOW_SPAM_LLM_CLASSIFIER", &c.Spam.LLMClassifier)
	e.setBool("TENANTFLOW_SPAM_LLM_ROUTER", &c.Spam.LLMRouter)

	e.setString("TENANTFLOW_REPOSITORY", &c.Ingestion.Repository)
	e.setString("TENANTFLOW_REPOSITORY_DSN", &c.Ingestion.DSN)

	e.setInt("TENANTFLOW_WORKERS", &c.Workers.PoolSize)
	e.setDuration("TENANTFLOW_COLLAB_TIMEOUT", &c.Workers.Timeout)

	e.setString("TENANTFLOW_LOG_LEVEL", &c.Log.Level)
	e.setString("TENANTFLOW_LOG_FORMAT", &c.Log.Format)

	e.setString("TENANTFLOW_HTTP_ADDR", &c.HTTP.Addr)
	e.setBool("TENANTFLOW_METRICS", &c.HTTP.Metrics)

	return errors.Join(e.errs...)
}

// envReader overwrites fields from non-empty variables and collects parse errors.
type envReader struct {
	lookup lookupFunc
	errs   []error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *envReader) setString(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) setInt(key string, dst *int) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return
	}
	*dst = n
}

func (e *envReader) setBool(key string, dst *bool) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return
	}
	*dst = b
}

func (e *envReader) setDuration(key string, dst *time.Duration) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return
	}
	*dst = d
}

// Provider returns the default provider.
func (c *Config) Provider() llm.Provider {
	return llm.Provider(strings.ToLower(strings.TrimSpace(c.LLM.Provider)))
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if _, err := llm.ParseProvider(c.LLM.Provider); err != nil {
		errs = append(errs, fmt.Errorf("llm.provider: %w", err))
	}

	if c.Agent.MaxToolHops < 1 || c.Agent.MaxToolHops > 50 {
		errs = append(errs, fmt.Errorf("agent.max_tool_hops must be 1-50, got %d", c.Agent.MaxToolHops))
	}
	if c.Agent.RetrievalK < 1 || c.Agent.RetrievalK > 50 {
		errs = append(errs, fmt.Errorf("agent.retrieval_k must be 1-50, got %d", c.Agent.RetrievalK))
	}

	switch c.Checkpointer.Backend {
	case BackendMemory:
	case BackendRedis, BackendSQLite, BackendPostgres, BackendBadger:
		if c.Checkpointer.DSN == "" {
			errs = append(errs, fmt.Errorf("checkpointer.dsn is required for the %s backend", c.Checkpointer.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("checkpointer.backend: unknown backend %q", c.Checkpointer.Backend))
	}
	if c.Checkpointer.TTL < 0 {
		errs = append(errs, fmt.Errorf("checkpointer.ttl must not be negative, got %s", c.Checkpointer.TTL))
	}

	switch c.Ingestion.Repository {
	case BackendMemory:
	case BackendSQLite, BackendPostgres:
		if c.Ingestion.DSN == "" {
			errs = append(errs, fmt.Errorf("ingestion.dsn is required for the %s repository", c.Ingestion.Repository))
		}
	default:
		errs = append(errs, fmt.Errorf("ingestion.repository: unknown backend %q", c.Ingestion.Repository))
	}

	if c.Workers.PoolSize < 0 {
		errs = append(errs, fmt.Errorf("workers.pool_size must not be negative, got %d", c.Workers.PoolSize))
	}
	if c.Workers.Timeout < 0 {
		errs = append(errs, fmt.Errorf("workers.timeout must not be negative, got %s", c.Workers.Timeout))
	}

	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != LogFormatText && c.Log.Format != LogFormatGolog {
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
