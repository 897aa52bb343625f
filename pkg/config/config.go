// Package config binds environment variables and the role-prompts YAML into
// one validated configuration object built at process start.
package config

import (
	"fmt"
	"strings"
	"time"
)

// ServerConfig holds HTTP-layer settings.
type ServerConfig struct {
	Port           int
	AppAPIKey      string
	SSEWriteBudget time.Duration
	DatabaseURL    string // empty runs the memory-backed chat store
}

// ProviderConfig is one LLM backend's settings.
type ProviderConfig struct {
	Name        string // "openai" | "anthropic" | openai-compatible alias
	Credentials []string
	BaseURL     string
	Model       string
}

// ProvidersConfig orders the fallback chain.
type ProvidersConfig struct {
	Order            []ProviderConfig
	FirstTokenBudget time.Duration
	CallTimeout      time.Duration
}

// VectorConfig selects and parameterizes the vector store.
type VectorConfig struct {
	Addr            string // qdrant gRPC address; empty runs in-memory
	APIKey          string
	Collection      string
	EmbeddingDim    int
	EmbeddingModel  string
	EmbeddingAPIKey string
	EmbeddingURL    string
}

// CacheConfig parameterizes the URL cache.
type CacheConfig struct {
	Path string
	TTL  time.Duration
}

// RetrievalConfig parameterizes retrieval and evidence gathering.
type RetrievalConfig struct {
	TopK          int
	FetchTimeout  time.Duration
	MaxIOWorkers  int
	SearchBackend string // "duckduckgo" | "static"
}

// DebateConfig bounds debate execution.
type DebateConfig struct {
	TotalBudget      time.Duration
	ReversalRounds   int
	SummarizeTimeout time.Duration
}

// RetentionConfig drives the background sweep.
type RetentionConfig struct {
	ChatRetention time.Duration
	SweepInterval time.Duration
}

// Config is the complete runtime configuration.
type Config struct {
	Server    ServerConfig
	Providers ProvidersConfig
	Vector    VectorConfig
	Cache     CacheConfig
	Retrieval RetrievalConfig
	Debate    DebateConfig
	Retention RetentionConfig
	Prompts   *Prompts
}

// Load reads the environment and the role-prompts YAML (path from
// ROLE_PROMPTS_PATH, optional) into a validated Config.
func Load() (*Config, error) {
	prompts, err := LoadPrompts(getEnv("ROLE_PROMPTS_PATH", ""))
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvInt("PORT", 8080),
			AppAPIKey:      getEnv("APP_API_KEY", ""),
			SSEWriteBudget: getEnvMillis("SSE_WRITE_BUDGET_MS", 5*time.Second),
			DatabaseURL:    getEnv("DATABASE_URL", ""),
		},
		Providers: ProvidersConfig{
			Order:            providerOrder(),
			FirstTokenBudget: getEnvMillis("PROVIDER_FIRST_TOKEN_MS", 20*time.Second),
			CallTimeout:      getEnvMillis("PROVIDER_CALL_TOTAL_MS", 60*time.Second),
		},
		Vector: VectorConfig{
			Addr:            getEnv("VECTOR_DB_PATH", ""),
			APIKey:          getEnv("QDRANT_API_KEY", ""),
			Collection:      getEnv("QDRANT_COLLECTION", "parley_memory"),
			EmbeddingDim:    getEnvInt("EMBEDDING_DIM", 384),
			EmbeddingModel:  getEnv("EMBEDDING_MODEL", ""),
			EmbeddingAPIKey: getEnv("EMBEDDING_API_KEY", ""),
			EmbeddingURL:    getEnv("OPENAI_BASE_URL", ""),
		},
		Cache: CacheConfig{
			Path: getEnv("CACHE_PATH", "./data/url_cache.json"),
			TTL:  getEnvSeconds("CACHE_TTL_SECONDS", 24*time.Hour),
		},
		Retrieval: RetrievalConfig{
			TopK:          getEnvInt("TOP_K", 5),
			FetchTimeout:  getEnvMillis("FETCH_TIMEOUT_MS", 10*time.Second),
			MaxIOWorkers:  getEnvInt("MAX_IO_WORKERS", 16),
			SearchBackend: getEnv("SEARCH_BACKEND", "duckduckgo"),
		},
		Debate: DebateConfig{
			TotalBudget:      getEnvMillis("DEBATE_TOTAL_MS", 5*time.Minute),
			ReversalRounds:   getEnvInt("REVERSAL_ROUNDS", 1),
			SummarizeTimeout: getEnvMillis("SUMMARIZE_TOTAL_MS", 20*time.Second),
		},
		Retention: RetentionConfig{
			ChatRetention: time.Duration(getEnvInt("RETENTION_DAYS", 30)) * 24 * time.Hour,
			SweepInterval: getEnvMillis("RETENTION_SWEEP_MS", time.Hour),
		},
		Prompts: prompts,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// providerOrder binds PROVIDER_ORDER to the credential and endpoint
// variables of each position: PRIMARY_CREDENTIALS for the first provider,
// SECONDARY_CREDENTIALS for the second, TERTIARY_CREDENTIALS for the third.
func providerOrder() []ProviderConfig {
	names := getEnvCSV("PROVIDER_ORDER")
	if len(names) == 0 {
		names = []string{"openai"}
	}
	credentialVars := []string{"PRIMARY_CREDENTIALS", "SECONDARY_CREDENTIALS", "TERTIARY_CREDENTIALS"}

	order := make([]ProviderConfig, 0, len(names))
	for i, name := range names {
		p := ProviderConfig{
			Name:  name,
			Model: getEnv("MODEL_"+strings.ToUpper(name), ""),
		}
		if i < len(credentialVars) {
			p.Credentials = getEnvCSV(credentialVars[i])
		}
		if name == "openai" {
			p.BaseURL = getEnv("OPENAI_BASE_URL", "")
		}
		order = append(order, p)
	}
	return order
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if len(c.Providers.Order) == 0 {
		return fmt.Errorf("no providers configured")
	}
	if c.Vector.EmbeddingDim <= 0 {
		return fmt.Errorf("invalid embedding dimension %d", c.Vector.EmbeddingDim)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("invalid top_k %d", c.Retrieval.TopK)
	}
	return nil
}
