// Parley server — debate orchestration over a multi-provider LLM gateway,
// with web evidence gathering, vector memory, and chat persistence.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/parley-ai/parley/pkg/api"
	"github.com/parley-ai/parley/pkg/chatstore"
	"github.com/parley-ai/parley/pkg/config"
	"github.com/parley-ai/parley/pkg/debate"
	"github.com/parley-ai/parley/pkg/evidence"
	"github.com/parley-ai/parley/pkg/llm"
	"github.com/parley-ai/parley/pkg/memory"
	"github.com/parley-ai/parley/pkg/retriever"
	"github.com/parley-ai/parley/pkg/services"
	"github.com/parley-ai/parley/pkg/summarize"
	"github.com/parley-ai/parley/pkg/urlcache"
	"github.com/parley-ai/parley/pkg/vectorstore"
	"github.com/parley-ai/parley/pkg/version"
	"github.com/parley-ai/parley/pkg/webfetch"
)

func main() {
	envPath := flag.String("env-file", ".env", "Path to .env file")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", *envPath, "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// 1. Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("Starting parley", "version", version.Full(), "port", cfg.Server.Port)

	// 2. LLM gateway over the configured provider chain
	clients, err := buildClients(cfg.Providers)
	if err != nil {
		slog.Error("Failed to initialize providers", "error", err)
		os.Exit(1)
	}
	gateway := llm.NewGateway(clients, llm.GatewayOptions{
		FirstTokenBudget: cfg.Providers.FirstTokenBudget,
	})
	slog.Info("Provider chain initialized", "providers", gateway.Providers())

	// 3. Vector store and embedder
	store, err := buildStore(ctx, cfg.Vector)
	if err != nil {
		slog.Error("Failed to initialize vector store", "error", err)
		os.Exit(1)
	}

	// 4. Web pipeline: cache → fetch → summarize
	cache := urlcache.Open(cfg.Cache.Path, urlcache.Options{TTL: cfg.Cache.TTL})
	defer func() {
		if err := cache.Close(); err != nil {
			slog.Error("Error closing URL cache", "error", err)
		}
	}()
	fetcher := webfetch.New(webfetch.Options{Timeout: cfg.Retrieval.FetchTimeout})
	summarizer := summarize.New(gateway, summarize.Options{Timeout: cfg.Debate.SummarizeTimeout})

	// 5. Retrieval and memory
	scorer := evidence.NewScorer(cfg.Prompts.AuthorityScores)
	rt := retriever.New(store, retriever.Options{
		TopK:      cfg.Retrieval.TopK,
		Authority: scorer.Authority,
	})
	mem := memory.New(rt, store, cache, fetcher, summarizer, memory.Options{})

	// 6. Evidence gathering
	var backend evidence.SearchBackend
	switch cfg.Retrieval.SearchBackend {
	case "static":
		backend = &evidence.StaticBackend{}
	default:
		backend = &evidence.DuckDuckGoBackend{}
	}
	gatherer := evidence.New(backend, mem, scorer, evidence.Options{
		Workers: cfg.Retrieval.MaxIOWorkers,
	})

	// 7. Debate orchestration
	registry := debate.NewRegistry()
	orchestrator := debate.New(gateway, mem, gatherer, cfg.Prompts, registry, debate.Options{
		TotalBudget:    cfg.Debate.TotalBudget,
		ReversalRounds: cfg.Debate.ReversalRounds,
	})

	// 8. Chat persistence
	chats, err := buildChatStore(ctx, cfg.Server.DatabaseURL)
	if err != nil {
		slog.Error("Failed to initialize chat store", "error", err)
		os.Exit(1)
	}
	defer chats.Close()

	// 9. Domain services and the retention sweep
	params := llm.Params{}
	retention := services.NewRetention(chats, cache, cfg.Retention.ChatRetention, cfg.Retention.SweepInterval)
	retention.Start(ctx)
	defer retention.Stop()

	server := api.NewServer(api.Deps{
		Gateway:      gateway,
		Orchestrator: orchestrator,
		Registry:     registry,
		Analysis:     services.NewAnalysisService(gateway, mem, cfg.Prompts, params),
		V2:           services.NewV2Service(gateway, gatherer, cfg.Prompts, params, cfg.Debate.TotalBudget),
		TextAction:   services.NewTextActionService(gateway, cfg.Prompts, params),
		Headlines:    services.NewHeadlinesService(time.Now().UnixNano()),
		Chats:        chats,
		Memory:       mem,
		Vectors:      store,
	}, api.Options{
		Port:           cfg.Server.Port,
		APIKey:         cfg.Server.AppAPIKey,
		SSEWriteBudget: cfg.Server.SSEWriteBudget,
	})

	// 10. Serve until a shutdown signal arrives
	if err := server.Start(ctx); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Shutdown complete")
}

// buildClients constructs one adapter per configured provider, in fallback
// order.
func buildClients(cfg config.ProvidersConfig) ([]llm.Client, error) {
	clients := make([]llm.Client, 0, len(cfg.Order))
	for _, p := range cfg.Order {
		switch p.Name {
		case "anthropic":
			c, err := llm.NewAnthropicAdapter(p.Name, p.Credentials, llm.AnthropicOptions{
				BaseURL:     p.BaseURL,
				Model:       p.Model,
				CallTimeout: cfg.CallTimeout,
			})
			if err != nil {
				return nil, err
			}
			clients = append(clients, c)
		default:
			// openai and openai-compatible aliases
			c, err := llm.NewOpenAIAdapter(p.Name, p.Credentials, llm.OpenAIOptions{
				BaseURL:     p.BaseURL,
				Model:       p.Model,
				CallTimeout: cfg.CallTimeout,
			})
			if err != nil {
				return nil, err
			}
			clients = append(clients, c)
		}
	}
	return clients, nil
}

// buildStore selects qdrant when an address is configured, otherwise the
// in-memory store for development runs.
func buildStore(ctx context.Context, cfg config.VectorConfig) (vectorstore.Store, error) {
	var embedder vectorstore.Embedder
	if cfg.EmbeddingModel != "" && cfg.EmbeddingAPIKey != "" {
		embedder = vectorstore.NewOpenAIEmbedder(cfg.EmbeddingAPIKey, cfg.EmbeddingURL, cfg.EmbeddingModel, cfg.EmbeddingDim)
	} else {
		embedder = vectorstore.NewHashingEmbedder(cfg.EmbeddingDim)
	}

	if cfg.Addr == "" {
		slog.Info("Vector store running in-memory", "dim", cfg.EmbeddingDim)
		return vectorstore.NewMemory(embedder), nil
	}
	store, err := vectorstore.NewQdrant(vectorstore.QdrantConfig{
		Addr:       cfg.Addr,
		APIKey:     cfg.APIKey,
		Collection: cfg.Collection,
	}, embedder)
	if err != nil {
		return nil, err
	}
	ensureCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := store.EnsureCollection(ensureCtx); err != nil {
		return nil, err
	}
	slog.Info("Connected to qdrant", "addr", cfg.Addr, "collection", cfg.Collection)
	return store, nil
}

// buildChatStore connects to PostgreSQL when DATABASE_URL is set, otherwise
// keeps chats in memory.
func buildChatStore(ctx context.Context, databaseURL string) (chatstore.Store, error) {
	if databaseURL == "" {
		slog.Info("Chat store running in-memory")
		return chatstore.NewMemory(), nil
	}
	store, err := chatstore.NewPostgres(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	slog.Info("Connected to PostgreSQL chat store")
	return store, nil
}
