package server

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mohammad-safakhou/pagechat/config"
	"github.com/mohammad-safakhou/pagechat/internal/answer"
	"github.com/mohammad-safakhou/pagechat/internal/telemetry"
	"github.com/mohammad-safakhou/pagechat/provider"
	openai_provider "github.com/mohammad-safakhou/pagechat/provider/openai"
	"github.com/mohammad-safakhou/pagechat/session"
	"github.com/mohammad-safakhou/pagechat/session/inmemory"
	redis_session "github.com/mohammad-safakhou/pagechat/session/redis"
	"github.com/mohammad-safakhou/pagechat/tools/embedding"
	"github.com/mohammad-safakhou/pagechat/tools/search"
	"github.com/mohammad-safakhou/pagechat/tools/web_extract"
	"github.com/mohammad-safakhou/pagechat/tools/web_fetch"
	"github.com/mohammad-safakhou/pagechat/tools/web_ingest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func newLogger(prefix string) *log.Logger {
	return log.New(log.Writer(), "["+prefix+"] ", log.LstdFlags)
}

// Build assembles the production dependency graph from cfg.
func Build(ctx context.Context, cfg *config.Config) (Deps, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(reg)

	deps := Deps{Metrics: metrics, Gatherer: reg, Logger: newLogger("HTTP")}

	fetcher, err := web_fetch.NewWebFetcher(cfg.Fetch)
	if err != nil {
		return Deps{}, err
	}
	extractor := web_extract.NewExtractor(fetcher, cfg.Extract, newLogger("EXTRACT"))

	opts := search.Options{Mode: search.Mode(cfg.Retrieval.Mode), TopK: cfg.Retrieval.TopK}
	embedder, err := newEmbedder(cfg.Embedding)
	if err != nil {
		return Deps{}, err
	}
	if embedder == nil && opts.Mode != search.ModeLexical {
		deps.Logger.Printf("no embedding key configured, retrieval mode %s downgraded to lexical", opts.Mode)
		opts.Mode = search.ModeLexical
	}

	store, closer, err := newStore(ctx, cfg, embedder)
	if err != nil {
		return Deps{}, err
	}
	if closer != nil {
		deps.Closers = append(deps.Closers, closer)
	}
	deps.Store = store

	sweeper, err := session.NewSweeper(store, cfg.Session.TTL, cfg.Session.SweepSchedule, newLogger("SWEEP"),
		session.WithSweepHook(metrics.Swept))
	if err != nil {
		return Deps{}, err
	}
	deps.Sweeper = sweeper

	deps.Scraper = &web_ingest.Ingest{
		Extractor: extractor,
		Chunker:   web_ingest.Chunker{Size: cfg.Chunk.Size, Overlap: cfg.Chunk.Overlap},
		Embedder:  embedder,
		Search:    opts,
		Store:     store,
		Metrics:   metrics,
		Logger:    newLogger("SCRAPE"),
	}

	llm := openai_provider.NewClient(openai_provider.Options{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Timeout: cfg.LLM.Timeout,
	})
	params := provider.Params{Model: cfg.LLM.Model, Temperature: cfg.LLM.Temperature, MaxTokens: cfg.LLM.MaxTokens}
	deps.Answerer = answer.New(llm, params, opts.TopK, metrics, newLogger("CHAT"))

	return deps, nil
}

// newEmbedder returns nil when no embedding credential is configured.
func newEmbedder(cfg config.EmbeddingConfig) (search.Embedder, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, nil
	}
	client := openai_provider.NewClient(openai_provider.Options{
		APIKey:         cfg.APIKey,
		BaseURL:        cfg.BaseURL,
		EmbeddingModel: cfg.Model,
		Timeout:        cfg.Timeout,
	})
	emb, err := embedding.NewEmbedding(client, cfg.Model, cfg.BatchSize, cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	return emb, nil
}

func newStore(ctx context.Context, cfg *config.Config, embedder search.Embedder) (session.Store, func() error, error) {
	switch session.StoreType(cfg.Session.Store) {
	case session.InMemoryStore, "":
		return inmemory.NewInMemorySessionStore(cfg.Session.TTL), nil, nil
	case session.RedisStore:
		client := redis_session.NewClient(cfg.Storage.Redis)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis connection failed (%s): %w", cfg.Storage.Redis.Addr(), err)
		}
		store, err := redis_session.NewRedisSessionStore(client, redis_session.Options{
			KeyPrefix:      cfg.Storage.Redis.KeyPrefix,
			TTL:            cfg.Session.TTL,
			Embedder:       embedder,
			IndexCacheSize: cfg.Session.IndexCache,
		})
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported session store %q", cfg.Session.Store)
	}
}
