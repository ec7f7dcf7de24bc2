package harness

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/jarvis/jarvis/config"
	"github.com/ZanzyTHEbar/jarvis/jarvis/generation/harness/adapters"
	ports "github.com/ZanzyTHEbar/jarvis/jarvis/generation/harness/ports"
	"github.com/ZanzyTHEbar/jarvis/jarvis/memory/service"
)

// Factory creates and wires dispatcher components from configuration.
type Factory struct {
	cfg    *config.Config
	db     *sql.DB // optional, nil keeps memory in process
	logger zerolog.Logger

	store ports.KVStore
}

// NewFactory creates a new harness factory.
func NewFactory(cfg *config.Config, db *sql.DB, logger zerolog.Logger) *Factory {
	return &Factory{cfg: cfg, db: db, logger: logger}
}

// CreateDispatcher builds the knowledge base, profile, providers and infrastructure adapters.
func (f *Factory) CreateDispatcher(ctx context.Context) (*Dispatcher, error) {
	knowledge, err := f.CreateKnowledgeBase(ctx)
	if err != nil {
		return nil, err
	}

	deps := Dependencies{
		Provider:  f.CreateProvider(),
		Searcher:  f.CreateSearcher(),
		Fetcher:   f.CreateFetcher(),
		Knowledge: knowledge,
		Profile:   service.NewProfile(f.Store()),
		Limiter:   f.createRateLimiter(),
		Tracer:    f.createTracer(),
	}

	return NewDispatcher(deps, f.CreatePolicy(), f.logger), nil
}

// Store returns the key/value store shared by the knowledge base and the profile.
func (f *Factory) Store() ports.KVStore {
	if f.store != nil {
		return f.store
	}
	if f.db == nil {
		f.store = adapters.NewMemoryKVStore()
	} else {
		f.store = adapters.NewLibSQLKVStore(f.db)
	}
	return f.store
}

// CreateKnowledgeBase loads the persisted knowledge list.
func (f *Factory) CreateKnowledgeBase(ctx context.Context) (*service.KnowledgeBase, error) {
	kb, err := service.NewKnowledgeBase(ctx, f.Store(), service.KnowledgeOptions{
		StorageKey: f.cfg.Knowledge.StorageKey,
		MaxEntries: f.cfg.Knowledge.MaxEntries,
		MaxContent: f.cfg.Knowledge.MaxContent,
		Eviction:   service.ParseEvictionPolicy(f.cfg.Knowledge.Eviction),
		Logger:     f.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load knowledge base: %w", err)
	}
	return kb, nil
}

// CreateProvider creates the conversational model provider.
func (f *Factory) CreateProvider() ports.Provider {
	return adapters.NewOpenAIProvider(adapters.OpenAIConfig{
		Name:    f.cfg.LLM.Provider,
		BaseURL: f.cfg.LLM.BaseURL,
		APIKey:  f.cfg.LLM.APIKey,
		Model:   f.cfg.LLM.Model,
		Timeout: max(f.cfg.LLM.Timeout, f.cfg.Scene.Timeout),
	}, f.logger)
}

// CreateSearcher builds the fallback chain in configured order. Unknown names are skipped with a warning.
func (f *Factory) CreateSearcher() ports.Searcher {
	sc := adapters.SearchConfig{
		UserAgent:  f.cfg.Search.UserAgent,
		MaxResults: f.cfg.Search.MaxResults,
	}

	var providers []ports.Searcher
	for _, name := range f.cfg.Search.Providers {
		switch name {
		case "ddg_instant":
			providers = append(providers, adapters.NewDDGInstantSearcher(sc))
		case "ddg_lite":
			providers = append(providers, adapters.NewDDGLiteSearcher(sc))
		case "ddg_html":
			providers = append(providers, adapters.NewDDGHTMLSearcher(sc))
		default:
			f.logger.Warn().Str("provider", name).Msg("Unknown search provider, skipping")
		}
	}

	opts := []adapters.FallbackOption{
		adapters.WithProviderTimeout(f.cfg.Search.Timeout),
		adapters.WithSearchLogger(f.logger),
	}
	if f.cfg.Search.CacheEnabled {
		opts = append(opts, adapters.WithSearchCache(adapters.NewLRUCache(f.cfg.Search.CacheCapacity), f.cfg.Search.CacheTTLSeconds))
	}
	return adapters.NewFallbackSearcher(providers, opts...)
}

// CreateFetcher creates the READ page fetcher.
func (f *Factory) CreateFetcher() ports.Fetcher {
	return adapters.NewHTMLFetcher(f.cfg.Search.FetchTimeout, f.cfg.Search.FetchMaxChars, f.cfg.Search.UserAgent)
}

// CreatePolicy creates the chat policy from config with validation.
func (f *Factory) CreatePolicy() *Policy {
	policy := DefaultPolicy()
	policy.AssistantName = f.cfg.Assistant.Name
	policy.Model = f.cfg.LLM.Model

	if f.cfg.LLM.MaxTokens > 0 {
		policy.MaxTokens = f.cfg.LLM.MaxTokens
	}
	if f.cfg.LLM.Timeout > 0 {
		policy.Timeout = f.cfg.LLM.Timeout
	}
	policy.Temperature = f.cfg.LLM.Temperature
	if policy.Temperature < 0 || policy.Temperature > 2 {
		f.logger.Warn().Float32("temperature", f.cfg.LLM.Temperature).Msg("Temperature out of range, using 0.7")
		policy.Temperature = 0.7
	}

	return policy
}

// SessionOptions maps the assistant section onto session limits.
func (f *Factory) SessionOptions() service.SessionOptions {
	return service.SessionOptions{
		MaxTurns:          f.cfg.Assistant.MaxTurns,
		SummaryMaxLength:  f.cfg.Assistant.SummaryMaxLength,
		SummaryTrimLength: f.cfg.Assistant.SummaryTrimLength,
	}
}

func (f *Factory) createRateLimiter() ports.RateLimiter {
	if !f.cfg.Harness.RateLimitEnabled {
		return noOpLimiter{}
	}
	return adapters.NewTokenBucket(f.cfg.Harness.RateLimitCapacity, f.cfg.Harness.RateLimitRefillRate)
}

func (f *Factory) createTracer() ports.Tracer {
	if !f.cfg.Harness.EnableTracing {
		return noOpTracer{}
	}
	return adapters.NewZerologTracer(f.logger)
}

// noOpLimiter implements RateLimiter with no-op behavior.
type noOpLimiter struct{}

func (noOpLimiter) Acquire(ctx context.Context, key string) (func(), error) { return func() {}, nil }

// noOpTracer implements Tracer with no-op behavior.
type noOpTracer struct{}

func (noOpTracer) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error)) {
	return ctx, func(error) {}
}

func (noOpTracer) Event(ctx context.Context, name string, attrs map[string]any) {}

var (
	_ ports.RateLimiter = noOpLimiter{}
	_ ports.Tracer      = noOpTracer{}
)
