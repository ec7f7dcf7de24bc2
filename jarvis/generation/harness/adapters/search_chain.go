package adapters

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	ports "github.com/ZanzyTHEbar/jarvis/jarvis/generation/harness/ports"
)

// FallbackSearcher tries its providers in order and returns the first non-empty digest.
// Each provider is attempted at most once per query and gets its own deadline.
type FallbackSearcher struct {
	providers []ports.Searcher
	timeout   time.Duration
	cache     ports.Cache // optional
	cacheTTL  int
	logger    zerolog.Logger
}

// FallbackOption customizes a FallbackSearcher.
type FallbackOption func(*FallbackSearcher)

// WithSearchCache memoizes successful digests for ttlSeconds.
func WithSearchCache(cache ports.Cache, ttlSeconds int) FallbackOption {
	return func(f *FallbackSearcher) {
		f.cache = cache
		f.cacheTTL = ttlSeconds
	}
}

// WithProviderTimeout bounds each provider attempt.
func WithProviderTimeout(timeout time.Duration) FallbackOption {
	return func(f *FallbackSearcher) { f.timeout = timeout }
}

// WithSearchLogger sets the logger.
func WithSearchLogger(logger zerolog.Logger) FallbackOption {
	return func(f *FallbackSearcher) { f.logger = logger }
}

func NewFallbackSearcher(providers []ports.Searcher, opts ...FallbackOption) *FallbackSearcher {
	f := &FallbackSearcher{
		providers: providers,
		timeout:   8 * time.Second,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *FallbackSearcher) Name() string { return "fallback" }

// Search walks the chain. Exhausting it yields a transient ErrNoResults.
func (f *FallbackSearcher) Search(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ports.ValidationError("search", errors.New("no search query provided"))
	}

	key := cacheKey(query)
	if f.cache != nil {
		if v, ok := f.cache.Get(ctx, key); ok {
			f.logger.Debug().Str("query", query).Msg("Search cache hit")
			return string(v), nil
		}
	}

	var attempted []string
	for _, p := range f.providers {
		if err := ctx.Err(); err != nil {
			return "", classifyTransport(ctx, "search", p.Name(), err)
		}

		digest, err := f.attempt(ctx, p, query)
		attempted = append(attempted, p.Name())
		if err != nil {
			f.logger.Debug().Err(err).Str("provider", p.Name()).Str("query", query).Msg("Search provider failed")
			continue
		}

		if f.cache != nil {
			if err := f.cache.Set(ctx, key, []byte(digest), f.cacheTTL); err != nil {
				f.logger.Warn().Err(err).Msg("Failed to cache search digest")
			}
		}
		return digest, nil
	}

	return "", ports.TransientError("search", strings.Join(attempted, ","),
		fmt.Errorf("%w for %q", ports.ErrNoResults, query))
}

func (f *FallbackSearcher) attempt(ctx context.Context, p ports.Searcher, query string) (string, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	digest, err := p.Search(ctx, query)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(digest) == "" {
		return "", ports.ErrNoResults
	}
	return strings.TrimSpace(digest), nil
}

func cacheKey(query string) string {
	return "search:" + strings.ToLower(strings.Join(strings.Fields(query), " "))
}

var _ ports.Searcher = (*FallbackSearcher)(nil)
