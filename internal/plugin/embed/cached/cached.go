package cached

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/adrianwedd/ltm-service/internal/model"
	registryembed "github.com/adrianwedd/ltm-service/internal/registry/embed"
)

const (
	// DefaultCacheSize bounds the shared embedding LRU.
	DefaultCacheSize = 1024

	maxAttempts     = 3
	initialInterval = 500 * time.Millisecond
)

// Wrap decorates an embedder with a bounded LRU cache and a cancellable
// exponential-backoff retry envelope (0.5·2^i seconds, 3 attempts). The
// cache is shared across request handlers; golang-lru serializes access
// internally. After retries are exhausted the failure surfaces as
// EMBED_UNAVAILABLE.
func Wrap(inner registryembed.Embedder, size int) (*CachedEmbedder, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &CachedEmbedder{
		inner:           inner,
		cache:           cache,
		initialInterval: initialInterval,
	}, nil
}

// CachedEmbedder is the caching/retrying decorator around a concrete
// embedder plugin.
type CachedEmbedder struct {
	inner           registryembed.Embedder
	cache           *lru.Cache[string, []float32]
	initialInterval time.Duration
}

func (e *CachedEmbedder) ModelName() string {
	return e.inner.ModelName()
}

func (e *CachedEmbedder) Dimension() int {
	return e.inner.Dimension()
}

func (e *CachedEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if vec, ok := e.cache.Get(text); ok {
			results[i] = vec
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return results, nil
	}

	embedded, err := e.embedWithRetry(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, vec := range embedded {
		e.cache.Add(missing[j], vec)
		results[missingIdx[j]] = vec
	}
	return results, nil
}

func (e *CachedEmbedder) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var embedded [][]float32
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.initialInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	op := func() error {
		vecs, err := e.inner.EmbedTexts(ctx, texts)
		if err != nil {
			return err
		}
		embedded = vecs
		return nil
	}
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, maxAttempts-1), ctx))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &model.EmbedUnavailableError{Err: err}
	}
	return embedded, nil
}

var _ registryembed.Embedder = (*CachedEmbedder)(nil)
