package embed

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/concept-agent/backend/internal/metrics"
	"github.com/concept-agent/backend/pkg/logger"
	"github.com/concept-agent/backend/pkg/utils"
)

// Provider maps text to a fixed-dimension dense vector. Implementations must
// be safe for concurrent use; the resolver stages call them from parallel
// branches.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// RemoteCache is an optional second cache tier shared across processes,
// backed by Redis in production.
type RemoteCache interface {
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32, ttl time.Duration) error
}

// CachedProvider wraps an embedding backend with a read-through cache keyed
// by exact query text. A remote tier, when configured, is consulted after the
// local LRU and written through on miss. Remote failures are logged and
// treated as misses so the provider itself never fails on cache trouble.
type CachedProvider struct {
	backend Provider
	local   *lruCache
	remote  RemoteCache
	ttl     time.Duration
}

func NewCachedProvider(backend Provider, ttl time.Duration, maxEntries int, remote RemoteCache) *CachedProvider {
	return &CachedProvider{
		backend: backend,
		local:   newLRUCache(ttl, maxEntries),
		remote:  remote,
		ttl:     ttl,
	}
}

func (p *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if embedding, ok := p.lookup(ctx, text); ok {
		return embedding, nil
	}

	embedding, err := p.backend.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	p.store(ctx, text, embedding)
	return embedding, nil
}

// EmbedBatch resolves cached texts locally and sends only the misses to the
// backend in one call. Output order always matches input order.
func (p *CachedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	var missTexts []string
	var missIndices []int

	for i, text := range texts {
		if embedding, ok := p.lookup(ctx, text); ok {
			results[i] = embedding
			continue
		}
		missTexts = append(missTexts, text)
		missIndices = append(missIndices, i)
	}

	if len(missTexts) > 0 {
		metrics.EmbeddingBatchSize.Observe(float64(len(missTexts)))

		embeddings, err := p.backend.EmbedBatch(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		for j, embedding := range embeddings {
			if j >= len(missIndices) {
				break
			}
			results[missIndices[j]] = embedding
			p.store(ctx, missTexts[j], embedding)
		}
	}

	return results, nil
}

func (p *CachedProvider) lookup(ctx context.Context, text string) ([]float32, bool) {
	if embedding, ok := p.local.get(text); ok {
		metrics.CacheHits.WithLabelValues("embedding_local").Inc()
		return embedding, true
	}

	if p.remote != nil {
		embedding, ok, err := p.remote.GetEmbedding(ctx, utils.HashString(text))
		if err != nil {
			logger.Warn("Remote embedding cache lookup failed", zap.Error(err))
		} else if ok {
			metrics.CacheHits.WithLabelValues("embedding_remote").Inc()
			p.local.put(text, embedding)
			return embedding, true
		}
	}

	metrics.CacheMisses.WithLabelValues("embedding").Inc()
	return nil, false
}

func (p *CachedProvider) store(ctx context.Context, text string, embedding []float32) {
	p.local.put(text, embedding)

	if p.remote != nil {
		if err := p.remote.SetEmbedding(ctx, utils.HashString(text), embedding, p.ttl); err != nil {
			logger.Warn("Remote embedding cache write failed", zap.Error(err))
		}
	}
}

// ClearCache drops the local tier. The remote tier expires on its own TTL.
func (p *CachedProvider) ClearCache() {
	p.local.clear()
}

// CacheSize reports the local tier's entry count.
func (p *CachedProvider) CacheSize() int {
	return p.local.len()
}
