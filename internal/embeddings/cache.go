package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// WithCache wraps p with an expiring LRU cache keyed by model, task and
// text. Re-ingesting unchanged chunks then skips the provider.
func WithCache(p Provider, model string, size int, ttl time.Duration) Provider {
	if p == nil || size <= 0 || ttl <= 0 {
		return p
	}
	return &cachedProvider{
		next:  p,
		model: model,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type cachedProvider struct {
	next  Provider
	model string
	cache *expirable.LRU[string, []float32]
}

func (c *cachedProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return c.next.EmbedDocuments(ctx, texts)
	}

	out := make([][]float32, len(texts))
	var missing []int
	for i, text := range texts {
		if v, ok := c.cache.Get(c.key("passage", text)); ok {
			out[i] = slices.Clone(v)
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	pending := make([]string, len(missing))
	for j, i := range missing {
		pending[j] = texts[i]
	}
	vectors, err := c.next.EmbedDocuments(ctx, pending)
	if err != nil {
		return nil, err
	}
	for j, i := range missing {
		if j >= len(vectors) {
			break
		}
		out[i] = vectors[j]
		c.cache.Add(c.key("passage", texts[i]), slices.Clone(vectors[j]))
	}
	return out, nil
}

func (c *cachedProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := c.key("query", text)
	if v, ok := c.cache.Get(key); ok {
		return slices.Clone(v), nil
	}
	v, err := c.next.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, slices.Clone(v))
	return v, nil
}

func (c *cachedProvider) Dimension() int { return c.next.Dimension() }

func (c *cachedProvider) Close() error {
	c.cache.Purge()
	return c.next.Close()
}

func (c *cachedProvider) key(task, text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.model + "|" + task + "|" + hex.EncodeToString(sum[:])
}
