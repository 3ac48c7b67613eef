package embeddings

import (
	"context"

	"golang.org/x/time/rate"
)

// WithRateLimit wraps p so that at most rps requests per second reach it.
// A burst below 1 is treated as 1.
func WithRateLimit(p Provider, rps float64, burst int) Provider {
	if p == nil || rps <= 0 {
		return p
	}
	return &limitedProvider{
		next:    p,
		limiter: rate.NewLimiter(rate.Limit(rps), max(burst, 1)),
	}
}

type limitedProvider struct {
	next    Provider
	limiter *rate.Limiter
}

func (l *limitedProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.next.EmbedDocuments(ctx, texts)
}

func (l *limitedProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.next.EmbedQuery(ctx, text)
}

func (l *limitedProvider) Dimension() int { return l.next.Dimension() }

func (l *limitedProvider) Close() error { return l.next.Close() }
