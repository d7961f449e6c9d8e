package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// CachedGateway memoizes deterministic completions in Redis. Requests with a
// non-zero temperature bypass the cache entirely; caching a sampled reply
// would freeze one draw of the distribution.
type CachedGateway struct {
	inner  Gateway
	client *redis.Client
	model  string
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCachedGateway wraps gateway with a Redis-backed completion cache.
func NewCachedGateway(gateway Gateway, client *redis.Client, model string, ttl time.Duration, logger zerolog.Logger) *CachedGateway {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	return &CachedGateway{
		inner:  gateway,
		client: client,
		model:  model,
		ttl:    ttl,
		logger: logger.With().Str("component", "llm_cache").Logger(),
	}
}

// Complete serves deterministic prompts from cache when possible, delegating
// to the wrapped gateway on miss.
func (c *CachedGateway) Complete(ctx context.Context, prompt string, params Params) (string, error) {
	if params.Temperature > 0 {
		return c.inner.Complete(ctx, prompt, params)
	}

	key := c.cacheKey(prompt, params)
	if cached, err := c.client.Get(ctx, key).Result(); err == nil {
		return cached, nil
	} else if err != redis.Nil {
		c.logger.Warn().Err(err).Msg("completion cache lookup failed")
	}

	reply, err := c.inner.Complete(ctx, prompt, params)
	if err != nil {
		return "", err
	}

	if err := c.client.Set(ctx, key, reply, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("failed to store completion in cache")
	}

	return reply, nil
}

// IsAvailable delegates to the wrapped gateway; availability is never cached.
func (c *CachedGateway) IsAvailable(ctx context.Context) bool {
	return c.inner.IsAvailable(ctx)
}

func (c *CachedGateway) cacheKey(prompt string, params Params) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%t|%s", c.model, params.MaxTokens, params.JSONMode, prompt)))
	return "llm:completion:" + hex.EncodeToString(sum[:])
}
