// Package cache provides a Redis-backed response cache decorating an
// inference backend. Identical requests against the same target are served
// from the cache, which both cuts spend and keeps repeated investigations of
// one claim deterministic.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veracitybio/veracity/pkg/inference"
)

const keyPrefix = "veracity:inference:"

// Backend wraps an inference.Backend with a Redis read-through cache.
// Cache failures are logged and ignored; the inner backend is the source of
// truth.
type Backend struct {
	inner  inference.Backend
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New connects to redisURL and decorates inner. A zero ttl keeps entries
// for 24 hours.
func New(inner inference.Backend, redisURL string, ttl time.Duration, logger *slog.Logger) (*Backend, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Backend{
		inner:  inner,
		client: redis.NewClient(opts),
		ttl:    ttl,
		logger: logger.With("module", "inference_cache"),
	}, nil
}

func (b *Backend) Generate(ctx context.Context, target string, req inference.Request) (string, error) {
	key := cacheKey(target, req)

	cached, err := b.client.Get(ctx, key).Result()
	if err == nil && cached != "" {
		b.logger.DebugContext(ctx, "inference cache hit", "target", target)
		return cached, nil
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		b.logger.WarnContext(ctx, "inference cache read failed", "error", err)
	}

	text, err := b.inner.Generate(ctx, target, req)
	if err != nil {
		return "", err
	}

	if setErr := b.client.Set(ctx, key, text, b.ttl).Err(); setErr != nil {
		b.logger.WarnContext(ctx, "inference cache write failed", "error", setErr)
	}

	return text, nil
}

// Close releases the Redis connection.
func (b *Backend) Close() error {
	return b.client.Close()
}

func cacheKey(target string, req inference.Request) string {
	h := sha256.New()
	h.Write([]byte(target))
	h.Write([]byte{0})
	h.Write([]byte(req.System))
	h.Write([]byte{0})
	h.Write([]byte(req.Prompt))
	for _, img := range req.Images {
		h.Write([]byte{0})
		h.Write(img)
	}

	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}
