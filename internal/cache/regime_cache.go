package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-regime/internal/models"
)

// UpdatesChannel carries every published summary for streaming consumers.
const UpdatesChannel = "regime:updates"

// ErrRegimeNotCached is returned by Latest when no summary is stored for a symbol.
var ErrRegimeNotCached = errors.New("regime not cached")

// RegimeCacheStats tracks cache performance metrics
type RegimeCacheStats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Publishes int64 `json:"publishes"`
}

// RedisRegimeCache holds the latest published regime per symbol under regime:<SYMBOL>.
type RedisRegimeCache struct {
	redis  *redis.Client
	ttl    time.Duration
	prefix string
	logger *logrus.Logger

	statsMu sync.Mutex
	stats   RegimeCacheStats
}

// NewRedisRegimeCache creates a new Redis-based regime cache
func NewRedisRegimeCache(redisClient *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisRegimeCache {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RedisRegimeCache{
		redis:  redisClient,
		ttl:    ttl,
		prefix: "regime:",
		logger: logger,
	}
}

func (c *RedisRegimeCache) key(symbol string) string {
	return c.prefix + strings.ToUpper(strings.TrimSpace(symbol))
}

// Publish stores the summary with the configured TTL and announces it on UpdatesChannel.
func (c *RedisRegimeCache) Publish(ctx context.Context, summary models.RegimeSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to serialize regime summary: %w", err)
	}

	pipe := c.redis.Pipeline()
	pipe.Set(ctx, c.key(summary.Symbol), data, c.ttl)
	pipe.Publish(ctx, UpdatesChannel, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish regime for %s: %w", summary.Symbol, err)
	}

	c.statsMu.Lock()
	c.stats.Publishes++
	c.statsMu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"symbol": summary.Symbol,
		"regime": summary.Regime,
	}).Debug("Published regime summary")
	return nil
}

// Latest returns the cached summary for symbol, or ErrRegimeNotCached.
func (c *RedisRegimeCache) Latest(ctx context.Context, symbol string) (*models.RegimeSummary, error) {
	data, err := c.redis.Get(ctx, c.key(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.miss()
		return nil, ErrRegimeNotCached
	}
	if err != nil {
		c.miss()
		return nil, fmt.Errorf("failed to read cached regime for %s: %w", symbol, err)
	}

	var summary models.RegimeSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		c.miss()
		return nil, fmt.Errorf("failed to deserialize cached regime for %s: %w", symbol, err)
	}

	c.statsMu.Lock()
	c.stats.Hits++
	c.statsMu.Unlock()
	return &summary, nil
}

func (c *RedisRegimeCache) miss() {
	c.statsMu.Lock()
	c.stats.Misses++
	c.statsMu.Unlock()
}

// CachedSymbols returns the symbols that currently have a cached regime.
func (c *RedisRegimeCache) CachedSymbols(ctx context.Context) ([]string, error) {
	var symbols []string
	iter := c.redis.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if key == UpdatesChannel {
			continue
		}
		symbols = append(symbols, strings.TrimPrefix(key, c.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("error scanning cache keys: %w", err)
	}
	return symbols, nil
}

// GetStats returns current cache statistics
func (c *RedisRegimeCache) GetStats() RegimeCacheStats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}
