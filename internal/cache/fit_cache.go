package cache

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/declinewatch/declinewatch-go/internal/metrics"
	"github.com/declinewatch/declinewatch-go/internal/models"
)

// FitCacheEntry represents a cached decline-curve fit with metadata
type FitCacheEntry struct {
	Parameters models.DeclineModelParameters `json:"parameters"`
	CachedAt   time.Time                     `json:"cached_at"`
	ExpiresAt  time.Time                     `json:"expires_at"`
}

// FitCacheStats tracks cache performance metrics
type FitCacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
	mu     sync.RWMutex
}

// RedisFitCache memoizes decline-curve fits in Redis. The key binds a field
// name to a fingerprint of its observation series, so re-ingesting changed
// data can never serve a stale fit.
type RedisFitCache struct {
	redis  *redis.Client
	ttl    time.Duration
	stats  *FitCacheStats
	prefix string
}

const defaultFitCacheTTL = 6 * time.Hour

// NewRedisFitCache creates a new Redis-based fit cache. A non-positive ttl
// falls back to the default.
func NewRedisFitCache(redisClient *redis.Client, ttl time.Duration) *RedisFitCache {
	if ttl <= 0 {
		ttl = defaultFitCacheTTL
	}
	return &RedisFitCache{
		redis:  redisClient,
		ttl:    ttl,
		stats:  &FitCacheStats{},
		prefix: "fit_cache:",
	}
}

func (c *RedisFitCache) key(fieldName string, obs []models.ProductionObservation) string {
	return c.prefix + fieldName + ":" + seriesFingerprint(obs)
}

// seriesFingerprint hashes period, volume and shut-in state of every
// observation. Any change to the series produces a different key.
func seriesFingerprint(obs []models.ProductionObservation) string {
	h := fnv.New64a()
	var buf [8]byte
	for _, o := range obs {
		binary.BigEndian.PutUint64(buf[:], uint64(o.Period.Unix()))
		h.Write(buf[:])
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(o.ActualBOE))
		h.Write(buf[:])
		if o.IsShutIn {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	}
	return fmt.Sprintf("%d-%016x", len(obs), h.Sum64())
}

// Get retrieves a cached fit for the exact observation series.
func (c *RedisFitCache) Get(ctx context.Context, fieldName string, obs []models.ProductionObservation) (models.DeclineModelParameters, bool) {
	cacheKey := c.key(fieldName, obs)

	data, err := c.redis.Get(ctx, cacheKey).Result()
	if err == redis.Nil {
		c.recordMiss()
		return models.DeclineModelParameters{}, false
	}
	if err != nil {
		logrus.WithError(err).WithField("field", fieldName).Warn("Redis error getting cached fit")
		c.recordMiss()
		return models.DeclineModelParameters{}, false
	}

	var entry FitCacheEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		logrus.WithError(err).WithField("field", fieldName).Warn("Error deserializing cached fit")
		c.recordMiss()
		return models.DeclineModelParameters{}, false
	}

	c.recordHit()
	return entry.Parameters, true
}

// Set stores a fit for a field's observation series. Non-finite covariance
// values fail JSON encoding, so degenerate fits are simply not cached.
func (c *RedisFitCache) Set(ctx context.Context, fieldName string, obs []models.ProductionObservation, params models.DeclineModelParameters) {
	cacheKey := c.key(fieldName, obs)

	now := time.Now()
	entry := FitCacheEntry{
		Parameters: params,
		CachedAt:   now,
		ExpiresAt:  now.Add(c.ttl),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		logrus.WithError(err).WithField("field", fieldName).Debug("Not caching fit")
		return
	}

	if err := c.redis.Set(ctx, cacheKey, data, c.ttl).Err(); err != nil {
		logrus.WithError(err).WithField("field", fieldName).Warn("Redis error setting cached fit")
		return
	}

	c.stats.mu.Lock()
	c.stats.Sets++
	c.stats.mu.Unlock()
}

// Invalidate drops every cached fit for a field. Callers invoke this after
// ingesting new observations so the next audit refits from fresh data.
func (c *RedisFitCache) Invalidate(ctx context.Context, fieldName string) error {
	return c.deleteByPattern(ctx, c.prefix+fieldName+":*")
}

// Clear removes all cached fits.
func (c *RedisFitCache) Clear(ctx context.Context) error {
	return c.deleteByPattern(ctx, c.prefix+"*")
}

func (c *RedisFitCache) deleteByPattern(ctx context.Context, pattern string) error {
	var keys []string
	iter := c.redis.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("error scanning fit cache keys: %w", err)
	}

	if len(keys) == 0 {
		return nil
	}

	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("error deleting fit cache keys: %w", err)
	}

	logrus.WithField("entries", len(keys)).Debug("Dropped cached fits")
	return nil
}

// GetStats returns current cache statistics
func (c *RedisFitCache) GetStats() FitCacheStats {
	c.stats.mu.RLock()
	defer c.stats.mu.RUnlock()
	return FitCacheStats{
		Hits:   c.stats.Hits,
		Misses: c.stats.Misses,
		Sets:   c.stats.Sets,
	}
}

// LogStats logs current cache performance statistics
func (c *RedisFitCache) LogStats() {
	stats := c.GetStats()
	total := stats.Hits + stats.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}

	logrus.WithFields(logrus.Fields{
		"hits":     stats.Hits,
		"misses":   stats.Misses,
		"sets":     stats.Sets,
		"hit_rate": fmt.Sprintf("%.2f%%", hitRate),
	}).Info("Fit cache stats")
}

func (c *RedisFitCache) recordHit() {
	c.stats.mu.Lock()
	c.stats.Hits++
	c.stats.mu.Unlock()
	metrics.IncCacheLookup(metrics.CacheHit)
}

func (c *RedisFitCache) recordMiss() {
	c.stats.mu.Lock()
	c.stats.Misses++
	c.stats.mu.Unlock()
	metrics.IncCacheLookup(metrics.CacheMiss)
}
