package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aihub/knowledge-sync/internal/logger"
	"github.com/aihub/knowledge-sync/internal/metrics"
)

// CachedEmbedder 带Redis缓存的Embedder装饰器
//
// 缓存键为归一化文本的内容哈希，同一内容在不同文档或不同版本
// 中出现时可以复用向量，避免重复调用向量化后端。
// 缓存的是可重算的向量而非索引状态，不构成索引持久化。
type CachedEmbedder struct {
	inner    Embedder
	client   *redis.Client
	enabled  bool
	ttl      time.Duration
	hitStats *CacheHitStats
}

// CacheHitStats 缓存命中率统计
type CacheHitStats struct {
	hits   int64
	misses int64
	mu     sync.RWMutex
}

// Snapshot 返回当前命中/未命中计数
func (s *CacheHitStats) Snapshot() (hits, misses int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hits, s.misses
}

func (s *CacheHitStats) recordHit() {
	s.mu.Lock()
	s.hits++
	s.mu.Unlock()
}

func (s *CacheHitStats) recordMiss() {
	s.mu.Lock()
	s.misses++
	s.mu.Unlock()
}

// NewCachedEmbedder 创建带缓存的Embedder
//
// client为nil时退化为直通模式。
func NewCachedEmbedder(inner Embedder, client *redis.Client, ttl time.Duration) *CachedEmbedder {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &CachedEmbedder{
		inner:    inner,
		client:   client,
		enabled:  client != nil,
		ttl:      ttl,
		hitStats: &CacheHitStats{},
	}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if !c.enabled {
		return c.inner.Embed(ctx, text)
	}

	key := c.cacheKey(text)

	// 缓存命中直接返回，缓存读失败不阻塞向量化
	if data, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var vector []float32
		if err := json.Unmarshal(data, &vector); err == nil && len(vector) == c.inner.Dimensions() {
			c.hitStats.recordHit()
			metrics.EmbedCacheHits.WithLabelValues("hit").Inc()
			return vector, nil
		}
	}
	c.hitStats.recordMiss()
	metrics.EmbedCacheHits.WithLabelValues("miss").Inc()

	vector, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(vector); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			logger.Warn("failed to cache embedding", zap.Error(err))
		}
	}

	return vector, nil
}

func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

func (c *CachedEmbedder) Ready() bool {
	return c.inner.Ready()
}

// Stats 返回缓存命中统计
func (c *CachedEmbedder) Stats() (hits, misses int64) {
	return c.hitStats.Snapshot()
}

func (c *CachedEmbedder) cacheKey(text string) string {
	return fmt.Sprintf("ksync:emb:%d:%s", c.inner.Dimensions(), HashContent(text))
}
