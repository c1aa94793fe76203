package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"canon-rag-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

// CachedClient 用 Redis 缓存查询向量，键为模型名加查询文本的 sha256，带显式过期时间。
// Redis 不可用时直接回落到下游 Client。
type CachedClient struct {
	next  Client
	rdb   *redis.Client
	model string
	ttl   time.Duration
}

// NewCachedClient 包装 next。ttl <= 0 时使用 30 分钟。
func NewCachedClient(next Client, rdb *redis.Client, model string, ttl time.Duration) *CachedClient {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &CachedClient{next: next, rdb: rdb, model: model, ttl: ttl}
}

func (c *CachedClient) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "embedding:query:" + c.model + ":" + hex.EncodeToString(sum[:])
}

// CreateEmbedding 实现 Client。
func (c *CachedClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var vec []float32
		if jsonErr := json.Unmarshal(raw, &vec); jsonErr == nil && len(vec) > 0 {
			return vec, nil
		}
	case !errors.Is(err, redis.Nil):
		log.Warnf("[EmbeddingCache] 读取缓存失败, 直接调用 Embedding API: %v", err)
	}

	vec, err := c.next.CreateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(vec); err == nil {
		if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
			log.Warnf("[EmbeddingCache] 写入缓存失败: %v", err)
		}
	}
	return vec, nil
}
