package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// ExpirationPopularFeedCache 是热门信息流首页缓存的默认有效期
	ExpirationPopularFeedCache = time.Minute
	cacheKeyPopularFeed        = "popular-feed"
)

// PopularFeedCache 把组装好的热门信息流首页以 JSON 形式缓存到 Redis。
// nil 接收者表现为永远未命中，服务可以在没有 Redis 的环境下直接运行。
type PopularFeedCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPopularFeedCache 构造缓存。ttl 非正时使用默认有效期。
func NewPopularFeedCache(rdb *redis.Client, ttl time.Duration) *PopularFeedCache {
	if ttl <= 0 {
		ttl = ExpirationPopularFeedCache
	}
	return &PopularFeedCache{rdb: rdb, ttl: ttl}
}

// Get 尝试命中缓存并反序列化到 dest，返回是否命中。
func (c *PopularFeedCache) Get(ctx context.Context, dest any) (bool, error) {
	if c == nil || c.rdb == nil {
		return false, nil
	}

	data, err := c.rdb.Get(ctx, cacheKeyPopularFeed).Result()
	if err == redis.Nil {
		return false, nil
	} else if err != nil {
		return false, err
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return false, err
	}
	return true, nil
}

// Set 写入缓存。
func (c *PopularFeedCache) Set(ctx context.Context, v any) error {
	if c == nil || c.rdb == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.rdb.SetEX(ctx, cacheKeyPopularFeed, data, c.ttl).Err()
}

// Delete 使缓存失效。
func (c *PopularFeedCache) Delete(ctx context.Context) {
	if c == nil || c.rdb == nil {
		return
	}
	c.rdb.Del(ctx, cacheKeyPopularFeed)
}
