package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ai-toolkit-api/pkg/logger"
)

const (
	defaultBalanceTTL = 30 * time.Second
	generationTTL     = time.Hour
)

// BalanceSnapshot 缓存中的余额快照
type BalanceSnapshot struct {
	UserID    string    `json:"user_id"`
	Balance   int64     `json:"balance"`
	TotalUsed int64     `json:"total_used"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BalanceCache 余额读穿缓存，扣费提交后由账本调用 Invalidate
type BalanceCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewBalanceCache 创建余额缓存
func NewBalanceCache(cache *Cache, ttl time.Duration) *BalanceCache {
	if ttl <= 0 {
		ttl = defaultBalanceTTL
	}
	return &BalanceCache{cache: cache, ttl: ttl}
}

// BalanceKey 余额缓存键
func BalanceKey(userID string) string {
	return fmt.Sprintf("credits:balance:%s", userID)
}

// balanceGenKey 余额失效代数，每次 Invalidate 递增
func balanceGenKey(userID string) string {
	return fmt.Sprintf("credits:balance:gen:%s", userID)
}

// Get 读取余额，未命中时调用 loader 回源
// 回源期间发生失效时删除刚写入的快照，避免旧余额在 TTL 内滞留
func (c *BalanceCache) Get(ctx context.Context, userID string, loader func(ctx context.Context) (*BalanceSnapshot, error)) (*BalanceSnapshot, error) {
	key := BalanceKey(userID)
	before, genErr := c.generation(ctx, userID)

	raw, err := c.cache.GetOrLoad(ctx, key, c.ttl, func(ctx context.Context) (any, error) {
		return loader(ctx)
	})
	if err != nil {
		return nil, err
	}

	if genErr == nil {
		if after, err := c.generation(ctx, userID); err == nil && after != before {
			if err := c.cache.Delete(ctx, key); err != nil {
				logger.Warn(ctx, "failed to drop stale balance snapshot", "user_id", userID, "error", err.Error())
			}
		}
	}

	var snap BalanceSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode balance snapshot: %w", err)
	}
	return &snap, nil
}

// Invalidate 递增失效代数并删除用户余额缓存
func (c *BalanceCache) Invalidate(ctx context.Context, userID string) error {
	rdb := c.cache.client.rdb
	genKey := balanceGenKey(userID)
	pipe := rdb.TxPipeline()
	pipe.Incr(ctx, genKey)
	pipe.Expire(ctx, genKey, generationTTL)
	pipe.Del(ctx, BalanceKey(userID))
	_, err := pipe.Exec(ctx)
	return err
}

func (c *BalanceCache) generation(ctx context.Context, userID string) (int64, error) {
	gen, err := c.cache.client.rdb.Get(ctx, balanceGenKey(userID)).Int64()
	if IsNil(err) {
		return 0, nil
	}
	return gen, err
}
