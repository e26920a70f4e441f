package redis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewClientFromRedis(rdb), mr
}

func TestHealthCheck(t *testing.T) {
	client, mr := newTestClient(t)
	require.NoError(t, client.HealthCheck(context.Background()))

	mr.Close()
	assert.Error(t, client.HealthCheck(context.Background()))
}

func TestBalanceCacheReadThroughAndInvalidate(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)
	bc := NewBalanceCache(NewCache(client), time.Minute)

	var loads atomic.Int32
	balance := int64(50)
	loader := func(context.Context) (*BalanceSnapshot, error) {
		loads.Add(1)
		return &BalanceSnapshot{UserID: "u1", Balance: balance}, nil
	}

	snap, err := bc.Get(ctx, "u1", loader)
	require.NoError(t, err)
	assert.Equal(t, int64(50), snap.Balance)
	assert.True(t, mr.Exists(BalanceKey("u1")))

	balance = 42
	snap, err = bc.Get(ctx, "u1", loader)
	require.NoError(t, err)
	assert.Equal(t, int64(50), snap.Balance, "served from cache")
	assert.Equal(t, int32(1), loads.Load())

	require.NoError(t, bc.Invalidate(ctx, "u1"))
	assert.False(t, mr.Exists(BalanceKey("u1")))

	snap, err = bc.Get(ctx, "u1", loader)
	require.NoError(t, err)
	assert.Equal(t, int64(42), snap.Balance)
	assert.Equal(t, int32(2), loads.Load())
}

func TestBalanceCacheDropsSnapshotLoadedAcrossInvalidate(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)
	bc := NewBalanceCache(NewCache(client), time.Minute)

	var loads atomic.Int32
	loader := func(ctx context.Context) (*BalanceSnapshot, error) {
		if loads.Add(1) == 1 {
			// 读到旧余额后扣费提交并失效缓存
			require.NoError(t, bc.Invalidate(ctx, "u1"))
			return &BalanceSnapshot{UserID: "u1", Balance: 50}, nil
		}
		return &BalanceSnapshot{UserID: "u1", Balance: 42}, nil
	}

	snap, err := bc.Get(ctx, "u1", loader)
	require.NoError(t, err)
	assert.Equal(t, int64(50), snap.Balance)
	assert.False(t, mr.Exists(BalanceKey("u1")), "stale snapshot must not stay cached")

	snap, err = bc.Get(ctx, "u1", loader)
	require.NoError(t, err)
	assert.Equal(t, int64(42), snap.Balance)
	assert.Equal(t, int32(2), loads.Load())
	assert.True(t, mr.Exists(BalanceKey("u1")))
}

func TestBalanceCacheTTL(t *testing.T) {
	client, mr := newTestClient(t)
	bc := NewBalanceCache(NewCache(client), 10*time.Second)

	_, err := bc.Get(context.Background(), "u1", func(context.Context) (*BalanceSnapshot, error) {
		return &BalanceSnapshot{UserID: "u1", Balance: 1}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, mr.TTL(BalanceKey("u1")))

	mr.FastForward(11 * time.Second)
	assert.False(t, mr.Exists(BalanceKey("u1")))
}

func TestBalanceCacheLoaderErrorNotCached(t *testing.T) {
	client, mr := newTestClient(t)
	bc := NewBalanceCache(NewCache(client), time.Minute)
	boom := errors.New("not found")

	_, err := bc.Get(context.Background(), "u1", func(context.Context) (*BalanceSnapshot, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists(BalanceKey("u1")))
}

func TestBalanceCacheFallsBackWhenRedisDown(t *testing.T) {
	client, mr := newTestClient(t)
	bc := NewBalanceCache(NewCache(client), time.Minute)
	mr.Close()

	snap, err := bc.Get(context.Background(), "u1", func(context.Context) (*BalanceSnapshot, error) {
		return &BalanceSnapshot{UserID: "u1", Balance: 7}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), snap.Balance)
}

func TestCacheSingleflight(t *testing.T) {
	client, _ := newTestClient(t)
	cache := NewCache(client)

	var loads atomic.Int32
	release := make(chan struct{})
	loader := func(context.Context) (any, error) {
		loads.Add(1)
		<-release
		return map[string]int{"v": 1}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.GetOrLoad(context.Background(), "k", time.Minute, loader)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, loads.Load(), int32(8))
	assert.GreaterOrEqual(t, loads.Load(), int32(1))
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)
	limiter := NewRateLimiter(client)

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	key := BuildRateLimitKey("u1", "/api/sentiment-analysis")
	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, key, 3, time.Second)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}

	ok, err := limiter.Allow(ctx, key, 3, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	remaining, err := limiter.Remaining(ctx, key, 3, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	now = now.Add(1500 * time.Millisecond)
	ok, err = limiter.Allow(ctx, key, 3, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}
