// Package middleware 提供 HTTP 中间件
package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"ai-toolkit-api/internal/infrastructure/persistence/redis"
	"ai-toolkit-api/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	// Enabled 是否启用限流
	Enabled bool
	// RequestsPerSecond 每秒请求数
	RequestsPerSecond int
	// Burst 突发容量
	Burst int
}

// RateLimiter 限流器接口
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// window 将每秒速率与突发容量折算成滑动窗口：窗口内最多 Burst 个请求
func (cfg RateLimitConfig) window() (int, time.Duration) {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	if cfg.Burst <= rps {
		return rps, time.Second
	}
	return cfg.Burst, time.Duration(float64(time.Second) * float64(cfg.Burst) / float64(rps))
}

// RateLimit 限流中间件，按用户 ID 限流，匿名请求按客户端 IP
func RateLimit(cfg RateLimitConfig, limiter RateLimiter) gin.HandlerFunc {
	if !cfg.Enabled || limiter == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	limit, window := cfg.window()

	return func(c *gin.Context) {
		subject := c.GetString(ContextKeyUserID)
		if subject == "" {
			subject = "ip:" + c.ClientIP()
		}

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = c.Request.URL.Path
		}
		key := redis.BuildRateLimitKey(subject, endpoint)

		allowed, err := limiter.Allow(c.Request.Context(), key, limit, window)
		if err != nil {
			// 限流器故障时放行
			logger.Warn(c.Request.Context(), "rate limiter unavailable", "error", err.Error())
			c.Next()
			return
		}

		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(window.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":    "rate limit exceeded",
				"code":     "TOO_MANY_REQUESTS",
				"trace_id": c.GetString(ContextKeyTraceID),
			})
			return
		}

		c.Next()
	}
}
