// Package middleware 提供 HTTP 中间件
package middleware

import (
	"ai-toolkit-api/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader 请求 ID 头
	RequestIDHeader = "X-Request-ID"
	// IdempotencyKeyHeader 客户端重试同一次工具调用时携带，保证只扣费一次
	IdempotencyKeyHeader = "Idempotency-Key"
	// maxRequestIDLen 客户端传入的请求 ID 过长时重新生成
	maxRequestIDLen = 128
)

// RequestID 请求 ID 注入中间件
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" || len(requestID) > maxRequestIDLen {
			requestID = uuid.New().String()
		}

		c.Set(ContextKeyRequestID, requestID)

		ctx := logger.WithContext(c.Request.Context(), logger.RequestIDKey, requestID)
		c.Request = c.Request.WithContext(ctx)

		c.Header(RequestIDHeader, requestID)

		c.Next()
	}
}
