// Package middleware 提供 HTTP 中间件
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"ai-toolkit-api/pkg/logger"
	"ai-toolkit-api/pkg/utils"

	"github.com/gin-gonic/gin"
)

// Gin Context 键
const (
	ContextKeyUserID    = "user_id"
	ContextKeyRequestID = "request_id"
	ContextKeyTraceID   = "trace_id"
)

// AuthConfig 认证配置
type AuthConfig struct {
	// Enabled 是否启用认证
	Enabled bool
	// Secret JWT 密钥（HS256）
	Secret   string
	Issuer   string
	Audience string
	// SkipPaths 跳过认证的路径前缀
	SkipPaths []string
}

// Auth 认证中间件
// 只校验外部认证服务签发的令牌，sub 作为用户 ID 写入上下文
func Auth(cfg AuthConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	verifier := utils.NewJWTVerifier(cfg.Secret, cfg.Issuer, cfg.Audience)

	return func(c *gin.Context) {
		for _, path := range cfg.SkipPaths {
			if strings.HasPrefix(c.Request.URL.Path, path) {
				c.Next()
				return
			}
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "TOKEN_MISSING", "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthorized(c, "TOKEN_INVALID", "invalid authorization format")
			return
		}

		claims, err := verifier.ParseToken(strings.TrimSpace(parts[1]))
		if err != nil {
			if errors.Is(err, utils.ErrExpiredToken) {
				abortUnauthorized(c, "TOKEN_EXPIRED", "token expired")
				return
			}
			abortUnauthorized(c, "TOKEN_INVALID", "invalid token")
			return
		}

		userID := claims.UserID()
		if userID == "" {
			abortUnauthorized(c, "TOKEN_INVALID", "token has no subject")
			return
		}

		c.Set(ContextKeyUserID, userID)
		ctx := logger.WithContext(c.Request.Context(), logger.UserIDKey, userID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// abortUnauthorized 终止请求并返回 401
func abortUnauthorized(c *gin.Context, code, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":    msg,
		"code":     code,
		"trace_id": c.GetString(ContextKeyTraceID),
	})
}

// DefaultSkipPaths 默认跳过认证的路径
var DefaultSkipPaths = []string{
	"/health",
	"/ready",
	"/live",
	"/metrics",
	"/api/tools",
}
