// Package handler 提供 HTTP 请求处理器
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ai-toolkit-api/internal/application/credit"
	"ai-toolkit-api/internal/application/toolkit"
	"ai-toolkit-api/internal/interfaces/http/dto"
	"ai-toolkit-api/internal/interfaces/http/middleware"
	apperrors "ai-toolkit-api/pkg/errors"
	"ai-toolkit-api/pkg/logger"
)

type errorMapping struct {
	target error
	app    *apperrors.AppError
	code   string
	// exposeCause 直接返回底层错误信息（仅用于输入类错误）
	exposeCause bool
}

var (
	errStorageUnavailable = apperrors.New(apperrors.CodeDatabaseError, "storage unavailable")
	errDuplicateRequest   = apperrors.New(apperrors.CodeConflict, "idempotency key already used for a charged request")
)

var errorMappings = []errorMapping{
	{target: toolkit.ErrInvalidInput, app: apperrors.ErrInvalidParam, code: "INVALID_INPUT", exposeCause: true},
	{target: credit.ErrInvalidAmount, app: apperrors.ErrInvalidParam, code: "INVALID_INPUT", exposeCause: true},
	{target: toolkit.ErrUnknownTool, app: apperrors.ErrNotFound.WithDetail("tool"), code: "TOOL_NOT_FOUND"},
	{target: credit.ErrInsufficientCredits, app: apperrors.ErrInsufficientCredits, code: "INSUFFICIENT_CREDITS"},
	{target: credit.ErrAccountNotFound, app: apperrors.ErrAccountNotFound, code: "ACCOUNT_NOT_FOUND"},
	{target: credit.ErrDuplicateRequest, app: errDuplicateRequest, code: "DUPLICATE_REQUEST"},
	{target: toolkit.ErrModelLoading, app: apperrors.ErrModelLoading, code: "MODEL_LOADING"},
	{target: toolkit.ErrUpstream, app: apperrors.ErrLLMCallFailed, code: "UPSTREAM_UNAVAILABLE"},
	{target: credit.ErrStore, app: errStorageUnavailable, code: "STORE_ERROR"},
}

// respondError 将领域错误映射为 HTTP 错误响应
func respondError(c *gin.Context, err error) {
	ctx := c.Request.Context()
	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		msg := m.app.Message
		if m.exposeCause {
			msg = err.Error()
		}
		if m.app.HTTPStatus >= http.StatusInternalServerError {
			logger.Error(ctx, "request failed", err, "path", c.FullPath(), "code", m.code)
		}
		dto.Error(c, m.app.HTTPStatus, m.code, msg)
		return
	}

	logger.Error(ctx, "unhandled error", err, "path", c.FullPath())
	dto.InternalError(c, "internal server error")
}

// authenticatedUser 返回令牌中的用户 ID，未启用认证时为空
func authenticatedUser(c *gin.Context) string {
	return c.GetString(middleware.ContextKeyUserID)
}
