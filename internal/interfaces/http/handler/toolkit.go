package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ai-toolkit-api/internal/application/toolkit"
	"ai-toolkit-api/internal/interfaces/http/dto"
	"ai-toolkit-api/internal/interfaces/http/middleware"
)

const (
	maxToolBodyBytes     = 1 << 20
	maxIdempotencyKeyLen = 64
)

// ToolkitHandler 工具调用处理器
type ToolkitHandler struct {
	catalog *toolkit.Catalog
	runner  *toolkit.Runner
}

// NewToolkitHandler 创建工具调用处理器
func NewToolkitHandler(catalog *toolkit.Catalog, runner *toolkit.Runner) *ToolkitHandler {
	return &ToolkitHandler{catalog: catalog, runner: runner}
}

// ListTools 工具目录
// @Summary 工具目录
// @Tags Toolkit
// @Produce json
// @Router /api/tools [get]
func (h *ToolkitHandler) ListTools(c *gin.Context) {
	tools := h.catalog.List()
	out := make([]*dto.ToolInfo, 0, len(tools))
	for _, t := range tools {
		out = append(out, dto.ToToolInfo(t))
	}
	dto.OK(c, gin.H{"tools": out})
}

// RunTool 执行工具
// @Summary 执行计费工具
// @Tags Toolkit
// @Accept json
// @Produce json
// @Param tool path string true "工具 ID"
// @Router /api/{tool} [post]
func (h *ToolkitHandler) RunTool(c *gin.Context) {
	tool, err := h.catalog.Get(dto.BindToolID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxToolBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			dto.Error(c, http.StatusRequestEntityTooLarge, "INVALID_INPUT", "request body too large")
			return
		}
		dto.BadRequest(c, "failed to read request body")
		return
	}

	parsed, err := dto.ParseToolRequest(body)
	if err != nil {
		dto.BadRequest(c, err.Error())
		return
	}

	userID := parsed.UserID
	if authUser := authenticatedUser(c); authUser != "" {
		userID = authUser
	}

	idempotencyKey := strings.TrimSpace(c.GetHeader(middleware.IdempotencyKeyHeader))
	if len(idempotencyKey) > maxIdempotencyKeyLen {
		dto.BadRequest(c, "Idempotency-Key too long")
		return
	}

	res, err := h.runner.Run(c.Request.Context(), tool, &toolkit.Request{
		UserID:    userID,
		Language:  parsed.Language,
		RequestID: idempotencyKey,
		Fields:    parsed.Fields,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	dto.OK(c, dto.ToolResponse(res))
}
