package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"ai-toolkit-api/internal/application/credit"
	"ai-toolkit-api/internal/domain/repository"
	"ai-toolkit-api/internal/infrastructure/persistence/redis"
	"ai-toolkit-api/internal/interfaces/http/dto"
)

// CreditsHandler 额度查询处理器
type CreditsHandler struct {
	ledger         *credit.Ledger
	cache          *redis.BalanceCache
	initialBalance int64
}

// NewCreditsHandler 创建额度处理器，cache 可为空
func NewCreditsHandler(ledger *credit.Ledger, cache *redis.BalanceCache, initialBalance int64) *CreditsHandler {
	return &CreditsHandler{ledger: ledger, cache: cache, initialBalance: initialBalance}
}

// authorize 启用认证时只允许访问自己的账户
func (h *CreditsHandler) authorize(c *gin.Context) (string, bool) {
	userID := dto.BindUserID(c)
	if authUser := authenticatedUser(c); authUser != "" && authUser != userID {
		dto.Forbidden(c, "cannot access another user's credits")
		return "", false
	}
	return userID, true
}

// GetBalance 查询余额
// @Summary 查询余额
// @Tags Credits
// @Produce json
// @Param userId path string true "用户 ID"
// @Router /api/credits/{userId} [get]
func (h *CreditsHandler) GetBalance(c *gin.Context) {
	userID, ok := h.authorize(c)
	if !ok {
		return
	}

	loader := func(ctx context.Context) (*redis.BalanceSnapshot, error) {
		acc, err := h.ledger.Account(ctx, userID)
		if err != nil {
			return nil, err
		}
		return &redis.BalanceSnapshot{
			UserID:    acc.UserID,
			Balance:   acc.Balance,
			TotalUsed: acc.TotalUsed,
			UpdatedAt: acc.UpdatedAt,
		}, nil
	}

	var (
		snap *redis.BalanceSnapshot
		err  error
	)
	if h.cache != nil {
		snap, err = h.cache.Get(c.Request.Context(), userID, loader)
	} else {
		snap, err = loader(c.Request.Context())
	}
	if err != nil {
		respondError(c, err)
		return
	}

	dto.OK(c, &dto.BalanceResponse{
		UserID:    snap.UserID,
		Balance:   snap.Balance,
		TotalUsed: snap.TotalUsed,
		UpdatedAt: snap.UpdatedAt,
	})
}

// EnsureAccount 开户（幂等）
// @Summary 确保账户存在
// @Tags Credits
// @Produce json
// @Param userId path string true "用户 ID"
// @Router /api/credits/{userId}/ensure [post]
func (h *CreditsHandler) EnsureAccount(c *gin.Context) {
	userID, ok := h.authorize(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	created, err := h.ledger.EnsureAccount(ctx, userID, h.initialBalance)
	if err != nil {
		respondError(c, err)
		return
	}
	acc, err := h.ledger.Account(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := &dto.EnsureAccountResponse{Created: created, Balance: acc.Balance}
	if created {
		dto.Created(c, resp)
		return
	}
	dto.OK(c, resp)
}

// ListUsage 用量历史
// @Summary 用量历史
// @Tags Credits
// @Produce json
// @Param userId path string true "用户 ID"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Router /api/credits/{userId}/usage [get]
func (h *CreditsHandler) ListUsage(c *gin.Context) {
	userID, ok := h.authorize(c)
	if !ok {
		return
	}

	page := dto.BindPage(c)
	result, err := h.ledger.History(c.Request.Context(), userID, repository.NewPagination(page.Page, page.PageSize))
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]*dto.UsageRecordResponse, 0, len(result.Items))
	for _, r := range result.Items {
		items = append(items, dto.ToUsageRecordResponse(r))
	}
	dto.OK(c, &dto.UsageListResponse{
		Items: items,
		Meta: &dto.PageMeta{
			Page:       result.Page,
			PageSize:   result.PageSize,
			Total:      result.Total,
			TotalPages: result.TotalPages,
		},
	})
}
