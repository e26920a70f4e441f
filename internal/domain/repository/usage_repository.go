package repository

import (
	"context"

	"ai-toolkit-api/internal/domain/entity"
)

// UsageRepository 用量记录仓储接口（只追加）
type UsageRepository interface {
	Create(ctx context.Context, record *entity.UsageRecord) error
	// ExistsByRequestID 幂等键按用户隔离
	ExistsByRequestID(ctx context.Context, userID, requestID string) (bool, error)
	// ListByUser 按创建时间倒序分页
	ListByUser(ctx context.Context, userID string, pagination Pagination) (*PagedResult[*entity.UsageRecord], error)
}
