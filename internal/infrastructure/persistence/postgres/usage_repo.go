// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"ai-toolkit-api/internal/domain/entity"
	"ai-toolkit-api/internal/domain/repository"
)

// UsageRepository 用量记录仓储实现
type UsageRepository struct {
	client *Client
}

// NewUsageRepository 创建用量记录仓储
func NewUsageRepository(client *Client) *UsageRepository {
	return &UsageRepository{client: client}
}

var _ repository.UsageRepository = (*UsageRepository)(nil)

// Create 追加用量记录；(user_id, request_id) 冲突时返回 repository.ErrDuplicateKey
func (r *UsageRepository) Create(ctx context.Context, record *entity.UsageRecord) error {
	ctx, span := tracer.Start(ctx, "postgres.UsageRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(record).Error; err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicateKey
		}
		span.RecordError(err)
		return fmt.Errorf("failed to create usage record: %w", err)
	}
	return nil
}

// ExistsByRequestID 检查请求是否已记账
func (r *UsageRepository) ExistsByRequestID(ctx context.Context, userID, requestID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.UsageRepository.ExistsByRequestID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var count int64
	if err := db.Model(&entity.UsageRecord{}).Where("user_id = ? AND request_id = ?", userID, requestID).Count(&count).Error; err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to check request id: %w", err)
	}
	return count > 0, nil
}

// ListByUser 获取用户用量记录
func (r *UsageRepository) ListByUser(ctx context.Context, userID string, pagination repository.Pagination) (*repository.PagedResult[*entity.UsageRecord], error) {
	ctx, span := tracer.Start(ctx, "postgres.UsageRepository.ListByUser")
	defer span.End()

	db := getDB(ctx, r.client.db)

	var total int64
	if err := db.Model(&entity.UsageRecord{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count usage records: %w", err)
	}

	var records []*entity.UsageRecord
	if err := db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&records).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list usage records: %w", err)
	}

	return repository.NewPagedResult(records, total, pagination), nil
}
