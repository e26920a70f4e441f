// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ai-toolkit-api/internal/domain/entity"
	"ai-toolkit-api/internal/domain/repository"
)

// CreditRepository 额度账户仓储实现
type CreditRepository struct {
	client *Client
}

// NewCreditRepository 创建额度账户仓储
func NewCreditRepository(client *Client) *CreditRepository {
	return &CreditRepository{client: client}
}

var _ repository.CreditRepository = (*CreditRepository)(nil)

// GetByUserID 根据用户 ID 获取账户
func (r *CreditRepository) GetByUserID(ctx context.Context, userID string) (*entity.CreditAccount, error) {
	ctx, span := tracer.Start(ctx, "postgres.CreditRepository.GetByUserID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var acc entity.CreditAccount
	if err := db.First(&acc, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get credit account: %w", err)
	}
	return &acc, nil
}

// DeductBalance 条件扣减
// UPDATE credits SET balance = balance - ?, total_used = total_used + ?, updated_at = now()
// WHERE user_id = ? AND balance >= ? RETURNING balance
func (r *CreditRepository) DeductBalance(ctx context.Context, userID string, amount int64) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.CreditRepository.DeductBalance")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var rows []entity.CreditAccount
	result := db.Model(&rows).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "balance"}}}).
		Where("user_id = ? AND balance >= ?", userID, amount).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance - ?", amount),
			"total_used": gorm.Expr("total_used + ?", amount),
			"updated_at": gorm.Expr("now()"),
		})
	if result.Error != nil {
		span.RecordError(result.Error)
		return 0, fmt.Errorf("failed to deduct balance: %w", result.Error)
	}
	if result.RowsAffected == 0 || len(rows) == 0 {
		return 0, repository.ErrConditionNotMet
	}
	return rows[0].Balance, nil
}

// CreateIfAbsent 插入账户，冲突时不做修改
func (r *CreditRepository) CreateIfAbsent(ctx context.Context, account *entity.CreditAccount) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.CreditRepository.CreateIfAbsent")
	defer span.End()

	db := getDB(ctx, r.client.db)
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(account)
	if result.Error != nil {
		span.RecordError(result.Error)
		return false, fmt.Errorf("failed to create credit account: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}
