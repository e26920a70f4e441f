package repository

import (
	"context"

	"ai-toolkit-api/internal/domain/entity"
)

// CreditRepository 额度账户仓储接口
type CreditRepository interface {
	// GetByUserID 获取账户，不存在时返回 nil, nil
	GetByUserID(ctx context.Context, userID string) (*entity.CreditAccount, error)
	// DeductBalance 单条条件更新：balance >= amount 时扣减并返回新余额，
	// 未命中时返回 ErrConditionNotMet
	DeductBalance(ctx context.Context, userID string, amount int64) (int64, error)
	// CreateIfAbsent 不存在时插入，已存在时不做任何修改
	CreateIfAbsent(ctx context.Context, account *entity.CreditAccount) (bool, error)
}
