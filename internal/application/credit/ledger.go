// Package credit 提供额度账本：余额检查、原子扣费与用量记录
package credit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ai-toolkit-api/internal/domain/entity"
	"ai-toolkit-api/internal/domain/repository"
	"ai-toolkit-api/pkg/logger"
	"ai-toolkit-api/pkg/metrics"
)

var (
	ErrInsufficientCredits = errors.New("credit: insufficient credits")
	ErrAccountNotFound     = errors.New("credit: account not found")
	ErrInvalidAmount       = errors.New("credit: amount must be positive")
	ErrStore               = errors.New("credit: store error")
	// ErrDuplicateRequest 同一用户的幂等键已记账
	ErrDuplicateRequest = errors.New("credit: request already recorded")
)

// UsageNote 扣费时附带的用量说明
type UsageNote struct {
	ToolName        string
	ToolDisplayName string
	InputPreview    string
	OutputPreview   string
	// RequestID 非空时作为幂等键（按用户隔离），同一请求只会扣费一次
	RequestID string
}

// BalanceCache 余额缓存，扣费提交后失效
type BalanceCache interface {
	Invalidate(ctx context.Context, userID string) error
}

// Ledger 额度账本
type Ledger struct {
	credits repository.CreditRepository
	usage   repository.UsageRepository
	tx      repository.Transactor
	cache   BalanceCache
}

// NewLedger 创建账本
func NewLedger(credits repository.CreditRepository, usage repository.UsageRepository, tx repository.Transactor) *Ledger {
	return &Ledger{credits: credits, usage: usage, tx: tx}
}

// SetBalanceCache 设置余额缓存（可选）
func (l *Ledger) SetBalanceCache(cache BalanceCache) {
	l.cache = cache
}

// CheckBalance 检查余额是否足够，无副作用
// 返回当前余额；余额不足时同时返回 ErrInsufficientCredits
func (l *Ledger) CheckBalance(ctx context.Context, userID string, required int64) (int64, error) {
	acc, err := l.credits.GetByUserID(ctx, userID)
	if err != nil {
		return 0, storeError(err)
	}
	if acc == nil {
		return 0, ErrAccountNotFound
	}
	if !acc.CanAfford(required) {
		return acc.Balance, ErrInsufficientCredits
	}
	return acc.Balance, nil
}

// Recorded 检查该用户的幂等键是否已记账
func (l *Ledger) Recorded(ctx context.Context, userID, requestID string) (bool, error) {
	if requestID == "" {
		return false, nil
	}
	exists, err := l.usage.ExistsByRequestID(ctx, userID, requestID)
	if err != nil {
		return false, storeError(err)
	}
	return exists, nil
}

// Debit 原子扣费并追加一条用量记录，两者在同一事务中提交
// 余额判断与扣减是同一条条件更新语句，并发扣费不会使余额为负
// 幂等键已记账时返回 ErrDuplicateRequest，不做扣减
func (l *Ledger) Debit(ctx context.Context, userID string, amount int64, note UsageNote) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if strings.TrimSpace(userID) == "" {
		return 0, ErrAccountNotFound
	}

	var newBalance int64
	err := l.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if note.RequestID != "" {
			exists, err := l.usage.ExistsByRequestID(ctx, userID, note.RequestID)
			if err != nil {
				return storeError(err)
			}
			if exists {
				return ErrDuplicateRequest
			}
		}

		balance, err := l.credits.DeductBalance(ctx, userID, amount)
		if errors.Is(err, repository.ErrConditionNotMet) {
			return l.classifyMiss(ctx, userID)
		}
		if err != nil {
			return storeError(err)
		}

		record := &entity.UsageRecord{
			UserID:          userID,
			ToolName:        note.ToolName,
			ToolDisplayName: note.ToolDisplayName,
			CreditsUsed:     amount,
			InputPreview:    entity.TruncatePreview(note.InputPreview),
			OutputPreview:   entity.TruncatePreview(note.OutputPreview),
		}
		if note.RequestID != "" {
			rid := note.RequestID
			record.RequestID = &rid
		}
		if err := l.usage.Create(ctx, record); err != nil {
			if errors.Is(err, repository.ErrDuplicateKey) {
				// 同一请求并发提交，回滚本次扣减
				return ErrDuplicateRequest
			}
			return storeError(err)
		}

		newBalance = balance
		return nil
	})

	switch {
	case err == nil:
		metrics.CreditDebitTotal.WithLabelValues("committed").Inc()
		metrics.CreditsDebitedTotal.WithLabelValues(note.ToolName).Add(float64(amount))
		l.invalidate(ctx, userID)
		return newBalance, nil
	case errors.Is(err, ErrDuplicateRequest):
		metrics.CreditDebitTotal.WithLabelValues("duplicate").Inc()
		logger.Info(ctx, "debit already recorded", "user_id", userID, "request_id", note.RequestID)
		return 0, err
	case errors.Is(err, ErrInsufficientCredits):
		metrics.CreditDebitTotal.WithLabelValues("insufficient").Inc()
		return 0, err
	case errors.Is(err, ErrAccountNotFound):
		metrics.CreditDebitTotal.WithLabelValues("not_found").Inc()
		return 0, err
	default:
		metrics.CreditDebitTotal.WithLabelValues("store_error").Inc()
		if !errors.Is(err, ErrStore) {
			err = storeError(err)
		}
		return 0, err
	}
}

// classifyMiss 条件更新未命中时区分账户不存在与余额不足
func (l *Ledger) classifyMiss(ctx context.Context, userID string) error {
	acc, err := l.credits.GetByUserID(ctx, userID)
	if err != nil {
		return storeError(err)
	}
	if acc == nil {
		return ErrAccountNotFound
	}
	return ErrInsufficientCredits
}

// EnsureAccount 账户不存在时以初始额度创建，已存在时不做修改
func (l *Ledger) EnsureAccount(ctx context.Context, userID string, initialBalance int64) (bool, error) {
	if initialBalance < 0 {
		return false, ErrInvalidAmount
	}
	if strings.TrimSpace(userID) == "" {
		return false, fmt.Errorf("credit: user id is required")
	}
	created, err := l.credits.CreateIfAbsent(ctx, entity.NewCreditAccount(userID, initialBalance))
	if err != nil {
		return false, storeError(err)
	}
	if created {
		metrics.AccountsCreatedTotal.Inc()
		logger.Info(ctx, "credit account created", "user_id", userID, "balance", initialBalance)
	}
	return created, nil
}

// Account 获取账户
func (l *Ledger) Account(ctx context.Context, userID string) (*entity.CreditAccount, error) {
	acc, err := l.credits.GetByUserID(ctx, userID)
	if err != nil {
		return nil, storeError(err)
	}
	if acc == nil {
		return nil, ErrAccountNotFound
	}
	return acc, nil
}

// History 获取用量记录，按时间倒序
func (l *Ledger) History(ctx context.Context, userID string, pagination repository.Pagination) (*repository.PagedResult[*entity.UsageRecord], error) {
	result, err := l.usage.ListByUser(ctx, userID, pagination)
	if err != nil {
		return nil, storeError(err)
	}
	return result, nil
}

func (l *Ledger) invalidate(ctx context.Context, userID string) {
	if l.cache == nil {
		return
	}
	if err := l.cache.Invalidate(ctx, userID); err != nil {
		logger.Warn(ctx, "failed to invalidate balance cache", "user_id", userID, "error", err.Error())
	}
}

func storeError(err error) error {
	return fmt.Errorf("%w: %w", ErrStore, err)
}
