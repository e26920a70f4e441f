package credit

import (
	"context"
	"errors"

	"ai-toolkit-api/internal/domain/service"
	"ai-toolkit-api/pkg/logger"
)

// Replay 重放提交失败的扣费
// 已记账视为成功；余额不足、账户不存在等业务拒绝视为终态返回 nil，仅存储错误需要重试
func (l *Ledger) Replay(ctx context.Context, debit service.PendingDebit) error {
	if debit.RequestID == "" {
		logger.Warn(ctx, "debit replay without request id dropped", "user_id", debit.UserID, "tool", debit.ToolName)
		return nil
	}

	balance, err := l.Debit(ctx, debit.UserID, debit.Amount, UsageNote{
		ToolName:        debit.ToolName,
		ToolDisplayName: debit.ToolDisplayName,
		InputPreview:    debit.InputPreview,
		OutputPreview:   debit.OutputPreview,
		RequestID:       debit.RequestID,
	})
	switch {
	case err == nil:
		logger.Info(ctx, "debit replayed", "user_id", debit.UserID, "request_id", debit.RequestID, "balance", balance)
		return nil
	case errors.Is(err, ErrDuplicateRequest):
		logger.Info(ctx, "debit replay already recorded", "user_id", debit.UserID, "request_id", debit.RequestID)
		return nil
	case errors.Is(err, ErrInsufficientCredits), errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrInvalidAmount):
		logger.Warn(ctx, "debit replay rejected", "user_id", debit.UserID, "request_id", debit.RequestID, "error", err.Error())
		return nil
	default:
		return err
	}
}
