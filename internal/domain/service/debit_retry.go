package service

import (
	"context"
	"time"
)

// PendingDebit 计算已完成但扣费提交失败的记账请求
type PendingDebit struct {
	RequestID       string
	UserID          string
	Amount          int64
	ToolName        string
	ToolDisplayName string
	InputPreview    string
	OutputPreview   string
	LastError       string
	FailedAt        time.Time
}

// DebitRetryQueue 扣费重放队列，由后台 worker 按幂等键重放
type DebitRetryQueue interface {
	EnqueueDebit(ctx context.Context, debit PendingDebit) error
}
