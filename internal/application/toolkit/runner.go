package toolkit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"ai-toolkit-api/internal/application/credit"
	"ai-toolkit-api/internal/domain/service"
	"ai-toolkit-api/pkg/logger"
	"ai-toolkit-api/pkg/metrics"
)

// Ledger 工具执行所需的账本能力
type Ledger interface {
	CheckBalance(ctx context.Context, userID string, required int64) (int64, error)
	Debit(ctx context.Context, userID string, amount int64, note credit.UsageNote) (int64, error)
	EnsureAccount(ctx context.Context, userID string, initialBalance int64) (bool, error)
	Recorded(ctx context.Context, userID, requestID string) (bool, error)
}

// RunnerConfig 执行器配置
type RunnerConfig struct {
	// AutoProvision 账户不存在时按 InitialBalance 自动开户
	AutoProvision  bool
	InitialBalance int64
	// RequireUser 付费工具必须携带 userId
	RequireUser bool
	Timeout     time.Duration
}

// Result 工具执行结果
type Result struct {
	Tool        *Tool
	Value       any
	RequestID   string
	CreditsUsed int64
	// CreditsRemaining 为空表示未扣费或扣费待重放
	CreditsRemaining *int64
	DebitPending     bool
}

// Runner 计费工具执行器
type Runner struct {
	ledger Ledger
	retry  service.DebitRetryQueue
	cfg    RunnerConfig
}

// NewRunner 创建执行器，retry 可为空
func NewRunner(ledger Ledger, retry service.DebitRetryQueue, cfg RunnerConfig) *Runner {
	return &Runner{ledger: ledger, retry: retry, cfg: cfg}
}

// Run 校验 → 余额预检 → 计算 → 扣费
func (r *Runner) Run(ctx context.Context, tool *Tool, req *Request) (*Result, error) {
	if req == nil {
		req = &Request{}
	}
	req.Language = NormalizeLanguage(req.Language)

	for _, f := range tool.Required {
		if req.Field(f) == "" {
			metrics.ToolRunTotal.WithLabelValues(tool.ID, "invalid").Inc()
			return nil, missingField(f)
		}
	}

	paid := !tool.Free() && req.UserID != ""
	if !tool.Free() && req.UserID == "" && r.cfg.RequireUser {
		metrics.ToolRunTotal.WithLabelValues(tool.ID, "invalid").Inc()
		return nil, missingField("userId")
	}

	if paid {
		ctx = logger.WithContext(ctx, logger.UserIDKey, req.UserID)
		if err := r.precheck(ctx, tool, req); err != nil {
			status := "rejected"
			if errors.Is(err, credit.ErrDuplicateRequest) {
				status = "duplicate"
			}
			metrics.ToolRunTotal.WithLabelValues(tool.ID, status).Inc()
			return nil, err
		}
	}

	value, err := r.compute(ctx, tool, req)
	if err != nil {
		status := "error"
		if errors.Is(err, ErrInvalidInput) {
			status = "invalid"
		}
		metrics.ToolRunTotal.WithLabelValues(tool.ID, status).Inc()
		return nil, err
	}

	res := &Result{Tool: tool, Value: value}
	if !paid {
		metrics.ToolRunTotal.WithLabelValues(tool.ID, "success").Inc()
		return res, nil
	}

	if err := r.settle(ctx, tool, req, res); err != nil {
		metrics.ToolRunTotal.WithLabelValues(tool.ID, "withheld").Inc()
		return nil, err
	}
	metrics.ToolRunTotal.WithLabelValues(tool.ID, "success").Inc()
	return res, nil
}

// precheck 幂等键已记账的请求不再计算
func (r *Runner) precheck(ctx context.Context, tool *Tool, req *Request) error {
	userID := req.UserID
	recorded, err := r.ledger.Recorded(ctx, userID, req.RequestID)
	if err != nil {
		return err
	}
	if recorded {
		logger.Info(ctx, "request id already charged, computation skipped",
			"tool", tool.ID, "request_id", req.RequestID)
		return credit.ErrDuplicateRequest
	}

	_, err = r.ledger.CheckBalance(ctx, userID, tool.Cost)
	if errors.Is(err, credit.ErrAccountNotFound) && r.cfg.AutoProvision {
		if _, err := r.ledger.EnsureAccount(ctx, userID, r.cfg.InitialBalance); err != nil {
			return err
		}
		_, err = r.ledger.CheckBalance(ctx, userID, tool.Cost)
		return err
	}
	return err
}

func (r *Runner) compute(ctx context.Context, tool *Tool, req *Request) (any, error) {
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	value, err := tool.Compute(service.WithTool(ctx, tool.ID), req)
	metrics.ToolRunDuration.WithLabelValues(tool.ID).Observe(time.Since(start).Seconds())
	if err != nil {
		logger.Warn(ctx, "tool computation failed", "tool", tool.ID, "error", err.Error())
		return nil, upstreamError(tool.ID, err)
	}
	return value, nil
}

// settle 提交扣费
// 余额不足/账户不存在/幂等键并发重复时扣留结果；存储错误时入重放队列并照常返回结果
func (r *Runner) settle(ctx context.Context, tool *Tool, req *Request, res *Result) error {
	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	in, out := tool.previews(req, res.Value)
	note := credit.UsageNote{
		ToolName:        tool.ID,
		ToolDisplayName: tool.DisplayName,
		InputPreview:    in,
		OutputPreview:   out,
		RequestID:       requestID,
	}

	// 计算已完成，客户端断开不应中止记账
	debitCtx := context.WithoutCancel(ctx)
	balance, err := r.ledger.Debit(debitCtx, req.UserID, tool.Cost, note)
	res.RequestID = requestID
	switch {
	case err == nil:
		res.CreditsUsed = tool.Cost
		res.CreditsRemaining = &balance
		return nil
	case errors.Is(err, credit.ErrInsufficientCredits), errors.Is(err, credit.ErrAccountNotFound),
		errors.Is(err, credit.ErrDuplicateRequest):
		logger.Warn(ctx, "debit rejected after computation, result withheld",
			"tool", tool.ID, "request_id", requestID, "error", err.Error())
		return err
	default:
		logger.Error(ctx, "debit failed, enqueueing retry", err, "tool", tool.ID, "request_id", requestID)
		res.CreditsUsed = tool.Cost
		res.DebitPending = true
		r.enqueue(debitCtx, req.UserID, tool, note, err)
		return nil
	}
}

func (r *Runner) enqueue(ctx context.Context, userID string, tool *Tool, note credit.UsageNote, cause error) {
	if r.retry == nil {
		logger.Warn(ctx, "debit retry queue not configured, debit dropped",
			"tool", tool.ID, "request_id", note.RequestID)
		return
	}
	err := r.retry.EnqueueDebit(ctx, service.PendingDebit{
		RequestID:       note.RequestID,
		UserID:          userID,
		Amount:          tool.Cost,
		ToolName:        note.ToolName,
		ToolDisplayName: note.ToolDisplayName,
		InputPreview:    note.InputPreview,
		OutputPreview:   note.OutputPreview,
		LastError:       cause.Error(),
		FailedAt:        time.Now().UTC(),
	})
	if err != nil {
		logger.Error(ctx, "failed to enqueue debit retry", err, "tool", tool.ID, "request_id", note.RequestID)
	}
}
