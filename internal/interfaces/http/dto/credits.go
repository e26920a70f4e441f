package dto

import (
	"time"

	"ai-toolkit-api/internal/domain/entity"
)

// BalanceResponse 余额响应
type BalanceResponse struct {
	UserID    string    `json:"userId"`
	Balance   int64     `json:"balance"`
	TotalUsed int64     `json:"totalUsed"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// EnsureAccountResponse 开户响应
type EnsureAccountResponse struct {
	Created bool  `json:"created"`
	Balance int64 `json:"balance"`
}

// UsageRecordResponse 用量记录
type UsageRecordResponse struct {
	ID              string    `json:"id"`
	ToolName        string    `json:"toolName"`
	ToolDisplayName string    `json:"toolDisplayName"`
	CreditsUsed     int64     `json:"creditsUsed"`
	InputPreview    string    `json:"inputPreview"`
	OutputPreview   string    `json:"outputPreview"`
	CreatedAt       time.Time `json:"createdAt"`
}

// UsageListResponse 用量列表
type UsageListResponse struct {
	Items []*UsageRecordResponse `json:"items"`
	Meta  *PageMeta              `json:"meta"`
}

// ToUsageRecordResponse 实体转响应
func ToUsageRecordResponse(r *entity.UsageRecord) *UsageRecordResponse {
	if r == nil {
		return nil
	}
	return &UsageRecordResponse{
		ID:              r.ID,
		ToolName:        r.ToolName,
		ToolDisplayName: r.ToolDisplayName,
		CreditsUsed:     r.CreditsUsed,
		InputPreview:    r.InputPreview,
		OutputPreview:   r.OutputPreview,
		CreatedAt:       r.CreatedAt,
	}
}
