package entity

import (
	"time"
	"unicode/utf8"
)

// MaxPreviewRunes 用量记录中输入/输出预览的最大字符数
const MaxPreviewRunes = 200

// UsageRecord 工具调用的用量记录，只追加不修改
type UsageRecord struct {
	ID              string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID          string    `json:"user_id" gorm:"type:varchar(128);not null;index:idx_usage_user_created,priority:1;uniqueIndex:idx_usage_user_request,priority:1"`
	ToolName        string    `json:"tool_name" gorm:"type:varchar(64);not null"`
	ToolDisplayName string    `json:"tool_display_name" gorm:"type:varchar(128);not null"`
	CreditsUsed     int64     `json:"credits_used" gorm:"not null;check:credits_used > 0"`
	InputPreview    string    `json:"input_preview" gorm:"type:varchar(200)"`
	OutputPreview   string    `json:"output_preview" gorm:"type:varchar(200)"`
	RequestID       *string   `json:"request_id,omitempty" gorm:"type:varchar(64);uniqueIndex:idx_usage_user_request,priority:2"`
	CreatedAt       time.Time `json:"created_at" gorm:"autoCreateTime;index:idx_usage_user_created,priority:2,sort:desc"`
}

// TableName 指定表名
func (UsageRecord) TableName() string {
	return "usage_history"
}

// TruncatePreview 按字符截断预览文本，不会截断多字节字符
func TruncatePreview(s string) string {
	if utf8.RuneCountInString(s) <= MaxPreviewRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:MaxPreviewRunes])
}
