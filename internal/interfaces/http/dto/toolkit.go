package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"ai-toolkit-api/internal/application/toolkit"
)

// 请求体中的保留字段，其余字段作为工具输入
const (
	fieldUserID   = "userId"
	fieldLanguage = "language"
)

// ToolRequest 工具调用请求体
type ToolRequest struct {
	UserID   string
	Language string
	Fields   map[string]string
}

// ParseToolRequest 解析任意 JSON 对象，标量字段统一转为字符串，数组按逗号拼接
func ParseToolRequest(body []byte) (*ToolRequest, error) {
	req := &ToolRequest{Fields: map[string]string{}}
	if len(bytes.TrimSpace(body)) == 0 {
		return req, nil
	}

	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("request body must be a JSON object: %w", err)
	}

	for k, v := range raw {
		s, ok := scalarString(v)
		if !ok {
			return nil, fmt.Errorf("field %s has unsupported type", k)
		}
		switch k {
		case fieldUserID:
			req.UserID = strings.TrimSpace(s)
		case fieldLanguage:
			req.Language = s
		default:
			req.Fields[k] = s
		}
	}
	return req, nil
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", true
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := scalarString(item)
			if !ok {
				return "", false
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ","), true
	default:
		return "", false
	}
}

// ToolInfo 工具目录项
type ToolInfo struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Cost        int64    `json:"cost"`
	ResultField string   `json:"resultField"`
	Required    []string `json:"required"`
}

// ToToolInfo 工具定义转目录项
func ToToolInfo(t *toolkit.Tool) *ToolInfo {
	return &ToolInfo{
		ID:          t.ID,
		Name:        t.DisplayName,
		Cost:        t.Cost,
		ResultField: t.ResultField,
		Required:    t.Required,
	}
}

// ToolResponse 组装 { <resultField>: value, creditsRemaining: n }
func ToolResponse(res *toolkit.Result) map[string]any {
	out := map[string]any{res.Tool.ResultField: res.Value}
	if res.CreditsRemaining != nil {
		out["creditsRemaining"] = *res.CreditsRemaining
	}
	// 扣费已转入重放队列
	if res.DebitPending {
		out["debitPending"] = true
	}
	return out
}
