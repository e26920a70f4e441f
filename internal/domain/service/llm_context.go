package service

import (
	"context"
	"strings"
)

type llmCtxKey string

const (
	llmCtxKeyTool     llmCtxKey = "llm_tool"
	llmCtxKeyProvider llmCtxKey = "llm_provider"
)

// WithTool 记录当前调用所属工具，用于上游调用指标与日志
func WithTool(ctx context.Context, tool string) context.Context {
	if ctx == nil {
		return nil
	}
	t := strings.TrimSpace(tool)
	if t == "" {
		return ctx
	}
	return context.WithValue(ctx, llmCtxKeyTool, t)
}

func WithProvider(ctx context.Context, provider string) context.Context {
	if ctx == nil {
		return nil
	}
	p := strings.TrimSpace(provider)
	if p == "" {
		return ctx
	}
	return context.WithValue(ctx, llmCtxKeyProvider, p)
}

func ToolFromContext(ctx context.Context) string {
	return stringFromContext(ctx, llmCtxKeyTool)
}

func ProviderFromContext(ctx context.Context) string {
	return stringFromContext(ctx, llmCtxKeyProvider)
}

func stringFromContext(ctx context.Context, key llmCtxKey) string {
	if ctx == nil {
		return "unknown"
	}
	s, ok := ctx.Value(key).(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return strings.TrimSpace(s)
}
