// Package service 定义跨层依赖的领域服务接口（port）
package service

import (
	"context"
	"errors"

	"github.com/cloudwego/eino/schema"
)

// TextGenerator 文本生成能力，由 LLM 适配器实现
type TextGenerator interface {
	Generate(ctx context.Context, messages []*schema.Message) (string, error)
}

// TextGeneratorFunc 函数适配器
type TextGeneratorFunc func(ctx context.Context, messages []*schema.Message) (string, error)

// Generate 实现 TextGenerator
func (f TextGeneratorFunc) Generate(ctx context.Context, messages []*schema.Message) (string, error) {
	return f(ctx, messages)
}

// SentimentScore 情感分类结果中的单个标签
type SentimentScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// TextClassifier 文本分类能力（情感分析）
type TextClassifier interface {
	Classify(ctx context.Context, text string) ([]SentimentScore, error)
}

// TextSummarizer 文本摘要能力
type TextSummarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// ErrModelLoading 上游模型冷启动中，调用方可稍后重试
var ErrModelLoading = errors.New("upstream model is loading")
