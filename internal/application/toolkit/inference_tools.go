package toolkit

import (
	"context"
	"errors"
	"strings"

	"ai-toolkit-api/internal/domain/service"
)

// SentimentResult 情感分析结果
type SentimentResult struct {
	Sentiment string                   `json:"sentiment"`
	Label     string                   `json:"label"`
	Score     float64                  `json:"score"`
	Scores    []service.SentimentScore `json:"scores"`
}

var sentimentLabels = map[string]map[string]string{
	LanguageEnglish: {"positive": "Positive", "negative": "Negative", "neutral": "Neutral"},
	LanguageTurkish: {"positive": "Olumlu", "negative": "Olumsuz", "neutral": "Nötr"},
}

// canonicalSentiment 统一不同模型的标签命名
func canonicalSentiment(label string) string {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "positive", "pos", "label_2", "5 stars", "4 stars":
		return "positive"
	case "negative", "neg", "label_0", "1 star", "2 stars":
		return "negative"
	default:
		return "neutral"
	}
}

func newSentimentTool(classifier service.TextClassifier) *Tool {
	return &Tool{
		ID:          ToolSentimentAnalysis,
		DisplayName: "Sentiment Analysis",
		Cost:        1,
		ResultField: "sentiment",
		Required:    []string{"text"},
		Compute: func(ctx context.Context, req *Request) (any, error) {
			if classifier == nil {
				return nil, errors.New("text classifier not configured")
			}
			scores, err := classifier.Classify(service.WithTool(ctx, ToolSentimentAnalysis), req.Field("text"))
			if err != nil {
				return nil, err
			}
			if len(scores) == 0 {
				return nil, errors.New("classifier returned no labels")
			}

			top := scores[0]
			for _, s := range scores[1:] {
				if s.Score > top.Score {
					top = s
				}
			}
			sentiment := canonicalSentiment(top.Label)
			return &SentimentResult{
				Sentiment: sentiment,
				Label:     sentimentLabels[NormalizeLanguage(req.Language)][sentiment],
				Score:     top.Score,
				Scores:    scores,
			}, nil
		},
		Preview: func(req *Request, result any) (string, string) {
			out := ""
			if r, ok := result.(*SentimentResult); ok {
				out = r.Label
			}
			return req.Field("text"), out
		},
	}
}

func newSummarizationTool(summarizer service.TextSummarizer) *Tool {
	return &Tool{
		ID:          ToolTextSummarization,
		DisplayName: "Text Summarizer",
		Cost:        2,
		ResultField: "summary",
		Required:    []string{"text"},
		Compute: func(ctx context.Context, req *Request) (any, error) {
			if summarizer == nil {
				return nil, errors.New("text summarizer not configured")
			}
			summary, err := summarizer.Summarize(service.WithTool(ctx, ToolTextSummarization), req.Field("text"))
			if err != nil {
				return nil, err
			}
			return strings.TrimSpace(summary), nil
		},
	}
}
