// Package huggingface 提供 Hugging Face 托管推理 API 客户端
package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ai-toolkit-api/internal/config"
	"ai-toolkit-api/internal/domain/service"
	"ai-toolkit-api/pkg/metrics"
)

var tracer = otel.Tracer("huggingface")

const (
	providerName   = "huggingface"
	maxErrorBody   = 4 << 10
	defaultTimeout = 30 * time.Second
)

// ErrModelLoading 模型仍在加载（冷启动），调用方可稍后重试
var ErrModelLoading = service.ErrModelLoading

// ModelLoadingError 携带预计加载时间
type ModelLoadingError struct {
	Model         string
	EstimatedTime time.Duration
}

func (e *ModelLoadingError) Error() string {
	return fmt.Sprintf("huggingface: model %s is loading (estimated %s)", e.Model, e.EstimatedTime)
}

// Is 使 errors.Is(err, ErrModelLoading) 成立
func (e *ModelLoadingError) Is(target error) bool {
	return target == ErrModelLoading
}

// UpstreamError 推理 API 返回的非 2xx 错误
type UpstreamError struct {
	Model      string
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("huggingface: model %s returned %d: %s", e.Model, e.StatusCode, e.Message)
}

// Client 推理 API 客户端
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	models     config.HuggingFaceModels
}

// NewClient 创建客户端
func NewClient(cfg *config.HuggingFaceConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		models:  cfg.Models,
	}
}

var (
	_ service.TextClassifier = (*Client)(nil)
	_ service.TextSummarizer = (*Client)(nil)
)

type inferenceRequest struct {
	Inputs     string         `json:"inputs"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Options    map[string]any `json:"options,omitempty"`
}

type errorBody struct {
	Error         string  `json:"error"`
	EstimatedTime float64 `json:"estimated_time"`
}

// Classify 文本分类，返回按分数降序的标签
func (c *Client) Classify(ctx context.Context, text string) ([]service.SentimentScore, error) {
	raw, err := c.infer(ctx, c.models.Sentiment, inferenceRequest{Inputs: text})
	if err != nil {
		return nil, err
	}

	// 响应可能是 [[{...}]] 或 [{...}]
	var nested [][]service.SentimentScore
	if err := json.Unmarshal(raw, &nested); err == nil && len(nested) > 0 {
		return sortScores(nested[0]), nil
	}
	var flat []service.SentimentScore
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, fmt.Errorf("huggingface: decode classification: %w", err)
	}
	return sortScores(flat), nil
}

// Summarize 文本摘要
func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	raw, err := c.infer(ctx, c.models.Summarization, inferenceRequest{
		Inputs: text,
		Parameters: map[string]any{
			"max_length": 150,
			"min_length": 30,
		},
	})
	if err != nil {
		return "", err
	}

	var out []struct {
		SummaryText string `json:"summary_text"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("huggingface: decode summary: %w", err)
	}
	if len(out) == 0 {
		return "", fmt.Errorf("huggingface: empty summary")
	}
	return strings.TrimSpace(out[0].SummaryText), nil
}

// GenerateText 文本生成
func (c *Client) GenerateText(ctx context.Context, model, prompt string, maxNewTokens int, temperature float64) (string, error) {
	if model == "" {
		model = c.models.TextGeneration
	}
	params := map[string]any{"return_full_text": false}
	if maxNewTokens > 0 {
		params["max_new_tokens"] = maxNewTokens
	}
	if temperature > 0 {
		params["temperature"] = temperature
	}

	raw, err := c.infer(ctx, model, inferenceRequest{Inputs: prompt, Parameters: params})
	if err != nil {
		return "", err
	}

	var out []struct {
		GeneratedText string `json:"generated_text"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("huggingface: decode generation: %w", err)
	}
	if len(out) == 0 {
		return "", fmt.Errorf("huggingface: empty generation")
	}
	return strings.TrimSpace(out[0].GeneratedText), nil
}

// infer 调用 {base_url}/models/{model}
func (c *Client) infer(ctx context.Context, model string, body inferenceRequest) (raw []byte, err error) {
	ctx, span := tracer.Start(ctx, "huggingface.Infer",
		trace.WithAttributes(attribute.String("hf.model", model)))
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		switch {
		case errors.Is(err, ErrModelLoading):
			status = "loading"
		case err != nil:
			status = "error"
		}
		metrics.UpstreamCallTotal.WithLabelValues(providerName, model, status).Inc()
		metrics.UpstreamCallDuration.WithLabelValues(providerName, model).Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
		}
	}()

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("huggingface: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/models/"+model, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("huggingface: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("huggingface: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("huggingface: read response: %w", err)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}
	return nil, classifyError(model, resp.StatusCode, data)
}

// classifyError 503 或错误信息包含 loading 时视为模型加载中
func classifyError(model string, status int, data []byte) error {
	var body errorBody
	_ = json.Unmarshal(data, &body)

	msg := body.Error
	if msg == "" {
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		msg = strings.TrimSpace(string(data))
	}

	if status == http.StatusServiceUnavailable || strings.Contains(strings.ToLower(msg), "loading") {
		return &ModelLoadingError{
			Model:         model,
			EstimatedTime: time.Duration(body.EstimatedTime * float64(time.Second)),
		}
	}
	return &UpstreamError{Model: model, StatusCode: status, Message: msg}
}

func sortScores(scores []service.SentimentScore) []service.SentimentScore {
	out := make([]service.SentimentScore, len(scores))
	copy(out, scores)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
