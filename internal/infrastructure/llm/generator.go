package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ai-toolkit-api/internal/domain/service"
	"ai-toolkit-api/internal/infrastructure/huggingface"
	"ai-toolkit-api/pkg/metrics"
)

var tracer = otel.Tracer("llm")

// ErrEmptyResponse 模型返回空内容
var ErrEmptyResponse = errors.New("llm: empty response")

// Generator 基于工厂的文本生成器，实现 service.TextGenerator
type Generator struct {
	factory  *Factory
	provider string
}

// NewGenerator 创建生成器，provider 为空时使用默认提供商
func NewGenerator(factory *Factory, provider string) *Generator {
	return &Generator{factory: factory, provider: provider}
}

var _ service.TextGenerator = (*Generator)(nil)

// Generate 调用 ChatModel 并返回文本内容
func (g *Generator) Generate(ctx context.Context, messages []*schema.Message) (text string, err error) {
	provider := g.provider
	if provider == "" {
		provider = g.factory.DefaultProvider()
	}
	modelName := provider
	if cfg, ok := g.factory.ProviderConfig(provider); ok && cfg.Model != "" {
		modelName = cfg.Model
	}

	ctx = service.WithProvider(ctx, provider)
	ctx, span := tracer.Start(ctx, "llm.generate",
		trace.WithAttributes(
			attribute.String("llm.provider", provider),
			attribute.String("llm.model", modelName),
			attribute.String("toolkit.tool", service.ToolFromContext(ctx)),
		))
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		switch {
		case errors.Is(err, huggingface.ErrModelLoading):
			status = "loading"
		case err != nil:
			status = "error"
		}
		metrics.UpstreamCallTotal.WithLabelValues(provider, modelName, status).Inc()
		metrics.UpstreamCallDuration.WithLabelValues(provider, modelName).Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	m, err := g.factory.Get(ctx, provider)
	if err != nil {
		return "", err
	}

	ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      service.ToolFromContext(ctx),
		Type:      provider,
		Component: components.ComponentOfChatModel,
	})
	// 自身不触发回调的模型由这里代为触发
	manual := !components.IsCallbacksEnabled(m)
	if manual {
		ctx = callbacks.OnStart(ctx, &model.CallbackInput{
			Messages: messages,
			Config:   &model.Config{Model: modelName},
		})
	}

	out, err := m.Generate(ctx, messages)
	if err != nil {
		if manual {
			callbacks.OnError(ctx, err)
		}
		return "", err
	}
	if manual {
		callbacks.OnEnd(ctx, callbackOutput(out, modelName))
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(out.Content), nil
}

func callbackOutput(out *schema.Message, modelName string) *model.CallbackOutput {
	cbOut := &model.CallbackOutput{
		Message: out,
		Config:  &model.Config{Model: modelName},
	}
	if out != nil && out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
		usage := out.ResponseMeta.Usage
		cbOut.TokenUsage = &model.TokenUsage{
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			TotalTokens:      usage.TotalTokens,
		}
	}
	return cbOut
}
