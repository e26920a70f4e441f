package eino

import (
	"context"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	cbtemplate "github.com/cloudwego/eino/utils/callbacks"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ai-toolkit-api/internal/domain/service"
	"ai-toolkit-api/pkg/logger"
	"ai-toolkit-api/pkg/metrics"
)

type modelNameKey struct{}

// newChatModelCallbackHandler 统计 ChatModel 的 token 用量
//
// 调用次数与耗时由 llm.Generator 记录，这里只处理依赖回调输出的部分
func newChatModelCallbackHandler() *cbtemplate.ModelCallbackHandler {
	return &cbtemplate.ModelCallbackHandler{
		OnStart: func(ctx context.Context, _ *einocb.RunInfo, input *model.CallbackInput) context.Context {
			if name := modelNameFromInput(input); name != "" {
				ctx = context.WithValue(ctx, modelNameKey{}, name)
			}
			return ctx
		},

		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *model.CallbackOutput) context.Context {
			if output == nil || output.TokenUsage == nil {
				return ctx
			}
			provider := service.ProviderFromContext(ctx)
			modelName := modelNameFromOutput(output)
			if modelName == "" {
				modelName, _ = ctx.Value(modelNameKey{}).(string)
			}
			if modelName == "" && info != nil {
				modelName = info.Type
			}

			usage := output.TokenUsage
			metrics.UpstreamTokensUsed.WithLabelValues(provider, modelName, "prompt").Add(float64(usage.PromptTokens))
			metrics.UpstreamTokensUsed.WithLabelValues(provider, modelName, "completion").Add(float64(usage.CompletionTokens))

			trace.SpanFromContext(ctx).SetAttributes(
				attribute.Int("llm.prompt_tokens", usage.PromptTokens),
				attribute.Int("llm.completion_tokens", usage.CompletionTokens),
			)
			logger.Debug(ctx, "chat model token usage",
				"tool", service.ToolFromContext(ctx),
				"provider", provider,
				"model", modelName,
				"prompt_tokens", usage.PromptTokens,
				"completion_tokens", usage.CompletionTokens,
			)
			return ctx
		},

		OnError: func(ctx context.Context, _ *einocb.RunInfo, err error) context.Context {
			logger.Debug(ctx, "chat model call failed",
				"tool", service.ToolFromContext(ctx),
				"provider", service.ProviderFromContext(ctx),
				"error", err.Error(),
			)
			return ctx
		},
	}
}

func modelNameFromInput(in *model.CallbackInput) string {
	if in == nil || in.Config == nil {
		return ""
	}
	return in.Config.Model
}

func modelNameFromOutput(out *model.CallbackOutput) string {
	if out == nil || out.Config == nil {
		return ""
	}
	return out.Config.Model
}
