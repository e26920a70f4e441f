package eino

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"ai-toolkit-api/internal/domain/service"
	"ai-toolkit-api/pkg/metrics"
)

func TestChatModelHandler_RecordsTokenUsage(t *testing.T) {
	h := newChatModelCallbackHandler()
	ctx := service.WithProvider(context.Background(), "openai-test")

	ctx = h.OnStart(ctx, nil, &model.CallbackInput{Config: &model.Config{Model: "gpt-test"}})
	prompt := metrics.UpstreamTokensUsed.WithLabelValues("openai-test", "gpt-test", "prompt")
	completion := metrics.UpstreamTokensUsed.WithLabelValues("openai-test", "gpt-test", "completion")
	beforePrompt := testutil.ToFloat64(prompt)
	beforeCompletion := testutil.ToFloat64(completion)

	h.OnEnd(ctx, nil, &model.CallbackOutput{
		TokenUsage: &model.TokenUsage{PromptTokens: 12, CompletionTokens: 30, TotalTokens: 42},
	})

	assert.Equal(t, beforePrompt+12, testutil.ToFloat64(prompt))
	assert.Equal(t, beforeCompletion+30, testutil.ToFloat64(completion))
}

func TestChatModelHandler_IgnoresMissingUsage(t *testing.T) {
	h := newChatModelCallbackHandler()
	ctx := service.WithProvider(context.Background(), "gemini-test")

	out := h.OnEnd(ctx, nil, &model.CallbackOutput{Config: &model.Config{Model: "flash"}})
	assert.Equal(t, ctx, out)

	assert.NotPanics(t, func() {
		h.OnError(ctx, nil, errors.New("boom"))
	})
}
