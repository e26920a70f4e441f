package llm

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"ai-toolkit-api/internal/config"
	"ai-toolkit-api/internal/infrastructure/huggingface"
)

// HuggingFaceChatModel 以 eino ChatModel 接口封装 HF 文本生成
type HuggingFaceChatModel struct {
	client      *huggingface.Client
	modelName   string
	maxTokens   int
	temperature float32
}

// NewHuggingFaceChatModel 创建 HF ChatModel
func NewHuggingFaceChatModel(client *huggingface.Client, cfg config.ProviderConfig) *HuggingFaceChatModel {
	return &HuggingFaceChatModel{
		client:      client,
		modelName:   cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: float32(cfg.Temperature),
	}
}

var _ model.BaseChatModel = (*HuggingFaceChatModel)(nil)

// Generate 将消息拼接为指令格式后调用文本生成
func (h *HuggingFaceChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	options := model.GetCommonOptions(&model.Options{
		Temperature: &h.temperature,
		MaxTokens:   &h.maxTokens,
		Model:       &h.modelName,
	}, opts...)

	text, err := h.client.GenerateText(ctx, *options.Model, instructPrompt(input), *options.MaxTokens, float64(*options.Temperature))
	if err != nil {
		return nil, err
	}
	return schema.AssistantMessage(text, nil), nil
}

// Stream 以单块流返回完整结果
func (h *HuggingFaceChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := h.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// instructPrompt [INST] 格式，system 与 user 合并到同一指令块
func instructPrompt(input []*schema.Message) string {
	var (
		sb      strings.Builder
		pending []string
	)
	flush := func() {
		if len(pending) == 0 {
			return
		}
		sb.WriteString("[INST] ")
		sb.WriteString(strings.Join(pending, "\n\n"))
		sb.WriteString(" [/INST]")
		pending = pending[:0]
	}
	for _, msg := range input {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.Assistant:
			flush()
			sb.WriteString(" ")
			sb.WriteString(msg.Content)
			sb.WriteString(" ")
		default:
			pending = append(pending, msg.Content)
		}
	}
	flush()
	return strings.TrimSpace(sb.String())
}
