package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"ai-toolkit-api/internal/config"
)

const defaultGeminiModel = "gemini-1.5-flash"

// GeminiChatModel 以 eino ChatModel 接口封装 Gemini
type GeminiChatModel struct {
	client      *genai.Client
	modelName   string
	maxTokens   int
	temperature float32
}

// NewGeminiChatModel 创建 Gemini ChatModel
func NewGeminiChatModel(ctx context.Context, cfg config.ProviderConfig) (*GeminiChatModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, err
	}
	name := cfg.Model
	if name == "" {
		name = defaultGeminiModel
	}
	return &GeminiChatModel{
		client:      client,
		modelName:   name,
		maxTokens:   cfg.MaxTokens,
		temperature: float32(cfg.Temperature),
	}, nil
}

var _ model.BaseChatModel = (*GeminiChatModel)(nil)

// Generate 单轮生成；system 消息作为 SystemInstruction，其余作为对话历史
func (g *GeminiChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	options := model.GetCommonOptions(&model.Options{
		Temperature: &g.temperature,
		MaxTokens:   &g.maxTokens,
		Model:       &g.modelName,
	}, opts...)

	gm := g.client.GenerativeModel(*options.Model)
	if options.Temperature != nil {
		gm.SetTemperature(*options.Temperature)
	}
	if options.MaxTokens != nil && *options.MaxTokens > 0 {
		gm.SetMaxOutputTokens(int32(*options.MaxTokens))
	}

	system, history := toGeminiContents(input)
	if len(system) > 0 {
		gm.SystemInstruction = &genai.Content{Parts: system}
	}
	if len(history) == 0 {
		return nil, errors.New("gemini: no user message")
	}

	last := history[len(history)-1]
	cs := gm.StartChat()
	cs.History = history[:len(history)-1]

	resp, err := cs.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return schema.AssistantMessage(responseText(resp), nil), nil
}

// Stream 以单块流返回完整结果
func (g *GeminiChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := g.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// Close 关闭客户端
func (g *GeminiChatModel) Close() error {
	return g.client.Close()
}

func toGeminiContents(input []*schema.Message) ([]genai.Part, []*genai.Content) {
	var (
		system  []genai.Part
		history []*genai.Content
	)
	for _, msg := range input {
		if msg == nil || strings.TrimSpace(msg.Content) == "" {
			continue
		}
		switch msg.Role {
		case schema.System:
			system = append(system, genai.Text(msg.Content))
		case schema.Assistant:
			history = append(history, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(msg.Content)}})
		default:
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(msg.Content)}})
		}
	}
	return system, history
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return sb.String()
}
