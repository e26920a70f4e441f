// Package llm 提供多提供商的 ChatModel 工厂与文本生成实现
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"ai-toolkit-api/internal/config"
	"ai-toolkit-api/internal/infrastructure/huggingface"
)

// 支持的提供商类型
const (
	ProviderOpenAI      = "openai"
	ProviderGemini      = "gemini"
	ProviderHuggingFace = "huggingface"
)

// Factory 管理多个 ChatModel 实例，按名称惰性创建
type Factory struct {
	config  *config.LLMConfig
	hf      *huggingface.Client
	models  map[string]model.BaseChatModel
	closers []io.Closer
	mu      sync.RWMutex
}

// NewFactory 创建 LLM 工厂
func NewFactory(cfg *config.Config, hf *huggingface.Client) *Factory {
	return &Factory{
		config: &cfg.LLM,
		hf:     hf,
		models: make(map[string]model.BaseChatModel),
	}
}

// DefaultProvider 返回默认提供商名称
func (f *Factory) DefaultProvider() string {
	return f.config.DefaultProvider
}

// ProviderConfig 返回提供商配置
func (f *Factory) ProviderConfig(name string) (config.ProviderConfig, bool) {
	if name == "" {
		name = f.config.DefaultProvider
	}
	cfg, ok := f.config.Providers[name]
	return cfg, ok
}

// Get 获取指定名称的 ChatModel，如果未指定则返回默认提供商
func (f *Factory) Get(ctx context.Context, name string) (model.BaseChatModel, error) {
	if name == "" {
		name = f.config.DefaultProvider
	}

	f.mu.RLock()
	m, ok := f.models[name]
	f.mu.RUnlock()
	if ok {
		return m, nil
	}

	// 惰性加载
	f.mu.Lock()
	defer f.mu.Unlock()

	// 再次检查防止竞态
	if m, ok = f.models[name]; ok {
		return m, nil
	}

	providerCfg, ok := f.config.Providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %s not found in LLM config", name)
	}

	m, err := f.build(ctx, name, providerCfg)
	if err != nil {
		return nil, err
	}
	f.models[name] = m
	return m, nil
}

func (f *Factory) build(ctx context.Context, name string, cfg config.ProviderConfig) (model.BaseChatModel, error) {
	typ := strings.ToLower(cfg.Type)
	if typ == "" {
		typ = strings.ToLower(name)
	}

	switch typ {
	case ProviderOpenAI:
		chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   ptr(cfg.MaxTokens),
			Temperature: ptr(float32(cfg.Temperature)),
			Timeout:     cfg.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create eino chat model for %s: %w", name, err)
		}
		return chatModel, nil
	case ProviderGemini:
		gm, err := NewGeminiChatModel(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini chat model for %s: %w", name, err)
		}
		f.closers = append(f.closers, gm)
		return gm, nil
	case ProviderHuggingFace:
		if f.hf == nil {
			return nil, fmt.Errorf("huggingface client is not configured")
		}
		return NewHuggingFaceChatModel(f.hf, cfg), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider type %q", typ)
	}
}

// Close 释放提供商客户端
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	for _, c := range f.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	f.closers = nil
	return errors.Join(errs...)
}

func ptr[T any](v T) *T {
	return &v
}
