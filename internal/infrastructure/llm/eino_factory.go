// Package llm 提供基于 Eino 的 ChatModel 工厂
package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"deckgen-api/internal/config"
	"deckgen-api/internal/domain/entity"
)

// EinoFactory 按提供商配置构建并缓存 Eino ChatModel 实例
// DeepSeek、Anthropic 与自定义提供商均走 OpenAI 兼容端点。
// 缓存键由配置指纹构成，配置变更后需调用 Invalidate。
type EinoFactory struct {
	llmCfg *config.LLMConfig
	models map[string]model.BaseChatModel
	mu     sync.RWMutex
}

// NewEinoFactory 创建 ChatModel 工厂
func NewEinoFactory(cfg *config.Config) *EinoFactory {
	return &EinoFactory{
		llmCfg: &cfg.LLM,
		models: make(map[string]model.BaseChatModel),
	}
}

// Build 返回与配置对应的 ChatModel，同一配置复用缓存实例
func (f *EinoFactory) Build(ctx context.Context, cfg *entity.ProviderConfig) (model.BaseChatModel, error) {
	if cfg == nil {
		return nil, fmt.Errorf("provider config is required")
	}
	key := fingerprint(cfg)

	f.mu.RLock()
	m, ok := f.models[key]
	f.mu.RUnlock()
	if ok {
		return m, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// 再次检查防止竞态
	if m, ok = f.models[key]; ok {
		return m, nil
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = f.llmCfg.MaxTokens
	}
	temperature := float32(cfg.Temperature)
	if cfg.Temperature <= 0 {
		temperature = float32(f.llmCfg.Temperature)
	}

	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
		Timeout:     f.llmCfg.RequestTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model for %s: %w", cfg.Provider, err)
	}

	f.models[key] = chatModel
	return chatModel, nil
}

// Invalidate 清空全部缓存实例
func (f *EinoFactory) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.models = make(map[string]model.BaseChatModel)
}

// fingerprint 配置指纹，任一字段变化都会产生新实例
func fingerprint(cfg *entity.ProviderConfig) string {
	return fmt.Sprintf("%s|%s|%s|%s|%d|%.2f",
		cfg.Provider, cfg.BaseURL, cfg.Model, cfg.APIKey, cfg.MaxTokens, cfg.Temperature)
}
