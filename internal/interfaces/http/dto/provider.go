package dto

import (
	"time"

	"deckgen-api/internal/application/provider"
	"deckgen-api/internal/domain/entity"
)

// ProviderConfigRequest 提供商配置请求
type ProviderConfigRequest struct {
	Provider    string  `json:"provider" binding:"required,oneof=openai deepseek anthropic custom"`
	APIKey      string  `json:"api_key" binding:"required"`
	BaseURL     string  `json:"base_url"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens" binding:"omitempty,min=1,max=128000"`
	Temperature float64 `json:"temperature" binding:"omitempty,min=0,max=2"`
}

// ToEntity 转换为领域配置
func (r *ProviderConfigRequest) ToEntity() *entity.ProviderConfig {
	return &entity.ProviderConfig{
		Provider:    r.Provider,
		APIKey:      r.APIKey,
		BaseURL:     r.BaseURL,
		Model:       r.Model,
		MaxTokens:   r.MaxTokens,
		Temperature: r.Temperature,
	}
}

// TestConnectionRequest 连通性测试请求
// 不带配置时测试当前生效配置。
type TestConnectionRequest struct {
	Config *ProviderConfigRequest `json:"config"`
}

// ProviderConfigView 提供商配置视图，密钥脱敏
type ProviderConfigView struct {
	Provider    string    `json:"provider"`
	APIKey      string    `json:"api_key"`
	BaseURL     string    `json:"base_url,omitempty"`
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	Configured  bool      `json:"configured"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
}

// ProviderStateView 提供商配置与目录
type ProviderStateView struct {
	Current *ProviderConfigView     `json:"current"`
	Catalog []provider.CatalogEntry `json:"catalog"`
}

// NewProviderConfigView 由领域配置构造脱敏视图
func NewProviderConfigView(cfg *entity.ProviderConfig) *ProviderConfigView {
	return &ProviderConfigView{
		Provider:    cfg.Provider,
		APIKey:      cfg.MaskedAPIKey(),
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Configured:  cfg.Complete(),
		UpdatedAt:   cfg.UpdatedAt,
	}
}
