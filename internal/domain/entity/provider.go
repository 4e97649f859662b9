package entity

import (
	"strings"
	"time"
)

// 内置提供商标识
const (
	ProviderOpenAI    = "openai"
	ProviderDeepSeek  = "deepseek"
	ProviderAnthropic = "anthropic"
	ProviderCustom    = "custom"
)

// ProviderConfig 当前生效的 AI 提供商配置
// 整体读写：保存时全量替换，避免出现半新半旧的配置。
type ProviderConfig struct {
	Provider    string    `json:"provider"`
	APIKey      string    `json:"api_key"`
	BaseURL     string    `json:"base_url,omitempty"`
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Complete 检查配置是否满足发起生成的最低要求
// custom 提供商必须显式给出 BaseURL，内置提供商可回退到目录默认值。
func (c *ProviderConfig) Complete() bool {
	if c == nil {
		return false
	}
	if strings.TrimSpace(c.APIKey) == "" || strings.TrimSpace(c.Model) == "" {
		return false
	}
	if c.Provider == ProviderCustom && strings.TrimSpace(c.BaseURL) == "" {
		return false
	}
	return true
}

// MaskedAPIKey 返回脱敏后的密钥，用于回显
func (c *ProviderConfig) MaskedAPIKey() string {
	key := c.APIKey
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
