// Package provider 管理 AI 提供商目录与当前生效配置
package provider

import (
	"deckgen-api/internal/domain/entity"
)

// CatalogEntry 提供商目录条目
type CatalogEntry struct {
	Name         string   `json:"name"`
	DisplayName  string   `json:"display_name"`
	BaseURL      string   `json:"base_url"`
	Models       []string `json:"models"`
	DefaultModel string   `json:"default_model"`
	RequiresURL  bool     `json:"requires_url"`
}

// catalog 内置提供商目录
// custom 条目要求调用方自行提供 OpenAI 兼容端点。
var catalog = map[string]CatalogEntry{
	entity.ProviderDeepSeek: {
		Name:         entity.ProviderDeepSeek,
		DisplayName:  "DeepSeek",
		BaseURL:      "https://api.deepseek.com/v1",
		Models:       []string{"deepseek-chat", "deepseek-reasoner"},
		DefaultModel: "deepseek-chat",
	},
	entity.ProviderOpenAI: {
		Name:         entity.ProviderOpenAI,
		DisplayName:  "OpenAI",
		BaseURL:      "https://api.openai.com/v1",
		Models:       []string{"gpt-4o", "gpt-4o-mini", "gpt-4-turbo", "gpt-3.5-turbo"},
		DefaultModel: "gpt-4o-mini",
	},
	entity.ProviderAnthropic: {
		Name:         entity.ProviderAnthropic,
		DisplayName:  "Anthropic",
		BaseURL:      "https://api.anthropic.com/v1",
		Models:       []string{"claude-3-5-sonnet-20241022", "claude-3-5-haiku-20241022", "claude-3-opus-20240229"},
		DefaultModel: "claude-3-5-sonnet-20241022",
	},
	entity.ProviderCustom: {
		Name:        entity.ProviderCustom,
		DisplayName: "Custom",
		RequiresURL: true,
	},
}

// catalogOrder 目录展示顺序
var catalogOrder = []string{
	entity.ProviderDeepSeek,
	entity.ProviderOpenAI,
	entity.ProviderAnthropic,
	entity.ProviderCustom,
}

// Catalog 返回按固定顺序排列的提供商目录
func Catalog() []CatalogEntry {
	entries := make([]CatalogEntry, 0, len(catalogOrder))
	for _, name := range catalogOrder {
		entries = append(entries, catalog[name])
	}
	return entries
}

// Lookup 按名称查找目录条目
func Lookup(name string) (CatalogEntry, bool) {
	entry, ok := catalog[name]
	return entry, ok
}
