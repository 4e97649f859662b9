package repository

import (
	"context"

	"deckgen-api/internal/domain/entity"
)

// SettingsRepository 提供商配置仓储接口
// 配置整体读写：Save 原子替换整份配置，Get 在无配置时返回 nil。
type SettingsRepository interface {
	// SaveProviderConfig 保存当前生效的提供商配置
	SaveProviderConfig(ctx context.Context, cfg *entity.ProviderConfig) error

	// GetProviderConfig 获取当前生效的提供商配置，不存在时返回 (nil, nil)
	GetProviderConfig(ctx context.Context) (*entity.ProviderConfig, error)
}
