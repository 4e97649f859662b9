package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"deckgen-api/internal/domain/entity"
)

const providerConfigKey = "deckgen:settings:provider"

// SettingsStore 提供商配置的 Redis 仓储
// 配置整体序列化后单条 SET 覆盖，读方永远看不到半份配置。
type SettingsStore struct {
	client *Client
}

// NewSettingsStore 创建配置仓储
func NewSettingsStore(client *Client) *SettingsStore {
	return &SettingsStore{client: client}
}

// SaveProviderConfig 原子保存提供商配置，不设过期
func (s *SettingsStore) SaveProviderConfig(ctx context.Context, cfg *entity.ProviderConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal provider config: %w", err)
	}
	return s.client.Set(ctx, providerConfigKey, data, 0)
}

// GetProviderConfig 获取提供商配置，不存在时返回 (nil, nil)
func (s *SettingsStore) GetProviderConfig(ctx context.Context) (*entity.ProviderConfig, error) {
	data, err := s.client.Get(ctx, providerConfigKey)
	if err != nil {
		if IsNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load provider config: %w", err)
	}

	var cfg entity.ProviderConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal provider config: %w", err)
	}
	return &cfg, nil
}
