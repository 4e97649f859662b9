package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"deckgen-api/internal/domain/entity"
)

const (
	projectKeyPrefix = "deckgen:project:"
	// 项目为会话性数据，长期不活跃的项目自动过期
	projectTTL = 7 * 24 * time.Hour
)

// ProjectStore 项目状态的 Redis 仓储
// 整个项目聚合序列化为单个 JSON 值，单条 SET 保证写入原子性。
type ProjectStore struct {
	client *Client
}

// NewProjectStore 创建项目仓储
func NewProjectStore(client *Client) *ProjectStore {
	return &ProjectStore{client: client}
}

// Save 保存项目（创建或全量覆盖）
func (s *ProjectStore) Save(ctx context.Context, project *entity.Project) error {
	data, err := json.Marshal(project)
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}
	return s.client.Set(ctx, projectKeyPrefix+project.ID, data, projectTTL)
}

// GetByID 根据 ID 获取项目，不存在时返回 (nil, nil)
func (s *ProjectStore) GetByID(ctx context.Context, id string) (*entity.Project, error) {
	data, err := s.client.Get(ctx, projectKeyPrefix+id)
	if err != nil {
		if IsNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load project: %w", err)
	}

	var project entity.Project
	if err := json.Unmarshal(data, &project); err != nil {
		return nil, fmt.Errorf("failed to unmarshal project: %w", err)
	}
	return &project, nil
}

// Delete 删除项目
func (s *ProjectStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, projectKeyPrefix+id)
}
