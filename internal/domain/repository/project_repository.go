// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"deckgen-api/internal/domain/entity"
)

// ProjectRepository 项目仓储接口
// 项目状态整体读写，Save 全量替换以保证一致性。
type ProjectRepository interface {
	// Save 保存项目（创建或全量覆盖）
	Save(ctx context.Context, project *entity.Project) error

	// GetByID 根据 ID 获取项目
	GetByID(ctx context.Context, id string) (*entity.Project, error)

	// Delete 删除项目
	Delete(ctx context.Context, id string) error
}
