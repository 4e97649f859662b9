package render

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"deckgen-api/internal/application/port"
	"deckgen-api/internal/domain/entity"
	"deckgen-api/internal/infrastructure/persistence/redis"
)

const (
	templateListKey      = "deckgen:templates:list"
	templateDetailPrefix = "deckgen:templates:detail:"
)

// CachedRenderer 带模板缓存的渲染客户端
// 模板目录变化缓慢，读取经 Redis 缓存，其余调用直接透传。
type CachedRenderer struct {
	inner port.Renderer
	cache *redis.Cache
	ttl   time.Duration
}

// NewCachedRenderer 包装渲染客户端，为模板读取加缓存
func NewCachedRenderer(inner port.Renderer, cache *redis.Cache, ttl time.Duration) *CachedRenderer {
	return &CachedRenderer{inner: inner, cache: cache, ttl: ttl}
}

// ListTemplates 获取模板目录（带缓存）
func (c *CachedRenderer) ListTemplates(ctx context.Context) ([]*entity.Template, error) {
	data, err := c.cache.GetOrLoad(ctx, templateListKey, c.ttl, func() (any, error) {
		return c.inner.ListTemplates(ctx)
	})
	if err != nil {
		return nil, err
	}

	var templates []*entity.Template
	if err := json.Unmarshal(data, &templates); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached templates: %w", err)
	}
	return templates, nil
}

// GetTemplate 获取模板详情（带缓存）
// 缓存中不存储 nil 结果，未知模板每次都会穿透到渲染服务。
func (c *CachedRenderer) GetTemplate(ctx context.Context, id string) (*entity.Template, error) {
	key := templateDetailPrefix + id
	data, err := c.cache.GetOrLoad(ctx, key, c.ttl, func() (any, error) {
		tpl, err := c.inner.GetTemplate(ctx, id)
		if err != nil {
			return nil, err
		}
		if tpl == nil {
			return nil, errTemplateMissing
		}
		return tpl, nil
	})
	if err != nil {
		if err == errTemplateMissing {
			return nil, nil
		}
		return nil, err
	}

	var tpl entity.Template
	if err := json.Unmarshal(data, &tpl); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached template: %w", err)
	}
	return &tpl, nil
}

var errTemplateMissing = fmt.Errorf("template not found")

// Assemble 透传装配请求
func (c *CachedRenderer) Assemble(ctx context.Context, req *port.AssembleRequest) (*entity.Artifact, error) {
	return c.inner.Assemble(ctx, req)
}

// Download 透传下载请求
func (c *CachedRenderer) Download(ctx context.Context, filename string) (io.ReadCloser, string, int64, error) {
	return c.inner.Download(ctx, filename)
}
