// Package port 定义应用层对外部能力的最小依赖（port）
package port

import (
	"context"
	"io"

	"github.com/cloudwego/eino/components/model"

	"deckgen-api/internal/domain/entity"
)

// ChatModelFactory 按提供商配置构建 LLM ChatModel
type ChatModelFactory interface {
	// Build 返回与配置对应的 ChatModel，同一配置复用缓存实例
	Build(ctx context.Context, cfg *entity.ProviderConfig) (model.BaseChatModel, error)

	// Invalidate 清空缓存，配置保存后调用
	Invalidate()
}

// AssembleRequest 文稿装配请求
type AssembleRequest struct {
	Title      string
	Outline    *entity.Outline
	TemplateID string
	Language   string
}

// Renderer 文稿渲染服务
type Renderer interface {
	// ListTemplates 获取模板目录
	ListTemplates(ctx context.Context) ([]*entity.Template, error)

	// GetTemplate 获取单个模板详情
	GetTemplate(ctx context.Context, id string) (*entity.Template, error)

	// Assemble 依据大纲与模板装配最终文稿
	Assemble(ctx context.Context, req *AssembleRequest) (*entity.Artifact, error)

	// Download 按文件名下载已装配的文稿
	Download(ctx context.Context, filename string) (io.ReadCloser, string, int64, error)
}

// Extractor 内容提取服务
// 正文之外附带提取到的标题，提取不到时标题为空。
type Extractor interface {
	// ExtractURL 抓取网页并提取正文与标题
	ExtractURL(ctx context.Context, url string) (content, title string, err error)

	// ExtractFile 从上传的文档中提取文本与标题
	ExtractFile(ctx context.Context, filename string, r io.Reader, size int64) (content, title string, err error)
}
