package entity

import "time"

// Artifact 最终文稿产出的引用
// 文件本体由渲染服务持有，这里只保存下载所需的元信息。
type Artifact struct {
	Filename    string    `json:"filename"`
	DownloadURL string    `json:"download_url"`
	SizeBytes   int64     `json:"size_bytes,omitempty"`
	TemplateID  string    `json:"template_id"`
	GeneratedAt time.Time `json:"generated_at"`
}
