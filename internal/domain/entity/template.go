package entity

// Template 文稿模板元信息，目录由渲染服务提供
type Template struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	PreviewURL  string   `json:"preview_url,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}
