package entity

// OutlineNode 大纲树节点
// Level 1 为章节，Level 2 为小节，Level 3 为要点。
type OutlineNode struct {
	Title    string         `json:"title"`
	Level    int            `json:"level"`
	Children []*OutlineNode `json:"children,omitempty"`
}

// Outline 文稿大纲
// Markdown 保留模型原始输出，Nodes 为解析后的结构化视图。
type Outline struct {
	Title    string         `json:"title"`
	Nodes    []*OutlineNode `json:"nodes"`
	Markdown string         `json:"markdown"`
	Provider string         `json:"provider,omitempty"`
	Model    string         `json:"model,omitempty"`
}

// ChapterCount 返回顶层章节数
func (o *Outline) ChapterCount() int {
	if o == nil {
		return 0
	}
	return len(o.Nodes)
}
