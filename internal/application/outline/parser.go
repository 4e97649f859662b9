package outline

import (
	"strings"

	"deckgen-api/internal/domain/entity"
	apperrors "deckgen-api/pkg/errors"
)

// Parse 将 Markdown 大纲解析为结构化大纲树
// 层级约定：# 为大纲标题，## 为章节，### 为小节，- 或 * 为要点。
// 容忍模型输出被 ``` 围栏包裹；至少解析出一个章节，否则判定生成失败。
func Parse(markdown string) (*entity.Outline, error) {
	outline := &entity.Outline{
		Markdown: markdown,
		Nodes:    []*entity.OutlineNode{},
	}

	var (
		chapter *entity.OutlineNode
		section *entity.OutlineNode
	)

	for _, line := range strings.Split(stripFences(markdown), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "### "):
			if chapter == nil {
				continue // 缺少所属章节的小节直接丢弃
			}
			section = &entity.OutlineNode{
				Title: strings.TrimSpace(strings.TrimPrefix(line, "### ")),
				Level: 2,
			}
			chapter.Children = append(chapter.Children, section)

		case strings.HasPrefix(line, "## "):
			chapter = &entity.OutlineNode{
				Title: strings.TrimSpace(strings.TrimPrefix(line, "## ")),
				Level: 1,
			}
			section = nil
			outline.Nodes = append(outline.Nodes, chapter)

		case strings.HasPrefix(line, "# "):
			if outline.Title == "" {
				outline.Title = strings.TrimSpace(strings.TrimPrefix(line, "# "))
			}

		case strings.HasPrefix(line, "- "), strings.HasPrefix(line, "* "):
			point := &entity.OutlineNode{
				Title: strings.TrimSpace(line[2:]),
				Level: 3,
			}
			switch {
			case section != nil:
				section.Children = append(section.Children, point)
			case chapter != nil:
				chapter.Children = append(chapter.Children, point)
			}
		}
	}

	if len(outline.Nodes) == 0 {
		return nil, apperrors.ErrGenerationFailed.WithDetail("model output contains no chapters")
	}
	if outline.Title == "" {
		outline.Title = outline.Nodes[0].Title
	}
	return outline, nil
}

// stripFences 移除包裹整个输出的 Markdown 代码围栏
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
