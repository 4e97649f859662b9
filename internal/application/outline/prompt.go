// Package outline 负责大纲生成：提示词构建、模型调用与结果解析
package outline

import (
	"fmt"
	"strings"

	"deckgen-api/internal/domain/entity"
)

// lengthRequirements 篇幅档位对应的章节数要求
var lengthRequirements = map[string]string{
	entity.OutlineLengthShort:  "3-5",
	entity.OutlineLengthMedium: "5-8",
	entity.OutlineLengthLong:   "8-12",
}

// languageNames 提示词中使用的语言名称
var languageNames = map[string]string{
	"zh": "中文",
	"en": "English",
}

// BuildPrompt 构建大纲生成提示词
// 要求模型输出固定层级的 Markdown：# 标题 / ## 章节 / ### 小节 / - 要点。
func BuildPrompt(content string, settings entity.ProjectSettings) string {
	chapters, ok := lengthRequirements[settings.OutlineLength]
	if !ok {
		chapters = lengthRequirements[entity.OutlineLengthMedium]
	}
	language, ok := languageNames[settings.Language]
	if !ok {
		language = languageNames["zh"]
	}

	var b strings.Builder
	b.WriteString("你是一位资深的演示文稿策划专家。请根据以下内容生成一份演示文稿大纲。\n\n")
	b.WriteString("内容：\n")
	b.WriteString(content)
	b.WriteString("\n\n要求：\n")
	fmt.Fprintf(&b, "1. 大纲包含 %s 个章节\n", chapters)
	fmt.Fprintf(&b, "2. 使用%s撰写\n", language)
	b.WriteString("3. 每个章节包含 2-4 个小节，每个小节包含 2-3 个要点\n")
	b.WriteString("4. 输出严格使用 Markdown 格式：\n")
	b.WriteString("   - 第一行为 `# 大纲标题`\n")
	b.WriteString("   - 章节使用 `## 章节标题`\n")
	b.WriteString("   - 小节使用 `### 小节标题`\n")
	b.WriteString("   - 要点使用 `- 要点内容`\n")
	b.WriteString("5. 只输出大纲本身，不要任何解释性文字\n")

	if req := strings.TrimSpace(settings.ExtraRequirements); req != "" {
		b.WriteString("\n额外要求：\n")
		b.WriteString(req)
		b.WriteString("\n")
	}
	return b.String()
}
