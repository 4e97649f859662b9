package dto

import (
	"time"

	"deckgen-api/internal/domain/entity"
)

// CreateProjectRequest 创建项目请求
type CreateProjectRequest struct {
	Title string `json:"title" binding:"required,max=255"`
}

// NavigateRequest 步骤导航请求
type NavigateRequest struct {
	Step string `json:"step" binding:"required,oneof=input outline template artifact"`
}

// SubmitInputRequest 输入提交请求（topic / url 来源）
// file 来源走 multipart 表单，不经过该结构。
type SubmitInputRequest struct {
	Source            string `json:"source" binding:"required,oneof=topic url"`
	Topic             string `json:"topic"`
	URL               string `json:"url"`
	Language          string `json:"language" binding:"omitempty,oneof=zh en"`
	OutlineLength     string `json:"outline_length" binding:"omitempty,oneof=short medium long"`
	ExtraRequirements string `json:"extra_requirements" binding:"omitempty,max=2000"`
}

// SelectTemplateRequest 模板选择请求
type SelectTemplateRequest struct {
	TemplateID string `json:"template_id" binding:"required"`
}

// ProjectView 项目视图
type ProjectView struct {
	ID            string           `json:"id"`
	Title         string           `json:"title"`
	CurrentStep   string           `json:"current_step"`
	StepCompleted map[string]bool  `json:"step_completed"`
	InputSource   string           `json:"input_source,omitempty"`
	InputPreview  string           `json:"input_preview,omitempty"`
	Outline       *entity.Outline  `json:"outline,omitempty"`
	TemplateID    string           `json:"template_id,omitempty"`
	Template      *entity.Template `json:"template,omitempty"`
	Artifact      *entity.Artifact `json:"artifact,omitempty"`
	Settings      SettingsView     `json:"settings"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// SettingsView 生成偏好视图
type SettingsView struct {
	Language          string `json:"language"`
	OutlineLength     string `json:"outline_length"`
	ExtraRequirements string `json:"extra_requirements,omitempty"`
}

// inputPreviewLimit 输入内容回显上限（rune）
const inputPreviewLimit = 200

// NewProjectView 由项目聚合构造视图
func NewProjectView(p *entity.Project) *ProjectView {
	completed := make(map[string]bool, len(p.StepCompleted))
	for step, done := range p.StepCompleted {
		completed[step.String()] = done
	}

	preview := p.InputContent
	if runes := []rune(preview); len(runes) > inputPreviewLimit {
		preview = string(runes[:inputPreviewLimit]) + "..."
	}

	return &ProjectView{
		ID:            p.ID,
		Title:         p.Title,
		CurrentStep:   p.CurrentStep.String(),
		StepCompleted: completed,
		InputSource:   p.InputSource,
		InputPreview:  preview,
		Outline:       p.Outline,
		TemplateID:    p.TemplateID,
		Template:      p.Template,
		Artifact:      p.Artifact,
		Settings: SettingsView{
			Language:          p.Settings.Language,
			OutlineLength:     p.Settings.OutlineLength,
			ExtraRequirements: p.Settings.ExtraRequirements,
		},
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}
