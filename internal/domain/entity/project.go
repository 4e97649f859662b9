// Package entity 定义领域实体
package entity

import (
	"time"

	"github.com/google/uuid"
)

// WorkflowStep 工作流步骤，按序推进
type WorkflowStep int

const (
	StepInput    WorkflowStep = 1
	StepOutline  WorkflowStep = 2
	StepTemplate WorkflowStep = 3
	StepArtifact WorkflowStep = 4
)

// String 返回步骤名称
func (s WorkflowStep) String() string {
	switch s {
	case StepInput:
		return "input"
	case StepOutline:
		return "outline"
	case StepTemplate:
		return "template"
	case StepArtifact:
		return "artifact"
	default:
		return "unknown"
	}
}

// Valid 检查步骤序号是否合法
func (s WorkflowStep) Valid() bool {
	return s >= StepInput && s <= StepArtifact
}

// ParseWorkflowStep 按名称解析步骤
func ParseWorkflowStep(name string) (WorkflowStep, bool) {
	switch name {
	case "input":
		return StepInput, true
	case "outline":
		return StepOutline, true
	case "template":
		return StepTemplate, true
	case "artifact":
		return StepArtifact, true
	default:
		return 0, false
	}
}

// ProjectSettings 生成偏好设置
type ProjectSettings struct {
	Language          string `json:"language"`
	OutlineLength     string `json:"outline_length"`
	ExtraRequirements string `json:"extra_requirements,omitempty"`
}

// OutlineLength 取值
const (
	OutlineLengthShort  = "short"
	OutlineLengthMedium = "medium"
	OutlineLengthLong   = "long"
)

// Project 文稿生成项目聚合根
// 保存四步工作流的进度与各步骤产出，整体读写以保证状态一致。
type Project struct {
	ID            string                `json:"id"`
	Title         string                `json:"title"`
	CurrentStep   WorkflowStep          `json:"current_step"`
	StepCompleted map[WorkflowStep]bool `json:"step_completed"`
	InputContent  string                `json:"input_content,omitempty"`
	InputSource   string                `json:"input_source,omitempty"`
	Outline       *Outline              `json:"outline,omitempty"`
	TemplateID    string                `json:"template_id,omitempty"`
	Template      *Template             `json:"template,omitempty"`
	Artifact      *Artifact             `json:"artifact,omitempty"`
	Settings      ProjectSettings       `json:"settings"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// InputSource 取值
const (
	SourceTopic = "topic"
	SourceFile  = "file"
	SourceURL   = "url"
)

// NewProject 创建新项目，初始位于输入步骤
func NewProject(title string) *Project {
	now := time.Now()
	return &Project{
		ID:            uuid.NewString(),
		Title:         title,
		CurrentStep:   StepInput,
		StepCompleted: make(map[WorkflowStep]bool),
		Settings:      defaultSettings(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// defaultSettings 生成偏好的初始值
func defaultSettings() ProjectSettings {
	return ProjectSettings{
		Language:      "zh",
		OutlineLength: OutlineLengthMedium,
	}
}

// CanAccess 检查步骤是否可进入：其所有前置步骤均已完成
func (p *Project) CanAccess(step WorkflowStep) bool {
	if !step.Valid() {
		return false
	}
	for s := StepInput; s < step; s++ {
		if !p.StepCompleted[s] {
			return false
		}
	}
	return true
}

// GoTo 导航到目标步骤，仅在门禁允许时生效
func (p *Project) GoTo(step WorkflowStep) bool {
	if !p.CanAccess(step) {
		return false
	}
	p.CurrentStep = step
	p.UpdatedAt = time.Now()
	return true
}

// MarkCompleted 标记步骤完成
func (p *Project) MarkCompleted(step WorkflowStep) {
	if p.StepCompleted == nil {
		p.StepCompleted = make(map[WorkflowStep]bool)
	}
	p.StepCompleted[step] = true
	p.UpdatedAt = time.Now()
}

// InvalidateFrom 使指定步骤及其后续步骤的完成状态与产出失效
// 上游输入变化时调用，确保下游产出不会基于过期内容。
func (p *Project) InvalidateFrom(step WorkflowStep) {
	for s := step; s <= StepArtifact; s++ {
		delete(p.StepCompleted, s)
	}
	if step <= StepOutline {
		p.Outline = nil
	}
	if step <= StepTemplate {
		p.TemplateID = ""
		p.Template = nil
	}
	if step <= StepArtifact {
		p.Artifact = nil
	}
	p.UpdatedAt = time.Now()
}

// Reset 重置项目到初始状态，幂等
// 除 ID 与创建时间外的全部字段恢复初始值，标题与设置也不例外。
func (p *Project) Reset() {
	p.Title = ""
	p.CurrentStep = StepInput
	p.StepCompleted = make(map[WorkflowStep]bool)
	p.InputContent = ""
	p.InputSource = ""
	p.Outline = nil
	p.TemplateID = ""
	p.Template = nil
	p.Artifact = nil
	p.Settings = defaultSettings()
	p.UpdatedAt = time.Now()
}
