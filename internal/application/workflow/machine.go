// Package workflow 实现四步工作流的门禁状态机
//
// 步骤固定为 输入 -> 大纲 -> 模板 -> 成品，只有当某步骤的全部前置
// 步骤都已完成时才允许进入该步骤。状态机本身只修改内存中的项目
// 聚合，持久化由调用方统一提交，保证整体写入。
package workflow

import (
	"context"
	"fmt"

	"deckgen-api/internal/domain/entity"
	"deckgen-api/internal/events"
	apperrors "deckgen-api/pkg/errors"
	"deckgen-api/pkg/logger"
	"deckgen-api/pkg/metrics"
)

// Machine 门禁状态机
type Machine struct {
	bus *events.Bus
}

// NewMachine 创建状态机
func NewMachine(bus *events.Bus) *Machine {
	return &Machine{bus: bus}
}

// Navigate 将项目导航到目标步骤
// 门禁不满足时返回错误并指出第一个未完成的前置步骤，项目状态不变。
func (m *Machine) Navigate(ctx context.Context, p *entity.Project, step entity.WorkflowStep) error {
	if !step.Valid() {
		return apperrors.ErrValidation.WithDetail(fmt.Sprintf("invalid step %d", step))
	}

	if !p.CanAccess(step) {
		metrics.WorkflowGatingViolations.WithLabelValues(step.String()).Inc()
		return apperrors.ErrGatingViolation.WithDetail(
			fmt.Sprintf("step %q requires completing %q first", step, m.firstIncompleteBefore(p, step)))
	}

	from := p.CurrentStep
	if from == step {
		return nil
	}

	p.GoTo(step)
	metrics.WorkflowStepTransitions.WithLabelValues(from.String(), step.String()).Inc()
	m.publishTransition(p, from, step)

	logger.Debug(ctx, "workflow step changed",
		"project_id", p.ID,
		"from", from.String(),
		"to", step.String(),
	)
	return nil
}

// Complete 标记步骤完成
func (m *Machine) Complete(ctx context.Context, p *entity.Project, step entity.WorkflowStep) {
	p.MarkCompleted(step)
}

// Invalidate 使指定步骤及其后续失效，用于上游输入变更
func (m *Machine) Invalidate(ctx context.Context, p *entity.Project, step entity.WorkflowStep) {
	p.InvalidateFrom(step)
}

// Reset 重置项目到初始步骤，幂等
func (m *Machine) Reset(ctx context.Context, p *entity.Project) {
	from := p.CurrentStep
	p.Reset()
	if from != entity.StepInput {
		metrics.WorkflowStepTransitions.WithLabelValues(from.String(), entity.StepInput.String()).Inc()
		m.publishTransition(p, from, entity.StepInput)
	}
}

func (m *Machine) firstIncompleteBefore(p *entity.Project, step entity.WorkflowStep) entity.WorkflowStep {
	for s := entity.StepInput; s < step; s++ {
		if !p.StepCompleted[s] {
			return s
		}
	}
	return step
}

func (m *Machine) publishTransition(p *entity.Project, from, to entity.WorkflowStep) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(events.EventStepTransition, map[string]any{
		"project_id": p.ID,
		"from":       from.String(),
		"to":         to.String(),
	})
}
