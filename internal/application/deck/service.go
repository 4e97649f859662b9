// Package deck 编排文稿生成的完整流程
//
// 串联内容接入、大纲生成、模板选择与文稿装配四个步骤，对项目状态
// 做整体读写。大纲生成与成品装配分别经 singleflight 按项目合并，
// 任意时刻同一项目至多一次在途调用；输入序号的校验与落盘在项目级
// 写锁内完成，过期的在途结果落盘时退化为空操作，后发输入最终生效。
package deck

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"deckgen-api/internal/application/outline"
	"deckgen-api/internal/application/port"
	"deckgen-api/internal/application/source"
	"deckgen-api/internal/application/workflow"
	"deckgen-api/internal/domain/entity"
	"deckgen-api/internal/domain/repository"
	"deckgen-api/internal/events"
	apperrors "deckgen-api/pkg/errors"
	"deckgen-api/pkg/logger"
	"deckgen-api/pkg/metrics"
)

// InputRequest 输入提交请求
type InputRequest struct {
	Source   string
	Topic    string
	URL      string
	Filename string
	File     io.Reader
	FileSize int64
	Settings *entity.ProjectSettings
}

// projectState 项目级写锁与输入序号
// 序号递增与状态落盘共处临界区，在途生成据此判断自身是否过期。
type projectState struct {
	mu  sync.Mutex
	seq uint64
}

// Service 文稿生成编排服务
type Service struct {
	projects  repository.ProjectRepository
	machine   *workflow.Machine
	sources   *source.Service
	generator *outline.Generator
	renderer  port.Renderer
	bus       *events.Bus

	group singleflight.Group

	mu     sync.Mutex
	states map[string]*projectState
}

// NewService 创建编排服务
func NewService(
	projects repository.ProjectRepository,
	machine *workflow.Machine,
	sources *source.Service,
	generator *outline.Generator,
	renderer port.Renderer,
	bus *events.Bus,
) *Service {
	return &Service{
		projects:  projects,
		machine:   machine,
		sources:   sources,
		generator: generator,
		renderer:  renderer,
		bus:       bus,
		states:    make(map[string]*projectState),
	}
}

func outlineKey(id string) string  { return id + ":outline" }
func assembleKey(id string) string { return id + ":assemble" }

func (s *Service) state(id string) *projectState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[id]
	if !ok {
		st = &projectState{}
		s.states[id] = st
	}
	return st
}

func (s *Service) currentSeq(id string) uint64 {
	st := s.state(id)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.seq
}

// CreateProject 创建新项目
func (s *Service) CreateProject(ctx context.Context, title string) (*entity.Project, error) {
	p := entity.NewProject(title)
	if err := s.projects.Save(ctx, p); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCacheError, "failed to save project")
	}
	logger.Info(ctx, "project created", "project_id", p.ID, "title", title)
	return p, nil
}

// GetProject 获取项目
func (s *Service) GetProject(ctx context.Context, id string) (*entity.Project, error) {
	p, err := s.projects.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCacheError, "failed to load project")
	}
	if p == nil {
		return nil, apperrors.ErrProjectNotFound.WithDetail("project " + id)
	}
	return p, nil
}

// Navigate 导航到目标步骤并持久化
// 进入成品步骤且尚无成品时自动触发装配，装配失败则导航整体失败。
func (s *Service) Navigate(ctx context.Context, id string, step entity.WorkflowStep) (*entity.Project, error) {
	p, err := s.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.machine.Navigate(ctx, p, step); err != nil {
		return nil, err
	}
	if step == entity.StepArtifact && p.Artifact == nil {
		return s.assembleArtifact(ctx, id)
	}
	if err := s.projects.Save(ctx, p); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCacheError, "failed to save project")
	}
	return p, nil
}

// SubmitInput 提交输入内容
// 内容接入成功即完成输入步骤，随后自动进入大纲步骤并触发生成。
// 输入变更会使所有下游产出失效，生成失败不回滚已接入的输入。
// 文件与网页来源会更新项目标题。
func (s *Service) SubmitInput(ctx context.Context, id string, req *InputRequest) (*entity.Project, error) {
	if _, err := s.GetProject(ctx, id); err != nil {
		return nil, err
	}

	content, title, err := s.resolveContent(ctx, req)
	if err != nil {
		return nil, err
	}

	seq, err := s.commitInput(ctx, id, req, content, title)
	if err != nil {
		return nil, err
	}

	// 新输入作废在途的旧生成，并强制开启新一轮生成
	s.group.Forget(outlineKey(id))

	// 输入已落盘，大纲生成失败不影响已保存的输入
	return s.generateOutline(ctx, id, seq)
}

// commitInput 在项目写锁内落盘新输入并递增序号
// 序号递增与输入落盘同处临界区，在途的旧生成无法插入其间。
func (s *Service) commitInput(ctx context.Context, id string, req *InputRequest, content, title string) (uint64, error) {
	st := s.state(id)
	st.mu.Lock()
	defer st.mu.Unlock()

	p, err := s.GetProject(ctx, id)
	if err != nil {
		return 0, err
	}

	if req.Settings != nil {
		p.Settings = *req.Settings
	}
	if title != "" {
		p.Title = title
	}

	// 新输入作废所有下游产出
	s.machine.Invalidate(ctx, p, entity.StepOutline)
	p.InputContent = content
	p.InputSource = req.Source
	s.machine.Complete(ctx, p, entity.StepInput)
	if err := s.machine.Navigate(ctx, p, entity.StepOutline); err != nil {
		return 0, err
	}
	if err := s.projects.Save(ctx, p); err != nil {
		return 0, apperrors.Wrap(err, apperrors.CodeCacheError, "failed to save project")
	}

	st.seq++
	return st.seq, nil
}

// resolveContent 按来源类型接入内容，返回正文与推导标题
func (s *Service) resolveContent(ctx context.Context, req *InputRequest) (string, string, error) {
	switch req.Source {
	case entity.SourceTopic:
		return s.sources.FromTopic(ctx, req.Topic)
	case entity.SourceFile:
		return s.sources.FromFile(ctx, req.Filename, req.File, req.FileSize)
	case entity.SourceURL:
		return s.sources.FromURL(ctx, req.URL)
	default:
		return "", "", apperrors.ErrValidation.WithDetail(fmt.Sprintf("unknown source type %q", req.Source))
	}
}

// RegenerateOutline 重新生成大纲
// 并发触发被合并执行，后发请求的结果覆盖先发请求。
// 只覆盖大纲本身，已选模板与已装配成品保持不变。
func (s *Service) RegenerateOutline(ctx context.Context, id string) (*entity.Project, error) {
	p, err := s.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.StepCompleted[entity.StepInput] {
		return nil, apperrors.ErrStepIncomplete.WithDetail("submit input before generating an outline")
	}
	// 并发的重复触发共享同一次生成
	return s.generateOutline(ctx, id, s.currentSeq(id))
}

// generateOutline 执行一次大纲生成并落盘
// seq 为发起时的输入序号，校验与落盘在项目写锁内完成：
// 期间提交了新输入则本次结果作废，落盘退化为空操作。
func (s *Service) generateOutline(ctx context.Context, id string, seq uint64) (*entity.Project, error) {
	result, err, _ := s.group.Do(outlineKey(id), func() (any, error) {
		p, err := s.GetProject(ctx, id)
		if err != nil {
			return nil, err
		}

		generated, err := s.generator.Generate(ctx, p.InputContent, p.Settings)
		if err != nil {
			return nil, err
		}

		st := s.state(id)
		st.mu.Lock()
		defer st.mu.Unlock()

		if st.seq != seq {
			// 期间提交了新输入，本次结果作废
			metrics.StaleGenerationDrops.Inc()
			logger.Debug(ctx, "stale outline result dropped", "project_id", id)
			return s.GetProject(ctx, id)
		}

		// 临界区内重读，只覆盖大纲相关字段
		p, err = s.GetProject(ctx, id)
		if err != nil {
			return nil, err
		}
		p.Outline = generated
		s.machine.Complete(ctx, p, entity.StepOutline)
		if err := s.projects.Save(ctx, p); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeCacheError, "failed to save project")
		}

		s.bus.Publish(events.EventOutlineGenerated, map[string]any{
			"project_id": p.ID,
			"chapters":   generated.ChapterCount(),
			"provider":   generated.Provider,
		})
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*entity.Project), nil
}

// SelectTemplate 选择模板
// 模板详情获取失败只使本次选择失败，项目状态不变。
// 选择成功后立即尝试装配成品，装配失败不回滚模板选择。
func (s *Service) SelectTemplate(ctx context.Context, id, templateID string) (*entity.Project, error) {
	p, err := s.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.machine.Navigate(ctx, p, entity.StepTemplate); err != nil {
		return nil, err
	}

	tpl, err := s.renderer.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeRenderError, "failed to fetch template")
	}
	if tpl == nil {
		return nil, apperrors.ErrTemplateNotFound.WithDetail("template " + templateID)
	}

	// 换模板作废已有成品
	s.machine.Invalidate(ctx, p, entity.StepArtifact)
	p.TemplateID = tpl.ID
	p.Template = tpl
	s.machine.Complete(ctx, p, entity.StepTemplate)
	if err := s.projects.Save(ctx, p); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCacheError, "failed to save project")
	}

	// 模板已落盘，装配失败时项目停留在模板步骤
	return s.assembleArtifact(ctx, id)
}

// GetArtifact 获取成品，必要时触发装配
func (s *Service) GetArtifact(ctx context.Context, id string) (*entity.Project, error) {
	p, err := s.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Artifact != nil && p.StepCompleted[entity.StepArtifact] {
		return p, nil
	}
	if !p.StepCompleted[entity.StepOutline] || !p.StepCompleted[entity.StepTemplate] {
		return nil, apperrors.ErrStepIncomplete.WithDetail("outline and template must be completed before assembly")
	}
	return s.assembleArtifact(ctx, id)
}

// assembleArtifact 调用渲染服务装配成品并落盘
// 同一项目的并发触发经 singleflight 合并，任意时刻至多一次在途装配。
func (s *Service) assembleArtifact(ctx context.Context, id string) (*entity.Project, error) {
	result, err, _ := s.group.Do(assembleKey(id), func() (any, error) {
		p, err := s.GetProject(ctx, id)
		if err != nil {
			return nil, err
		}
		if p.Artifact != nil && p.StepCompleted[entity.StepArtifact] {
			return p, nil
		}
		if p.Outline == nil || p.TemplateID == "" {
			return nil, apperrors.ErrStepIncomplete.WithDetail("outline and template must be set before assembly")
		}

		templateID := p.TemplateID
		start := time.Now()
		artifact, err := s.renderer.Assemble(ctx, &port.AssembleRequest{
			Title:      p.Outline.Title,
			Outline:    p.Outline,
			TemplateID: templateID,
			Language:   p.Settings.Language,
		})
		if err != nil {
			metrics.ArtifactAssemblyTotal.WithLabelValues("error").Inc()
			return nil, apperrors.Wrap(err, apperrors.CodeAssemblyFailed, "artifact assembly failed")
		}
		metrics.ArtifactAssemblyTotal.WithLabelValues("success").Inc()
		metrics.ArtifactAssemblyDuration.WithLabelValues(templateID).Observe(time.Since(start).Seconds())

		st := s.state(id)
		st.mu.Lock()
		defer st.mu.Unlock()

		// 临界区内重读，期间输入或模板已变更则本次成品作废
		p, err = s.GetProject(ctx, id)
		if err != nil {
			return nil, err
		}
		if p.TemplateID != templateID || !p.StepCompleted[entity.StepTemplate] {
			metrics.StaleGenerationDrops.Inc()
			logger.Debug(ctx, "stale artifact result dropped", "project_id", id)
			return p, nil
		}

		p.Artifact = artifact
		s.machine.Complete(ctx, p, entity.StepArtifact)
		if err := s.machine.Navigate(ctx, p, entity.StepArtifact); err != nil {
			return nil, err
		}
		if err := s.projects.Save(ctx, p); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeCacheError, "failed to save project")
		}

		s.bus.Publish(events.EventArtifactAssembled, map[string]any{
			"project_id": p.ID,
			"filename":   artifact.Filename,
			"template":   templateID,
		})
		logger.Info(ctx, "artifact assembled",
			"project_id", p.ID,
			"filename", artifact.Filename,
			"template_id", templateID,
		)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*entity.Project), nil
}

// Reset 重置项目到初始状态，幂等
// 重置同样递增序号，在途的旧生成结果落盘时作废。
func (s *Service) Reset(ctx context.Context, id string) (*entity.Project, error) {
	st := s.state(id)
	st.mu.Lock()
	defer st.mu.Unlock()

	p, err := s.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	s.machine.Reset(ctx, p)
	if err := s.projects.Save(ctx, p); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCacheError, "failed to save project")
	}
	st.seq++
	return p, nil
}

// ListTemplates 获取模板目录
func (s *Service) ListTemplates(ctx context.Context) ([]*entity.Template, error) {
	templates, err := s.renderer.ListTemplates(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeRenderError, "failed to list templates")
	}
	return templates, nil
}

// GetTemplate 获取模板详情
func (s *Service) GetTemplate(ctx context.Context, id string) (*entity.Template, error) {
	tpl, err := s.renderer.GetTemplate(ctx, id)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeRenderError, "failed to fetch template")
	}
	if tpl == nil {
		return nil, apperrors.ErrTemplateNotFound.WithDetail("template " + id)
	}
	return tpl, nil
}

// DownloadArtifact 下载成品文件
func (s *Service) DownloadArtifact(ctx context.Context, filename string) (io.ReadCloser, string, int64, error) {
	rc, contentType, size, err := s.renderer.Download(ctx, filename)
	if err != nil {
		return nil, "", 0, apperrors.Wrap(err, apperrors.CodeRenderError, "failed to download artifact")
	}
	return rc, contentType, size, nil
}
