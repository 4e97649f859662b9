package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"deckgen-api/internal/application/deck"
	"deckgen-api/internal/domain/entity"
	"deckgen-api/internal/interfaces/http/dto"
	"deckgen-api/pkg/logger"
)

// ProjectHandler 项目与工作流处理器
type ProjectHandler struct {
	decks *deck.Service
}

// NewProjectHandler 创建项目处理器
func NewProjectHandler(decks *deck.Service) *ProjectHandler {
	return &ProjectHandler{decks: decks}
}

// CreateProject 创建项目
// @Summary 创建项目
// @Tags Projects
// @Accept json
// @Produce json
// @Param body body dto.CreateProjectRequest true "项目信息"
// @Success 201 {object} dto.Response[dto.ProjectView]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/projects [post]
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	var req dto.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	project, err := h.decks.CreateProject(c.Request.Context(), strings.TrimSpace(req.Title))
	if err != nil {
		dto.AppError(c, err)
		return
	}
	dto.Created(c, dto.NewProjectView(project))
}

// GetProject 获取项目
// @Summary 获取项目当前状态
// @Tags Projects
// @Produce json
// @Param pid path string true "项目 ID"
// @Success 200 {object} dto.Response[dto.ProjectView]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/projects/{pid} [get]
func (h *ProjectHandler) GetProject(c *gin.Context) {
	project, err := h.decks.GetProject(c.Request.Context(), c.Param("pid"))
	if err != nil {
		dto.AppError(c, err)
		return
	}
	dto.Success(c, dto.NewProjectView(project))
}

// Navigate 步骤导航
// @Summary 导航到指定步骤
// @Description 仅当目标步骤的全部前置步骤已完成时允许进入
// @Tags Projects
// @Accept json
// @Produce json
// @Param pid path string true "项目 ID"
// @Param body body dto.NavigateRequest true "目标步骤"
// @Success 200 {object} dto.Response[dto.ProjectView]
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/projects/{pid}/step [post]
func (h *ProjectHandler) Navigate(c *gin.Context) {
	var req dto.NavigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	step, ok := entity.ParseWorkflowStep(req.Step)
	if !ok {
		dto.BadRequest(c, "unknown step: "+req.Step)
		return
	}

	project, err := h.decks.Navigate(c.Request.Context(), c.Param("pid"), step)
	if err != nil {
		dto.AppError(c, err)
		return
	}
	dto.Success(c, dto.NewProjectView(project))
}

// SubmitInput 提交输入内容
// @Summary 提交输入并生成大纲
// @Description topic/url 来源用 JSON 提交，file 来源用 multipart 表单提交
// @Tags Projects
// @Accept json
// @Accept multipart/form-data
// @Produce json
// @Param pid path string true "项目 ID"
// @Success 200 {object} dto.Response[dto.ProjectView]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 413 {object} dto.ErrorResponse
// @Router /v1/projects/{pid}/input [post]
func (h *ProjectHandler) SubmitInput(c *gin.Context) {
	ctx := c.Request.Context()
	pid := c.Param("pid")

	var input *deck.InputRequest
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			dto.BadRequest(c, "file field is required for file uploads")
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			dto.BadRequest(c, "failed to open uploaded file: "+err.Error())
			return
		}
		defer file.Close()

		input = &deck.InputRequest{
			Source:   entity.SourceFile,
			Filename: fileHeader.Filename,
			File:     file,
			FileSize: fileHeader.Size,
			Settings: settingsFromForm(c),
		}
	} else {
		var req dto.SubmitInputRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			dto.BadRequest(c, "invalid request body: "+err.Error())
			return
		}
		input = &deck.InputRequest{
			Source:   req.Source,
			Topic:    req.Topic,
			URL:      req.URL,
			Settings: settingsFromRequest(&req),
		}
	}

	project, err := h.decks.SubmitInput(ctx, pid, input)
	if err != nil {
		logger.Warn(ctx, "input submission failed", "project_id", pid, "error", err.Error())
		dto.AppError(c, err)
		return
	}
	dto.Success(c, dto.NewProjectView(project))
}

// RegenerateOutline 重新生成大纲
// @Summary 重新生成大纲
// @Description 并发触发会被合并，后发请求的结果最终生效
// @Tags Projects
// @Produce json
// @Param pid path string true "项目 ID"
// @Success 200 {object} dto.Response[dto.ProjectView]
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/projects/{pid}/outline/regenerate [post]
func (h *ProjectHandler) RegenerateOutline(c *gin.Context) {
	project, err := h.decks.RegenerateOutline(c.Request.Context(), c.Param("pid"))
	if err != nil {
		dto.AppError(c, err)
		return
	}
	dto.Success(c, dto.NewProjectView(project))
}

// SelectTemplate 选择模板
// @Summary 选择模板并装配文稿
// @Tags Projects
// @Accept json
// @Produce json
// @Param pid path string true "项目 ID"
// @Param body body dto.SelectTemplateRequest true "模板 ID"
// @Success 200 {object} dto.Response[dto.ProjectView]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/projects/{pid}/template [post]
func (h *ProjectHandler) SelectTemplate(c *gin.Context) {
	var req dto.SelectTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	project, err := h.decks.SelectTemplate(c.Request.Context(), c.Param("pid"), req.TemplateID)
	if err != nil {
		dto.AppError(c, err)
		return
	}
	dto.Success(c, dto.NewProjectView(project))
}

// GetArtifact 获取成品
// @Summary 获取成品信息，必要时触发装配
// @Tags Projects
// @Produce json
// @Param pid path string true "项目 ID"
// @Success 200 {object} dto.Response[dto.ProjectView]
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/projects/{pid}/artifact [get]
func (h *ProjectHandler) GetArtifact(c *gin.Context) {
	project, err := h.decks.GetArtifact(c.Request.Context(), c.Param("pid"))
	if err != nil {
		dto.AppError(c, err)
		return
	}
	dto.Success(c, dto.NewProjectView(project))
}

// Reset 重置项目
// @Summary 重置项目到初始步骤
// @Tags Projects
// @Produce json
// @Param pid path string true "项目 ID"
// @Success 200 {object} dto.Response[dto.ProjectView]
// @Router /v1/projects/{pid}/reset [post]
func (h *ProjectHandler) Reset(c *gin.Context) {
	project, err := h.decks.Reset(c.Request.Context(), c.Param("pid"))
	if err != nil {
		dto.AppError(c, err)
		return
	}
	dto.Success(c, dto.NewProjectView(project))
}

// settingsFromRequest 从 JSON 请求提取生成偏好，全部为空时保持项目原设置
func settingsFromRequest(req *dto.SubmitInputRequest) *entity.ProjectSettings {
	return buildSettings(req.Language, req.OutlineLength, req.ExtraRequirements)
}

// settingsFromForm 从 multipart 表单提取生成偏好
func settingsFromForm(c *gin.Context) *entity.ProjectSettings {
	return buildSettings(
		c.PostForm("language"),
		c.PostForm("outline_length"),
		c.PostForm("extra_requirements"),
	)
}

func buildSettings(language, length, extra string) *entity.ProjectSettings {
	if language == "" && length == "" && extra == "" {
		return nil
	}
	if language == "" {
		language = "zh"
	}
	if length == "" {
		length = entity.OutlineLengthMedium
	}
	return &entity.ProjectSettings{
		Language:          language,
		OutlineLength:     length,
		ExtraRequirements: extra,
	}
}
