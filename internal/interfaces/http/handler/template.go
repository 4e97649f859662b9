package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"deckgen-api/internal/application/deck"
	"deckgen-api/internal/interfaces/http/dto"
	"deckgen-api/pkg/logger"
)

// TemplateHandler 模板与成品下载处理器
type TemplateHandler struct {
	decks *deck.Service
}

// NewTemplateHandler 创建模板处理器
func NewTemplateHandler(decks *deck.Service) *TemplateHandler {
	return &TemplateHandler{decks: decks}
}

// ListTemplates 获取模板目录
// @Summary 获取模板目录
// @Tags Templates
// @Produce json
// @Success 200 {object} dto.Response[[]entity.Template]
// @Failure 502 {object} dto.ErrorResponse
// @Router /v1/templates [get]
func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	templates, err := h.decks.ListTemplates(c.Request.Context())
	if err != nil {
		dto.AppError(c, err)
		return
	}
	dto.Success(c, templates)
}

// GetTemplate 获取模板详情
// @Summary 获取模板详情
// @Tags Templates
// @Produce json
// @Param tid path string true "模板 ID"
// @Success 200 {object} dto.Response[entity.Template]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/templates/{tid} [get]
func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	tpl, err := h.decks.GetTemplate(c.Request.Context(), c.Param("tid"))
	if err != nil {
		dto.AppError(c, err)
		return
	}
	dto.Success(c, tpl)
}

// DownloadArtifact 下载成品文件
// @Summary 下载成品文件
// @Description 从渲染服务透传文件流
// @Tags Artifacts
// @Produce application/octet-stream
// @Param filename path string true "文件名"
// @Success 200 {file} binary
// @Failure 502 {object} dto.ErrorResponse
// @Router /v1/artifacts/{filename} [get]
func (h *TemplateHandler) DownloadArtifact(c *gin.Context) {
	ctx := c.Request.Context()
	filename := c.Param("filename")

	rc, contentType, size, err := h.decks.DownloadArtifact(ctx, filename)
	if err != nil {
		dto.AppError(c, err)
		return
	}
	defer rc.Close()

	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	if size > 0 {
		c.DataFromReader(http.StatusOK, size, contentType, rc, nil)
		return
	}

	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		logger.Warn(ctx, "artifact streaming interrupted", "filename", filename, "error", err.Error())
	}
}
