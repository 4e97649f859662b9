package handler

import (
	"github.com/gin-gonic/gin"

	"deckgen-api/internal/application/provider"
	"deckgen-api/internal/events"
	"deckgen-api/internal/interfaces/http/dto"
)

// ProviderHandler 提供商配置处理器
type ProviderHandler struct {
	providers *provider.Service
	bus       *events.Bus
}

// NewProviderHandler 创建提供商配置处理器
func NewProviderHandler(providers *provider.Service, bus *events.Bus) *ProviderHandler {
	return &ProviderHandler{providers: providers, bus: bus}
}

// GetProvider 获取当前配置与目录
// @Summary 获取当前提供商配置与可选目录
// @Tags Provider
// @Produce json
// @Success 200 {object} dto.Response[dto.ProviderStateView]
// @Router /v1/provider [get]
func (h *ProviderHandler) GetProvider(c *gin.Context) {
	cfg, err := h.providers.Current(c.Request.Context())
	if err != nil {
		dto.AppError(c, err)
		return
	}
	dto.Success(c, &dto.ProviderStateView{
		Current: dto.NewProviderConfigView(cfg),
		Catalog: provider.Catalog(),
	})
}

// SaveProvider 保存提供商配置
// @Summary 保存提供商配置
// @Description 整份配置原子替换，保存后新配置立即对后续生成生效
// @Tags Provider
// @Accept json
// @Produce json
// @Param body body dto.ProviderConfigRequest true "提供商配置"
// @Success 200 {object} dto.Response[dto.ProviderConfigView]
// @Failure 422 {object} dto.ErrorResponse
// @Router /v1/provider [put]
func (h *ProviderHandler) SaveProvider(c *gin.Context) {
	var req dto.ProviderConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	saved, err := h.providers.Save(c.Request.Context(), req.ToEntity())
	if err != nil {
		dto.AppError(c, err)
		return
	}

	h.bus.Publish(events.EventProviderChanged, map[string]any{
		"provider": saved.Provider,
		"model":    saved.Model,
	})
	dto.Success(c, dto.NewProviderConfigView(saved))
}

// TestProvider 连通性测试
// @Summary 测试提供商连通性
// @Description 对候选配置（或当前配置）发起一次探测调用，不改变已保存的配置；探测失败以 success=false 的诊断结果返回
// @Tags Provider
// @Accept json
// @Produce json
// @Param body body dto.TestConnectionRequest false "候选配置"
// @Success 200 {object} dto.Response[provider.TestResult]
// @Failure 422 {object} dto.ErrorResponse
// @Router /v1/provider/test [post]
func (h *ProviderHandler) TestProvider(c *gin.Context) {
	var req dto.TestConnectionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			dto.BadRequest(c, "invalid request body: "+err.Error())
			return
		}
	}

	var candidate *dto.ProviderConfigRequest = req.Config
	var result *provider.TestResult
	var err error
	if candidate != nil {
		result, err = h.providers.TestConnection(c.Request.Context(), candidate.ToEntity())
	} else {
		result, err = h.providers.TestConnection(c.Request.Context(), nil)
	}
	if err != nil {
		dto.AppError(c, err)
		return
	}
	dto.Success(c, result)
}
