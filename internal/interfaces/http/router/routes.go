package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(v1 *gin.RouterGroup, h *Handlers) {
	// 项目与工作流
	projects := v1.Group("/projects")
	{
		projects.POST("", h.Project.CreateProject)
		projects.GET("/:pid", h.Project.GetProject)
		projects.POST("/:pid/reset", h.Project.Reset)

		// 步骤导航与各步骤操作
		projects.POST("/:pid/step", h.Project.Navigate)
		projects.POST("/:pid/input", h.Project.SubmitInput)
		projects.POST("/:pid/outline/regenerate", h.Project.RegenerateOutline)
		projects.POST("/:pid/template", h.Project.SelectTemplate)
		projects.GET("/:pid/artifact", h.Project.GetArtifact)
	}

	// 模板目录
	templates := v1.Group("/templates")
	{
		templates.GET("", h.Template.ListTemplates)
		templates.GET("/:tid", h.Template.GetTemplate)
	}

	// 成品下载
	v1.GET("/artifacts/:filename", h.Template.DownloadArtifact)

	// 提供商配置
	providerGroup := v1.Group("/provider")
	{
		providerGroup.GET("", h.Provider.GetProvider)
		providerGroup.PUT("", h.Provider.SaveProvider)
		providerGroup.POST("/test", h.Provider.TestProvider)
	}
}
