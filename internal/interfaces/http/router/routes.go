// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterAPIRoutes 注册 /api 路由
func RegisterAPIRoutes(api *gin.RouterGroup, h Handlers) {
	// 额度
	if h.Credits != nil {
		credits := api.Group("/credits")
		{
			credits.GET("/:userId", h.Credits.GetBalance)
			credits.POST("/:userId/ensure", h.Credits.EnsureAccount)
			credits.GET("/:userId/usage", h.Credits.ListUsage)
		}
	}

	// 工具
	if h.Toolkit != nil {
		api.GET("/tools", h.Toolkit.ListTools)
		api.POST("/:tool", h.Toolkit.RunTool)
	}
}
