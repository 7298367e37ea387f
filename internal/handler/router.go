package handler

import (
	"careerkit-go/internal/middleware"
	"careerkit-go/internal/service"
	"careerkit-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// Services 汇总注册路由所需的全部依赖。
type Services struct {
	Store      service.SavedResponseService
	Relay      service.RelayService
	Tools      service.ToolService
	Auth       service.AuthService
	Search     service.SearchService
	Export     service.ExportService
	JWTManager *token.JWTManager
}

// NewRouter 创建路由引擎并注册全部路由。
func NewRouter(s Services) *gin.Engine {
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 中继接口对任意来源开放
	relay := r.Group("/api")
	relay.Use(middleware.CORS())
	{
		h := NewRelayHandler(s.Relay)
		relay.POST("/ai", h.Generate)
		relay.OPTIONS("/ai", func(c *gin.Context) {})
	}

	pages := NewPageHandler(s.Store, s.Tools)
	r.GET("/", pages.Show)
	r.GET("/saved", middleware.AuthMiddleware(s.JWTManager), pages.ShowSaved)

	apiV1 := r.Group("/api/v1")
	{
		auth := apiV1.Group("/auth")
		{
			h := NewAuthHandler(s.Auth)
			auth.POST("/login", h.Login)
			auth.POST("/code", h.SendCode)
			auth.POST("/verify", h.Verify)
		}

		tools := apiV1.Group("/tools")
		{
			h := NewToolHandler(s.Tools)
			tools.GET("", h.Panels)
			tools.POST("/:tool", h.Run)
		}

		// 已保存回答需要两步验证之后的会话 token
		saved := apiV1.Group("/saved")
		saved.Use(middleware.AuthMiddleware(s.JWTManager))
		{
			h := NewSavedHandler(s.Store, s.Search, s.Export)
			saved.GET("", h.List)
			saved.POST("", h.Create)
			saved.GET("/search", h.Search)
			saved.POST("/export", h.Export)
			saved.DELETE("/:id", h.Delete)
		}
	}

	r.GET("/ws/saved", middleware.AuthMiddleware(s.JWTManager), NewLiveHandler(s.Store).Handle)
	return r
}
