package api

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func SetupRouter(handler *Handler, isDebug bool) *gin.Engine {
	var r *gin.Engine
	if isDebug {
		gin.SetMode(gin.DebugMode)
		r = gin.Default()
	} else {
		gin.SetMode(gin.ReleaseMode)
		r = gin.New()
		r.Use(gin.Recovery())
	}

	// TraceID 中间件 - 必须在其他中间件之前
	r.Use(TraceIDMiddleware())

	// 调用方是任意来源的自动化工具
	r.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Trace-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Trace-ID"},
		AllowCredentials: false,
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST("/shutdown", handler.Shutdown)

	api := r.Group("/api/v1")
	{
		api.POST("/sessions", handler.CreateSession)
		api.GET("/sessions", handler.ListSessions)
		api.DELETE("/sessions/:id", handler.DestroySession)

		s := api.Group("/sessions/:id")
		s.Use(SessionMiddleware(handler.sessions))
		{
			s.POST("/navigate", handler.Navigate)
			s.POST("/click", handler.Click)
			s.POST("/focus", handler.Focus)
			s.POST("/screenshot", handler.Screenshot)
			s.POST("/reload", handler.Reload)
			s.POST("/is_visible", handler.IsVisible)
			s.POST("/evaluate", handler.Evaluate)
			s.POST("/native_paste", handler.NativePaste)
			s.POST("/locator", handler.RunLocator)
			s.GET("/extract_content", handler.ExtractContent)

			s.POST("/interceptors", handler.AddInterceptor)
			s.GET("/interceptors/:iid/responses", handler.InterceptorResponses)
			s.DELETE("/interceptors/:iid", handler.RemoveInterceptor)
			s.DELETE("/interceptors", handler.RemoveAllInterceptors)
		}
	}

	return r
}
