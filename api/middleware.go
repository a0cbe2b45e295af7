package api

import (
	"net/http"

	"github.com/bromato/bromato/pkg/logger"
	"github.com/bromato/bromato/services/session"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const sessionKey = "session"

// TraceIDMiddleware 为每个请求生成 trace_id
func TraceIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 尝试从请求头获取 trace_id，如果没有则生成新的
		traceID := c.GetHeader("X-Trace-ID")
		if traceID == "" {
			traceID = uuid.New().String()
		}

		ctx := logger.WithTraceID(c.Request.Context(), traceID)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Trace-ID", traceID)

		c.Next()
	}
}

// SessionMiddleware 按路径参数 :id 加载会话，不存在时返回 404
func SessionMiddleware(sessions Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := sessions.Get(c.Param("id"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		c.Set(sessionKey, s)
		c.Next()
	}
}

func currentSession(c *gin.Context) *session.Session {
	return c.MustGet(sessionKey).(*session.Session)
}
