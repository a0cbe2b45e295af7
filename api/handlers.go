package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/bromato/bromato/locator"
	"github.com/bromato/bromato/models"
	"github.com/bromato/bromato/pkg/htmlutil"
	"github.com/bromato/bromato/pkg/logger"
	"github.com/bromato/bromato/services/session"
	"github.com/gin-gonic/gin"
)

// Sessions 会话管理能力，由 session.Manager 实现
type Sessions interface {
	Create(ctx context.Context) (*session.Session, error)
	Get(id string) (*session.Session, error)
	List() []models.SessionRecord
	Destroy(ctx context.Context, id string) error
}

type Handler struct {
	sessions Sessions
	shutdown func()
}

// NewHandler shutdown 在 /shutdown 响应写出后调用，不能阻塞等待服务器退出
func NewHandler(sessions Sessions, shutdown func()) *Handler {
	return &Handler{
		sessions: sessions,
		shutdown: shutdown,
	}
}

// respondError 把领域错误映射为 HTTP 状态码，其余错误记录日志后返回 500
func respondError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, locator.ErrGrammar),
		errors.Is(err, locator.ErrValidation),
		errors.Is(err, session.ErrUnsupportedPaste),
		errors.Is(err, session.ErrInvalidPaste),
		errors.Is(err, session.ErrInterceptorExists),
		errors.Is(err, htmlutil.ErrInvalidFormat):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
	case errors.Is(err, session.ErrInterceptorNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Interceptor not found"})
	default:
		logger.Error(c.Request.Context(), "%s: %v", msg, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}

// bindOptionalJSON 允许空请求体
func bindOptionalJSON(c *gin.Context, obj any) error {
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ============= 服务 =============

// Shutdown 先响应再触发关机
func (h *Handler) Shutdown(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "Shutting down"})
	if h.shutdown != nil {
		h.shutdown()
	}
}

// ============= 会话 =============

func (h *Handler) CreateSession(c *gin.Context) {
	s, err := h.sessions.Create(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to create session")
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": s.ID})
}

func (h *Handler) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.sessions.List()})
}

func (h *Handler) DestroySession(c *gin.Context) {
	id := c.Param("id")
	if err := h.sessions.Destroy(c.Request.Context(), id); err != nil {
		respondError(c, err, "Failed to close session")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": fmt.Sprintf("Session %s was successfully closed", id)})
}

// ============= 页面操作 =============

func (h *Handler) Navigate(c *gin.Context) {
	var req struct {
		URL       string  `json:"url" binding:"required,url"`
		Timeout   float64 `json:"timeout" binding:"omitempty,min=0"`
		WaitUntil string  `json:"waitUntil" binding:"omitempty,oneof=domcontentloaded networkidle load commit"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status, err := currentSession(c).Navigate(c.Request.Context(), req.URL, session.NavigateOptions{
		Timeout:   req.Timeout,
		WaitUntil: req.WaitUntil,
	})
	if err != nil {
		respondError(c, err, "Failed to navigate")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

type selectorRequest struct {
	Selector string `json:"selector" binding:"required"`
}

func (h *Handler) Click(c *gin.Context) {
	var req selectorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := currentSession(c).Click(c.Request.Context(), req.Selector); err != nil {
		respondError(c, err, "Failed to click")
		return
	}
	c.JSON(http.StatusOK, gin.H{"action": "click", "target": req.Selector})
}

func (h *Handler) Focus(c *gin.Context) {
	var req selectorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := currentSession(c).Focus(c.Request.Context(), req.Selector); err != nil {
		respondError(c, err, "Failed to focus")
		return
	}
	c.JSON(http.StatusOK, gin.H{"action": "focus", "target": req.Selector})
}

func (h *Handler) IsVisible(c *gin.Context) {
	var req selectorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	visible, err := currentSession(c).IsVisible(c.Request.Context(), req.Selector)
	if err != nil {
		respondError(c, err, "Failed to check visibility")
		return
	}
	c.JSON(http.StatusOK, gin.H{"is_visible": visible})
}

// Screenshot 默认截取整页
func (h *Handler) Screenshot(c *gin.Context) {
	var req struct {
		FullPage *bool `json:"fullPage"`
	}
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	fullPage := req.FullPage == nil || *req.FullPage

	data, err := currentSession(c).Screenshot(c.Request.Context(), fullPage)
	if err != nil {
		respondError(c, err, "Failed to take screenshot")
		return
	}
	c.Data(http.StatusOK, "image/png", data)
}

func (h *Handler) Reload(c *gin.Context) {
	status, err := currentSession(c).Reload(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to reload")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

func (h *Handler) Evaluate(c *gin.Context) {
	var req struct {
		Script string `json:"script" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := currentSession(c).Evaluate(c.Request.Context(), req.Script)
	if err != nil {
		respondError(c, err, "Failed to evaluate script")
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

func (h *Handler) NativePaste(c *gin.Context) {
	var req struct {
		Content string `json:"content" binding:"required"`
		Type    string `json:"type" binding:"omitempty,oneof=html text base64_image"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := currentSession(c).NativePaste(c.Request.Context(), req.Content, session.PasteType(req.Type))
	if err != nil {
		respondError(c, err, "Failed to perform native paste")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "Content pasted to system clipboard"})
}

// RunLocator 请求体是一条指令链或指令链列表
func (h *Handler) RunLocator(c *gin.Context) {
	var program locator.Program
	if err := c.ShouldBindJSON(&program); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := currentSession(c).RunInstructions(c.Request.Context(), program)
	if err != nil {
		respondError(c, err, "Failed to run locator")
		return
	}
	if !result.Returned {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) ExtractContent(c *gin.Context) {
	html, err := currentSession(c).Content(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to get page content")
		return
	}

	content, err := htmlutil.Extract(html, htmlutil.Format(c.Query("format")), c.Query("selector"))
	if err != nil {
		respondError(c, err, "Failed to extract content")
		return
	}
	c.JSON(http.StatusOK, gin.H{"content": content})
}

// ============= 拦截器 =============

func (h *Handler) AddInterceptor(c *gin.Context) {
	var req struct {
		URLPattern *string `json:"urlPattern" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := currentSession(c).AddInterceptor(c.Request.Context(), *req.URLPattern)
	if err != nil {
		if errors.Is(err, session.ErrInterceptorExists) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("Interceptor already exists for the %s url pattern", *req.URLPattern),
			})
			return
		}
		respondError(c, err, "Failed to add interceptor")
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (h *Handler) InterceptorResponses(c *gin.Context) {
	res, err := currentSession(c).InterceptorResponses(c.Request.Context(), c.Param("iid"))
	if err != nil {
		respondError(c, err, "Failed to get interceptor responses")
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) RemoveInterceptor(c *gin.Context) {
	id := c.Param("iid")
	if err := currentSession(c).RemoveInterceptor(c.Request.Context(), id); err != nil {
		respondError(c, err, "Failed to remove interceptor")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": fmt.Sprintf("Interceptor %s removed", id)})
}

func (h *Handler) RemoveAllInterceptors(c *gin.Context) {
	if err := currentSession(c).RemoveAllInterceptors(c.Request.Context()); err != nil {
		respondError(c, err, "Failed to remove interceptors")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "All interceptors removed"})
}
