package session

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/bromato/bromato/locator"
	"github.com/bromato/bromato/models"
	"github.com/bromato/bromato/pkg/logger"
	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
)

// Store 会话持久化所需的存储能力，由 storage.BoltDB 实现
type Store interface {
	SaveSession(record *models.SessionRecord) error
	DeleteSession(id string) error
	SaveInterceptor(record *models.InterceptorRecord) error
	DeleteInterceptor(id string) error
	AppendInterceptorResponse(interceptorID string, entry models.ResponseEntry) error
	ListInterceptorResponses(interceptorID string) ([]models.ResponseEntry, error)
}

// NavigateOptions 导航参数
type NavigateOptions struct {
	Timeout   float64 `json:"timeout,omitempty"`   // 毫秒
	WaitUntil string  `json:"waitUntil,omitempty"` // domcontentloaded, networkidle, load, commit
}

// PasteType native_paste 的内容类型
type PasteType string

const (
	PasteText        PasteType = "text"
	PasteHTML        PasteType = "html"
	PasteBase64Image PasteType = "base64_image"
)

// Session 一个会话对应浏览器中的一个页面
type Session struct {
	ID string

	page   playwright.Page
	store  Store
	engine *locator.Engine
	board  *pasteboard
	record *models.SessionRecord

	mu           sync.Mutex
	interceptors []*interceptor
}

func (s *Session) Page() playwright.Page {
	return s.page
}

// Navigate 打开 url 并返回主文档的状态码；没有响应时返回 418
func (s *Session) Navigate(ctx context.Context, url string, opts NavigateOptions) (int, error) {
	gotoOpts := playwright.PageGotoOptions{}
	if opts.Timeout > 0 {
		gotoOpts.Timeout = playwright.Float(opts.Timeout)
	}
	if opts.WaitUntil != "" {
		waitUntil := playwright.WaitUntilState(opts.WaitUntil)
		gotoOpts.WaitUntil = &waitUntil
	}

	resp, err := s.page.Goto(url, gotoOpts)
	if err != nil {
		return 0, fmt.Errorf("navigate to %s: %w", url, err)
	}

	s.mu.Lock()
	s.record.URL = url
	record := *s.record
	s.mu.Unlock()
	if err := s.store.SaveSession(&record); err != nil {
		logger.Warn(ctx, "Failed to save session %s: %v", s.ID, err)
	}

	if resp == nil {
		return http.StatusTeapot, nil
	}
	return resp.Status(), nil
}

// Reload 重新加载页面；没有响应时返回 408
func (s *Session) Reload(ctx context.Context) (int, error) {
	resp, err := s.page.Reload()
	if err != nil {
		return 0, fmt.Errorf("reload: %w", err)
	}
	if resp == nil {
		return http.StatusRequestTimeout, nil
	}
	return resp.Status(), nil
}

func (s *Session) Click(ctx context.Context, selector string) error {
	return s.page.Locator(selector).Click()
}

func (s *Session) Focus(ctx context.Context, selector string) error {
	return s.page.Locator(selector).Focus()
}

func (s *Session) IsVisible(ctx context.Context, selector string) (bool, error) {
	return s.page.Locator(selector).IsVisible()
}

// Screenshot 截图，返回 PNG
func (s *Session) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	return s.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(fullPage),
	})
}

func (s *Session) Content(ctx context.Context) (string, error) {
	return s.page.Content()
}

func (s *Session) Evaluate(ctx context.Context, script string) (any, error) {
	return s.page.Evaluate(script)
}

// NativePaste 写入系统剪贴板后在页面中按下粘贴快捷键。
// base64_image 的内容解码后以 PNG 写入剪贴板；html 没有可用的剪贴板实现。
func (s *Session) NativePaste(ctx context.Context, content string, kind PasteType) error {
	var write func(Clipboard) error
	switch kind {
	case "", PasteText:
		write = func(c Clipboard) error { return c.WriteText(content) }
	case PasteBase64Image:
		data, err := decodeImage(content)
		if err != nil {
			return err
		}
		write = func(c Clipboard) error { return c.WriteImage(data) }
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedPaste, kind)
	}

	s.board.mu.Lock()
	defer s.board.mu.Unlock()
	if err := write(s.board.clip); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	if err := s.page.BringToFront(); err != nil {
		return err
	}
	logger.Debug(ctx, "Session %s: pasting %s content", s.ID, kind)
	return s.page.Keyboard().Press("Meta+v")
}

// RunInstructions 在页面上执行一个指令程序
func (s *Session) RunInstructions(ctx context.Context, program locator.Program) (locator.Result, error) {
	return s.engine.Run(ctx, locator.PageRoot(s.page), program)
}

// AddInterceptor 按 URL 子串注册拦截器，同一个 pattern 只能注册一次
func (s *Session) AddInterceptor(ctx context.Context, pattern string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ic := range s.interceptors {
		if ic.pattern == pattern {
			return "", ErrInterceptorExists
		}
	}

	ic := &interceptor{id: uuid.NewString(), pattern: pattern}
	if err := s.store.SaveInterceptor(&models.InterceptorRecord{
		ID:         ic.id,
		SessionID:  s.ID,
		URLPattern: pattern,
	}); err != nil {
		return "", fmt.Errorf("save interceptor: %w", err)
	}
	ic.active.Store(true)
	s.listen(ic)
	s.interceptors = append(s.interceptors, ic)

	logger.Info(ctx, "Session %s: interceptor %s added for %q", s.ID, ic.id, pattern)
	return ic.id, nil
}

// InterceptorResponses 返回拦截器收集到的响应
func (s *Session) InterceptorResponses(ctx context.Context, id string) (*models.InterceptorResponse, error) {
	s.mu.Lock()
	ic := s.findLocked(id)
	s.mu.Unlock()
	if ic == nil {
		return nil, ErrInterceptorNotFound
	}

	entries, err := s.store.ListInterceptorResponses(id)
	if err != nil {
		return nil, err
	}
	return &models.InterceptorResponse{ID: ic.id, URL: ic.pattern, Responses: entries}, nil
}

func (s *Session) RemoveInterceptor(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, ic := range s.interceptors {
		if ic.id != id {
			continue
		}
		ic.active.Store(false)
		s.interceptors = append(s.interceptors[:i], s.interceptors[i+1:]...)
		return s.store.DeleteInterceptor(id)
	}
	return ErrInterceptorNotFound
}

func (s *Session) RemoveAllInterceptors(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeAllLocked()
}

func (s *Session) removeAllLocked() error {
	var firstErr error
	for _, ic := range s.interceptors {
		ic.active.Store(false)
		if err := s.store.DeleteInterceptor(ic.id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.interceptors = nil
	return firstErr
}

func (s *Session) findLocked(id string) *interceptor {
	for _, ic := range s.interceptors {
		if ic.id == id {
			return ic
		}
	}
	return nil
}

// close 停用所有拦截器并关闭页面
func (s *Session) close() error {
	s.mu.Lock()
	for _, ic := range s.interceptors {
		ic.active.Store(false)
	}
	s.interceptors = nil
	s.mu.Unlock()
	return s.page.Close()
}
