package session

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bromato/bromato/models"
	"github.com/bromato/bromato/pkg/logger"
	"github.com/playwright-community/playwright-go"
)

// interceptor 收集 URL 包含 pattern 的 2xx 响应。
// playwright 的监听器无法单独移除，停用后监听器仍挂在页面上但不再记录。
type interceptor struct {
	id      string
	pattern string
	active  atomic.Bool
}

// matches URL 包含 pattern 且状态码为 2xx；空 pattern 匹配全部
func matches(pattern, url string, status int) bool {
	if pattern != "" && !strings.Contains(url, pattern) {
		return false
	}
	return status >= 200 && status < 300
}

// decodeBody 能解析为 JSON 时返回解析结果，否则返回原始文本
func decodeBody(body []byte) any {
	var v any
	if err := json.Unmarshal(body, &v); err == nil {
		return v
	}
	return string(body)
}

func (s *Session) listen(ic *interceptor) {
	s.page.OnResponse(func(resp playwright.Response) {
		if !ic.active.Load() {
			return
		}
		// 在监听器里等待响应完成会阻塞事件分发
		go s.capture(ic, resp)
	})
}

func (s *Session) capture(ic *interceptor, resp playwright.Response) {
	ctx := context.Background()
	if err := resp.Finished(); err != nil {
		return
	}
	if !ic.active.Load() || !matches(ic.pattern, resp.URL(), resp.Status()) {
		return
	}

	body, err := resp.Body()
	if err != nil {
		logger.Debug(ctx, "Interceptor %s: failed to read body of %s: %v", ic.id, resp.URL(), err)
		return
	}

	entry := models.ResponseEntry{
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		URL:       resp.URL(),
		Status:    resp.Status(),
		Data:      decodeBody(body),
	}
	if err := s.store.AppendInterceptorResponse(ic.id, entry); err != nil {
		logger.Warn(ctx, "Interceptor %s: failed to store response from %s: %v", ic.id, entry.URL, err)
	}
}
