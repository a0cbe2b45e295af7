package models

import (
	"time"
)

// SessionRecord 会话的持久化记录
type SessionRecord struct {
	ID        string    `json:"id"`
	URL       string    `json:"url,omitempty"` // 最近一次导航的地址
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InterceptorRecord 拦截器的持久化记录
type InterceptorRecord struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	URLPattern string    `json:"url_pattern"` // URL 子串匹配
	CreatedAt  time.Time `json:"created_at"`
}

// ResponseEntry 拦截到的一条响应
type ResponseEntry struct {
	Timestamp string `json:"timestamp"` // RFC3339 UTC
	URL       string `json:"url"`
	Status    int    `json:"status"`
	// Data JSON 响应解析后的值，否则为原始文本
	Data any `json:"data"`
}

// InterceptorResponse 一个拦截器及其收集到的全部响应
type InterceptorResponse struct {
	ID        string          `json:"id"`
	URL       string          `json:"url"`
	Responses []ResponseEntry `json:"responses"`
}
