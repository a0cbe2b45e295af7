package session

import "errors"

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrInterceptorExists   = errors.New("interceptor for this URL pattern already exists")
	ErrInterceptorNotFound = errors.New("interceptor not found")
	// ErrUnsupportedPaste 剪贴板只支持纯文本和图片
	ErrUnsupportedPaste = errors.New("unsupported paste type")
	ErrInvalidPaste     = errors.New("invalid paste content")
)
