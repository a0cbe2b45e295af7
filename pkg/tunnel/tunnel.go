package tunnel

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrTunnelStart 隧道启动失败或没有返回公网地址
var ErrTunnelStart = errors.New("failed to start tunnel")

// Strategy 隧道实现，目前只有 localtunnel
type Strategy interface {
	Start(ctx context.Context, port int, subdomain string) (string, error)
	Stop() error
}

// Tunnel 把本地端口暴露到公网
type Tunnel struct {
	Port      int
	Subdomain string

	strategy Strategy
	mu       sync.RWMutex
	url      string
}

func New(strategy Strategy, port int, subdomain string) *Tunnel {
	return &Tunnel{strategy: strategy, Port: port, Subdomain: subdomain}
}

// Start 启动隧道并返回公网地址
func (t *Tunnel) Start(ctx context.Context) (string, error) {
	url, err := t.strategy.Start(ctx, t.Port, t.Subdomain)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTunnelStart, err)
	}
	if url == "" {
		return "", ErrTunnelStart
	}

	t.mu.Lock()
	t.url = url
	t.mu.Unlock()
	return url, nil
}

// Stop 关闭隧道，未启动时直接返回
func (t *Tunnel) Stop() error {
	err := t.strategy.Stop()
	t.mu.Lock()
	t.url = ""
	t.mu.Unlock()
	return err
}

// URL 当前公网地址，未启动时为空
func (t *Tunnel) URL() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.url
}
