package tunnel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bromato/bromato/pkg/logger"
	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"
)

// DefaultLocalTunnelHost 公共 localtunnel 服务
const DefaultLocalTunnelHost = "https://localtunnel.me"

// registration localtunnel 服务端分配的隧道信息
type registration struct {
	ID           string `json:"id"`
	Port         int    `json:"port"`
	MaxConnCount int    `json:"max_conn_count"`
	URL          string `json:"url"`
	Message      string `json:"message"`
}

// LocalTunnel 基于 localtunnel 协议的 Strategy：
// 先通过 HTTP 申请隧道，再保持 max_conn_count 条到服务端的 TCP 连接，每条连接转发到本地端口。
type LocalTunnel struct {
	Host   string
	Client *http.Client

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewLocalTunnel(host string) *LocalTunnel {
	if host == "" {
		host = DefaultLocalTunnelHost
	}
	return &LocalTunnel{
		Host:   host,
		Client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (l *LocalTunnel) Start(ctx context.Context, port int, subdomain string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return "", errors.New("tunnel already started")
	}

	reg, err := l.register(ctx, subdomain)
	if err != nil {
		return "", err
	}

	base, err := url.Parse(l.Host)
	if err != nil {
		return "", fmt.Errorf("invalid tunnel host %q: %w", l.Host, err)
	}
	remote := net.JoinHostPort(base.Hostname(), strconv.Itoa(reg.Port))
	local := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))

	conns := reg.MaxConnCount
	if conns <= 0 {
		conns = 1
	}

	runCtx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	for i := 0; i < conns; i++ {
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.keepAlive(runCtx, remote, local)
		}()
	}

	logger.Info(ctx, "Tunnel %s ready: %s -> %s (%d connections)", reg.ID, reg.URL, local, conns)
	return reg.URL, nil
}

func (l *LocalTunnel) Stop() error {
	l.mu.Lock()
	cancel := l.cancel
	l.cancel = nil
	l.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	l.wg.Wait()
	return nil
}

func (l *LocalTunnel) register(ctx context.Context, subdomain string) (*registration, error) {
	endpoint := strings.TrimRight(l.Host, "/") + "/?new"
	if subdomain != "" {
		endpoint = strings.TrimRight(l.Host, "/") + "/" + url.PathEscape(subdomain)
	}

	op := func() (*registration, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		resp, err := l.Client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		var reg registration
		if err := json.NewDecoder(resp.Body).Decode(&reg); err != nil {
			return nil, fmt.Errorf("decode tunnel registration: %w", err)
		}
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("tunnel server returned %d: %s", resp.StatusCode, reg.Message)
		}
		if resp.StatusCode != http.StatusOK || reg.URL == "" {
			return nil, backoff.Permanent(fmt.Errorf("tunnel server refused registration (%d): %s", resp.StatusCode, reg.Message))
		}
		return &reg, nil
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(5),
	)
}

// keepAlive 维持一条隧道连接，断开后重连，直到 ctx 取消
func (l *LocalTunnel) keepAlive(ctx context.Context, remote, local string) {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = 10 * time.Second

	for ctx.Err() == nil {
		start := time.Now()
		err := proxyOnce(ctx, remote, local)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Debug(ctx, "Tunnel connection %s closed: %v", remote, err)
		}

		wait := reconnectDelay(b, time.Since(start), err)
		if wait == 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// reconnectDelay 正常关闭的连接立即重连；出错时退避，存活超过最大间隔的连接先重置退避
func reconnectDelay(b *backoff.ExponentialBackOff, lived time.Duration, err error) time.Duration {
	if err == nil {
		b.Reset()
		return 0
	}
	if lived > b.MaxInterval {
		b.Reset()
	}
	return b.NextBackOff()
}

// proxyOnce 建立一对连接并双向转发，任一方向结束即关闭两端
func proxyOnce(ctx context.Context, remote, local string) error {
	var d net.Dialer
	remoteConn, err := d.DialContext(ctx, "tcp", remote)
	if err != nil {
		return fmt.Errorf("dial tunnel server: %w", err)
	}
	localConn, err := d.DialContext(ctx, "tcp", local)
	if err != nil {
		remoteConn.Close()
		return fmt.Errorf("dial local server: %w", err)
	}

	closeBoth := func() {
		remoteConn.Close()
		localConn.Close()
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		closeBoth()
	}()

	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(localConn, remoteConn)
		closeBoth()
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(remoteConn, localConn)
		closeBoth()
		return err
	})

	err = g.Wait()
	close(done)
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
