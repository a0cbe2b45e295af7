package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/bromato/bromato/api"
	"github.com/bromato/bromato/config"
	"github.com/bromato/bromato/pkg/logger"
	"github.com/bromato/bromato/pkg/tunnel"
	"github.com/bromato/bromato/services/browser"
	"github.com/bromato/bromato/services/session"
	"github.com/bromato/bromato/storage"
)

// 构建信息变量，通过 LDFLAGS 注入
var (
	Version   = "v0.1.0"
	BuildTime = ""
	GoVersion = ""
)

func main() {
	port := flag.String("port", "", "Server port (default: 3025, a free port is used when it is taken)")
	host := flag.String("host", "", "Server host (default: 127.0.0.1)")
	subdomain := flag.String("subdomain", "", "Subdomain requested from the tunnel server")
	userData := flag.String("userdata", "", "Path to the user data directory for browser sessions")
	configPath := flag.String("config", "config.toml", "Path to config file")
	version := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *version {
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Go Version: %s\n", GoVersion)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("Failed to load config file, using default config: %v", err)
		cfg = config.Default()
	}

	// 优先级: 命令行参数 > 环境变量 > 配置文件
	cfg.Apply(config.Overrides{
		Port:        *port,
		Host:        *host,
		Subdomain:   *subdomain,
		UserDataDir: *userData,
	})

	logger.InitLogger(cfg.Log)
	ctx := context.Background()

	if err := cfg.EnsureDirs(); err != nil {
		log.Fatalf("Failed to create data directories: %v", err)
	}

	serverPort, err := cfg.ResolvePort()
	if err != nil {
		log.Fatalf("Failed to resolve server port: %v", err)
	}

	db, err := storage.NewBoltDB(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()
	logger.Info(ctx, "Database initialized: %s", cfg.Database.Path)

	resetStaleSessions(ctx, db)

	publicURL := fmt.Sprintf("http://localhost:%d", serverPort)
	var tun *tunnel.Tunnel
	if cfg.Tunnel.Enabled {
		tun = tunnel.New(tunnel.NewLocalTunnel(cfg.Tunnel.Host), serverPort, cfg.Tunnel.Subdomain)
		url, err := tun.Start(ctx)
		if err != nil {
			logger.Warn(ctx, "Failed to start tunnel, serving locally only: %v", err)
			tun = nil
		} else {
			publicURL = url
		}
	}

	browserManager := browser.NewManager(cfg.Browser)
	if err := browserManager.Start(ctx); err != nil {
		if tun != nil {
			tun.Stop()
		}
		log.Fatalf("Failed to start browser: %v", err)
	}
	if err := browserManager.ShowDashboard(ctx, browser.DashboardInfo{Port: serverPort, URL: publicURL}); err != nil {
		logger.Warn(ctx, "Failed to render dashboard: %v", err)
	}

	sessions := session.NewManager(browserManager, db, cfg.Uploads.Dir)

	// /shutdown 只发信号，真正的关机在主 goroutine 中进行
	shutdownReq := make(chan struct{}, 1)
	handler := api.NewHandler(sessions, func() {
		select {
		case shutdownReq <- struct{}{}:
		default:
		}
	})
	router := api.SetupRouter(handler, cfg.Debug)

	srv := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, strconv.Itoa(serverPort)),
		Handler: router,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	logger.Info(ctx, "Server is running on port %d", serverPort)
	logger.Info(ctx, "Server URL: %s", publicURL)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		logger.Info(ctx, "Received exit signal: %v", sig)
	case <-shutdownReq:
		logger.Info(ctx, "Shutdown requested")
	}

	shutdown(ctx, tun, sessions, browserManager, srv)
}

// resetStaleSessions 上次运行留下的会话记录对应的页面已不存在
func resetStaleSessions(ctx context.Context, db *storage.BoltDB) {
	stale, err := db.ListSessions()
	if err != nil {
		logger.Warn(ctx, "Failed to list stale sessions: %v", err)
		return
	}
	if len(stale) == 0 {
		return
	}
	for _, s := range stale {
		logger.Debug(ctx, "Dropping stale session %s (last url: %s)", s.ID, s.URL)
	}
	if err := db.ResetSessions(); err != nil {
		logger.Warn(ctx, "Failed to reset stale sessions: %v", err)
		return
	}
	logger.Info(ctx, "Dropped %d sessions from the previous run", len(stale))
}

// shutdown 依次关闭隧道、会话、浏览器和 HTTP 服务
func shutdown(ctx context.Context, tun *tunnel.Tunnel, sessions *session.Manager, browserManager *browser.Manager, srv *http.Server) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	logger.Info(ctx, "Shutting down...")
	if tun != nil {
		if err := tun.Stop(); err != nil {
			logger.Warn(ctx, "Failed to stop tunnel: %v", err)
		} else {
			logger.Info(ctx, "Tunnel stopped")
		}
	}

	sessions.DestroyAll(ctx)
	logger.Info(ctx, "Sessions destroyed")

	if browserManager.IsRunning() {
		if err := browserManager.Stop(ctx); err != nil {
			logger.Warn(ctx, "Failed to close browser: %v", err)
		} else {
			logger.Info(ctx, "Browser closed")
		}
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn(ctx, "Failed to stop server gracefully: %v", err)
	} else {
		logger.Info(ctx, "Server stopped")
	}
	logger.Info(ctx, "Shutdown complete")
}
