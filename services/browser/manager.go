package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bromato/bromato/config"
	"github.com/bromato/bromato/pkg/logger"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/playwright-community/playwright-go"
)

// Manager 浏览器管理器。
// rod 负责启动带持久化用户目录的 Chrome，页面操作全部通过 playwright 的 CDP 连接完成。
type Manager struct {
	config *config.BrowserConfig

	mu        sync.Mutex
	launcher  *launcher.Launcher // 仅本地模式
	rod       *rod.Browser
	pw        *playwright.Playwright
	browser   playwright.Browser
	context   playwright.BrowserContext
	isRunning bool
	startTime time.Time
}

// NewManager 创建浏览器管理器
func NewManager(cfg *config.BrowserConfig) *Manager {
	return &Manager{config: cfg}
}

func (m *Manager) isRemote() bool {
	return m.config.ControlURL != ""
}

// Start 启动（或连接）浏览器并建立 playwright 连接
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isRunning {
		return fmt.Errorf("browser is already running")
	}

	url := m.config.ControlURL
	if m.isRemote() {
		logger.Info(ctx, "Using remote Chrome browser, control URL: %s", url)
	} else {
		l, err := m.newLauncher(ctx)
		if err != nil {
			return err
		}

		logger.Info(ctx, "Starting browser process...")
		url, err = l.Launch()
		if err != nil {
			logger.Error(ctx, "Failed to start browser: %v", err)
			if strings.Contains(err.Error(), "already") {
				return fmt.Errorf("Chrome is already running with user data directory %s, close it and try again", m.config.UserDataDir)
			}
			return fmt.Errorf("failed to start browser: %w", err)
		}
		m.launcher = l
		logger.Info(ctx, "Browser control URL: %s", url)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		m.killLocked(ctx)
		return fmt.Errorf("failed to connect browser: %w", err)
	}
	m.rod = browser

	version, err := browser.Version()
	if err != nil {
		logger.Warn(ctx, "Failed to get browser version: %v", err)
	} else {
		logger.Info(ctx, "Browser product: %s, User-Agent: %s", version.Product, version.UserAgent)
	}

	// 原生粘贴需要剪贴板权限，否则页面会弹出授权请求
	grant := &proto.BrowserGrantPermissions{
		Permissions: []proto.BrowserPermissionType{
			proto.BrowserPermissionTypeClipboardReadWrite,
			proto.BrowserPermissionTypeClipboardSanitizedWrite,
		},
	}
	if err := grant.Call(browser); err != nil {
		logger.Warn(ctx, "Failed to grant clipboard permissions: %v", err)
	}

	if err := m.connectPlaywright(ctx, url); err != nil {
		m.killLocked(ctx)
		return err
	}

	m.isRunning = true
	m.startTime = time.Now()
	logger.Info(ctx, "Browser started successfully")
	return nil
}

func (m *Manager) newLauncher(ctx context.Context) (*launcher.Launcher, error) {
	logger.Info(ctx, "Headless mode: %v", m.config.Headless)

	l := launcher.New().
		Headless(m.config.Headless).
		Devtools(false).
		Leakless(false)

	for _, arg := range m.config.LaunchArgs {
		name, value := parseLaunchArg(arg)
		if value == "" {
			l = l.Set(name)
		} else {
			l = l.Set(name, value)
		}
	}

	if m.config.BinPath != "" {
		l = l.Bin(m.config.BinPath)
		logger.Info(ctx, "Using browser path: %s", m.config.BinPath)
	}

	if dir := m.config.UserDataDir; dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create user data directory: %w", err)
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			abs = dir
		}
		l = l.UserDataDir(abs)
		logger.Info(ctx, "Using user data directory: %s", abs)
	} else {
		logger.Warn(ctx, "User data directory not configured, login state will not be saved")
	}

	return l, nil
}

// parseLaunchArg 把 "--name=value" 形式的启动参数拆成 flag 和值
func parseLaunchArg(arg string) (flags.Flag, string) {
	arg = strings.TrimPrefix(arg, "--")
	if name, value, ok := strings.Cut(arg, "="); ok {
		return flags.Flag(name), value
	}
	return flags.Flag(arg), ""
}

func (m *Manager) connectPlaywright(ctx context.Context, url string) error {
	// 浏览器由 rod 提供，只需要 playwright 的 driver
	opts := &playwright.RunOptions{SkipInstallBrowsers: true}
	if err := playwright.Install(opts); err != nil {
		return fmt.Errorf("install playwright driver: %w", err)
	}
	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("start playwright: %w", err)
	}

	browser, err := pw.Chromium.ConnectOverCDP(url)
	if err != nil {
		pw.Stop()
		return fmt.Errorf("connect over CDP: %w", err)
	}

	var bctx playwright.BrowserContext
	if contexts := browser.Contexts(); len(contexts) > 0 {
		// 持久化用户目录对应默认上下文
		bctx = contexts[0]
	} else {
		bctx, err = browser.NewContext()
		if err != nil {
			pw.Stop()
			return fmt.Errorf("create browser context: %w", err)
		}
	}

	if m.config.Stealth {
		if err := bctx.AddInitScript(playwright.Script{Content: playwright.String(stealth.JS)}); err != nil {
			logger.Warn(ctx, "Failed to install stealth script: %v", err)
		} else {
			logger.Info(ctx, "Stealth script installed")
		}
	}

	m.pw = pw
	m.browser = browser
	m.context = bctx
	return nil
}

// ShowDashboard 在第一个标签页中渲染服务信息页
func (m *Manager) ShowDashboard(ctx context.Context, info DashboardInfo) error {
	m.mu.Lock()
	bctx := m.context
	m.mu.Unlock()
	if bctx == nil {
		return fmt.Errorf("browser is not running")
	}

	content, err := renderDashboard(info)
	if err != nil {
		return err
	}

	var page playwright.Page
	if pages := bctx.Pages(); len(pages) > 0 {
		page = pages[0]
	} else if page, err = bctx.NewPage(); err != nil {
		return fmt.Errorf("open dashboard page: %w", err)
	}
	if err := page.SetContent(content); err != nil {
		return fmt.Errorf("set dashboard content: %w", err)
	}
	logger.Info(ctx, "Dashboard rendered for %s", info.URL)
	return nil
}

// NewPage 在浏览器上下文中打开新页面，供会话管理器使用
func (m *Manager) NewPage() (playwright.Page, error) {
	m.mu.Lock()
	bctx := m.context
	m.mu.Unlock()
	if bctx == nil {
		return nil, fmt.Errorf("browser is not running")
	}
	return bctx.NewPage()
}

func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isRunning
}

// Status 返回浏览器运行状态
func (m *Manager) Status() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := map[string]interface{}{
		"is_running": m.isRunning,
		"remote":     m.isRemote(),
	}
	if m.isRunning {
		status["start_time"] = m.startTime
		status["uptime"] = time.Since(m.startTime).String()
	}
	return status
}

// Stop 断开 playwright 并结束本地启动的浏览器进程
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isRunning {
		return fmt.Errorf("browser is not running")
	}

	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			logger.Warn(ctx, "Error when closing playwright connection: %v", err)
		}
	}
	if m.pw != nil {
		if err := m.pw.Stop(); err != nil {
			logger.Warn(ctx, "Error when stopping playwright: %v", err)
		}
	}
	m.killLocked(ctx)

	m.pw = nil
	m.browser = nil
	m.context = nil
	m.isRunning = false
	logger.Info(ctx, "Browser stopped")
	return nil
}

// killLocked 关闭本地浏览器进程。
// 不调用 launcher.Cleanup()，它会删除用户数据目录。
func (m *Manager) killLocked(ctx context.Context) {
	if m.isRemote() {
		m.rod = nil
		return
	}
	if m.rod != nil {
		if err := m.rod.Close(); err != nil {
			logger.Debug(ctx, "Error when closing browser: %v", err)
		}
		m.rod = nil
	}
	if m.launcher != nil {
		m.launcher.Kill()
		m.launcher = nil
		logger.Info(ctx, "Browser process terminated")
	}
}
