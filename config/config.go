package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/bromato/bromato/pkg/logger"
	"github.com/pelletier/go-toml/v2"
)

// DefaultPort 未指定端口时优先尝试的端口
const DefaultPort = 3025

type Config struct {
	Debug    bool                 `json:"debug" toml:"debug"`
	Server   *ServerConfig        `json:"server" toml:"server"`
	Browser  *BrowserConfig       `json:"browser" toml:"browser"`
	Database *DatabaseConfig      `json:"database" toml:"database"`
	Uploads  *UploadsConfig       `json:"uploads" toml:"uploads"`
	Tunnel   *TunnelConfig        `json:"tunnel" toml:"tunnel"`
	Log      *logger.LoggerConfig `json:"log,omitempty" toml:"log,omitempty"`
}

type ServerConfig struct {
	// Port 期望端口，被占用时退回到一个空闲端口
	Port string `json:"port" toml:"port"`
	Host string `json:"host" toml:"host"`
}

type BrowserConfig struct {
	BinPath     string `json:"bin_path" toml:"bin_path"`
	UserDataDir string `json:"user_data_dir" toml:"user_data_dir"`
	Headless    bool   `json:"headless" toml:"headless"`
	Stealth     bool   `json:"stealth" toml:"stealth"`
	// ControlURL 非空时连接已运行的浏览器，不再自行启动
	ControlURL string   `json:"control_url,omitempty" toml:"control_url,omitempty"`
	LaunchArgs []string `json:"launch_args,omitempty" toml:"launch_args,omitempty"`
}

type DatabaseConfig struct {
	Path string `json:"path" toml:"path"`
}

type UploadsConfig struct {
	Dir string `json:"dir" toml:"dir"`
}

type TunnelConfig struct {
	Enabled   bool   `json:"enabled" toml:"enabled"`
	Host      string `json:"host" toml:"host"`
	Subdomain string `json:"subdomain,omitempty" toml:"subdomain,omitempty"`
}

// Overrides 命令行参数，非零值覆盖配置文件和环境变量
type Overrides struct {
	Port        string
	Host        string
	Subdomain   string
	UserDataDir string
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server: &ServerConfig{
			Port: strconv.Itoa(DefaultPort),
			Host: "127.0.0.1",
		},
		Browser: &BrowserConfig{
			BinPath:     detectChrome(),
			UserDataDir: defaultUserDataDir(),
			Headless:    isHeadlessEnvironment(),
			Stealth:     true,
			LaunchArgs:  defaultLaunchArgs(),
		},
		Database: &DatabaseConfig{
			Path: filepath.Join(homeDir(), ".bromato", "bromato.db"),
		},
		Uploads: &UploadsConfig{
			Dir: filepath.Join(os.TempDir(), "bromato-uploads"),
		},
		Tunnel: &TunnelConfig{
			Enabled: true,
			Host:    "https://localtunnel.me",
		},
		Log: &logger.LoggerConfig{
			Level: "info",
		},
	}
}

// Load 读取 TOML 配置；文件不存在时返回默认配置并写回到 path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := Default()
		if out, err := toml.Marshal(cfg); err == nil {
			if dir := filepath.Dir(path); dir != "" {
				_ = os.MkdirAll(dir, 0o755)
			}
			_ = os.WriteFile(path, out, 0o644)
		}
		cfg.applyEnv()
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.fillDefaults()
	cfg.applyEnv()
	return cfg, nil
}

// fillDefaults 配置文件中整段缺失或置空的字段回落到默认值
func (c *Config) fillDefaults() {
	def := Default()
	if c.Server == nil {
		c.Server = def.Server
	}
	if c.Server.Port == "" {
		c.Server.Port = def.Server.Port
	}
	if c.Server.Host == "" {
		c.Server.Host = def.Server.Host
	}
	if c.Browser == nil {
		c.Browser = def.Browser
	}
	if c.Browser.UserDataDir == "" {
		c.Browser.UserDataDir = def.Browser.UserDataDir
	}
	if c.Browser.BinPath == "" {
		c.Browser.BinPath = def.Browser.BinPath
	}
	if c.Browser.LaunchArgs == nil {
		c.Browser.LaunchArgs = def.Browser.LaunchArgs
	}
	if c.Database == nil || c.Database.Path == "" {
		c.Database = def.Database
	}
	if c.Uploads == nil || c.Uploads.Dir == "" {
		c.Uploads = def.Uploads
	}
	if c.Tunnel == nil {
		c.Tunnel = def.Tunnel
	}
	if c.Tunnel.Host == "" {
		c.Tunnel.Host = def.Tunnel.Host
	}
	if c.Log == nil {
		c.Log = def.Log
	}
}

// applyEnv 环境变量覆盖配置文件
func (c *Config) applyEnv() {
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Port = port
	}
	if host := os.Getenv("HOST"); host != "" {
		c.Server.Host = host
	}
	if bin := os.Getenv("CHROME_BIN_PATH"); bin != "" {
		c.Browser.BinPath = bin
	}
}

// Apply 命令行参数优先级最高
func (c *Config) Apply(o Overrides) {
	if o.Port != "" {
		c.Server.Port = o.Port
	}
	if o.Host != "" {
		c.Server.Host = o.Host
	}
	if o.Subdomain != "" {
		c.Tunnel.Subdomain = o.Subdomain
	}
	if o.UserDataDir != "" {
		c.Browser.UserDataDir = o.UserDataDir
	}
}

// EnsureDirs 创建用户数据目录和数据库所在目录
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.Browser.UserDataDir, filepath.Dir(c.Database.Path)} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ResolvePort 返回期望端口；端口不可用时返回系统分配的空闲端口
func (c *Config) ResolvePort() (int, error) {
	desired := DefaultPort
	if c.Server.Port != "" {
		p, err := strconv.Atoi(c.Server.Port)
		if err != nil || p < 0 || p > 65535 {
			return 0, fmt.Errorf("invalid port %q", c.Server.Port)
		}
		desired = p
	}
	if portFree(c.Server.Host, desired) {
		return desired, nil
	}
	return freePort(c.Server.Host)
}

func portFree(host string, port int) bool {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}

func freePort(host string) (int, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, fmt.Errorf("no free port: %w", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}

func homeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "."
}

func defaultLaunchArgs() []string {
	return []string{
		"disable-blink-features=AutomationControlled",
		"no-first-run",
		"no-default-browser-check",
	}
}

// isHeadlessEnvironment Linux 下没有图形界面时只能以 headless 模式启动
func isHeadlessEnvironment() bool {
	return runtime.GOOS == "linux" && os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == ""
}

func defaultUserDataDir() string {
	return filepath.Join(homeDir(), ".bromato", "browser-user-data")
}

// detectChrome 查找常见的 Chrome/Chromium 安装路径，找不到时交给 rod 自行下载
func detectChrome() string {
	commonPaths := []string{
		"/usr/bin/google-chrome",
		"/usr/bin/google-chrome-stable",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
		"C:\\Program Files\\Google\\Chrome\\Application\\chrome.exe",
		"C:\\Program Files (x86)\\Google\\Chrome\\Application\\chrome.exe",
	}
	for _, p := range commonPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
