package browser

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
)

//go:embed templates/dashboard.html
var dashboardHTML string

var dashboardTmpl = template.Must(template.New("dashboard").Parse(dashboardHTML))

// DashboardInfo 首页展示的服务信息
type DashboardInfo struct {
	Port int
	// URL 对外地址，隧道未启用时为本地地址
	URL string
}

func renderDashboard(info DashboardInfo) (string, error) {
	var buf bytes.Buffer
	err := dashboardTmpl.Execute(&buf, struct {
		DashboardInfo
		ShutdownURL string
	}{
		DashboardInfo: info,
		ShutdownURL:   fmt.Sprintf("http://localhost:%d/shutdown", info.Port),
	})
	if err != nil {
		return "", fmt.Errorf("render dashboard: %w", err)
	}
	return buf.String(), nil
}
