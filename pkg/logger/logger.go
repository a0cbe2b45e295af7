package logger

import (
	"context"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger interface {
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Debug(ctx context.Context, msg string, args ...any)
}

type logrusLogger struct {
	logger *logrus.Logger
}

// callerName 返回调用 Info/Warn 等方法的函数名
func callerName(skip int) string {
	pc := make([]uintptr, 1)
	if runtime.Callers(skip, pc) == 0 {
		return "unknown"
	}
	fn := runtime.FuncForPC(pc[0])
	if fn == nil {
		return "unknown"
	}
	name := fn.Name()
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return name
}

// entry 带上 trace_id 和调用者
func (l *logrusLogger) entry(ctx context.Context) *logrus.Entry {
	if ctx == nil {
		ctx = context.Background()
	}
	e := l.logger.WithContext(ctx)
	if traceID := getTraceID(ctx); traceID != "" {
		e = e.WithField("trace_id", traceID)
	}
	return e
}

// 调用栈：runtime.Callers -> callerName -> logf -> Warn 等方法 -> 包级函数或业务代码
func (l *logrusLogger) logf(ctx context.Context, level logrus.Level, skip int, msg string, args []any) {
	if !l.logger.IsLevelEnabled(level) {
		return
	}
	args = append([]any{callerName(skip)}, args...)
	l.entry(ctx).Logf(level, "[%s] "+msg, args...)
}

func (l *logrusLogger) Warn(ctx context.Context, msg string, args ...any) {
	l.logf(ctx, logrus.WarnLevel, 4, msg, args)
}

func (l *logrusLogger) Error(ctx context.Context, msg string, args ...any) {
	l.logf(ctx, logrus.ErrorLevel, 4, msg, args)
}

func (l *logrusLogger) Info(ctx context.Context, msg string, args ...any) {
	l.logf(ctx, logrus.InfoLevel, 4, msg, args)
}

func (l *logrusLogger) Debug(ctx context.Context, msg string, args ...any) {
	l.logf(ctx, logrus.DebugLevel, 4, msg, args)
}

// defaultLogger 在 InitLogger 之前输出到 stderr，保证库代码可以直接使用包级函数
var defaultLogger = &logrusLogger{logger: newLogrus(logrus.InfoLevel, os.Stderr)}

type LoggerConfig struct {
	Level      string `json:"level,omitempty" toml:"level,omitempty"`
	File       string `json:"file,omitempty" toml:"file,omitempty"`
	MaxSize    int    `json:"max_size,omitempty" toml:"max_size,omitempty"`       // 单个日志文件最大大小(MB)，默认100MB
	MaxBackups int    `json:"max_backups,omitempty" toml:"max_backups,omitempty"` // 保留的旧日志文件数量，默认3个
	MaxAge     int    `json:"max_age,omitempty" toml:"max_age,omitempty"`         // 保留天数，默认7天
	Compress   bool   `json:"compress,omitempty" toml:"compress,omitempty"`
}

func newLogrus(level logrus.Level, out io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetLevel(level)
	// JSON 格式，方便按 trace_id 检索
	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetOutput(out)
	return log
}

// Writer 根据配置返回日志输出：配置了文件时同时写 stderr 和轮转文件
func (cfg *LoggerConfig) Writer() io.Writer {
	if cfg == nil || cfg.File == "" {
		return os.Stderr
	}
	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = 100
	}
	maxBackups := cfg.MaxBackups
	if maxBackups <= 0 {
		maxBackups = 3
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 7
	}
	return io.MultiWriter(os.Stderr, &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		MaxAge:     maxAge,
		Compress:   cfg.Compress,
	})
}

func InitLogger(cfg *LoggerConfig) {
	if cfg == nil {
		cfg = &LoggerConfig{}
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	defaultLogger = &logrusLogger{logger: newLogrus(level, cfg.Writer())}
}

// SetOutput 替换默认日志的输出，主要用于测试
func SetOutput(w io.Writer) {
	defaultLogger.logger.SetOutput(w)
}

// SetLevel 修改默认日志级别，无法解析时保持不变
func SetLevel(level string) {
	if lvl, err := logrus.ParseLevel(level); err == nil {
		defaultLogger.logger.SetLevel(lvl)
	}
}

func Warn(ctx context.Context, msg string, args ...any) {
	defaultLogger.logf(ctx, logrus.WarnLevel, 4, msg, args)
}

func Error(ctx context.Context, msg string, args ...any) {
	defaultLogger.logf(ctx, logrus.ErrorLevel, 4, msg, args)
}

func Info(ctx context.Context, msg string, args ...any) {
	defaultLogger.logf(ctx, logrus.InfoLevel, 4, msg, args)
}

func Debug(ctx context.Context, msg string, args ...any) {
	defaultLogger.logf(ctx, logrus.DebugLevel, 4, msg, args)
}

func GetDefaultLogger() Logger {
	return defaultLogger
}

type contextKey string

const traceIDKey contextKey = "trace_id"

// WithTraceID 将 trace_id 添加到 context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func getTraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if traceID, ok := ctx.Value(traceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// GetTraceID 从 context 中获取 trace_id
func GetTraceID(ctx context.Context) string {
	return getTraceID(ctx)
}
