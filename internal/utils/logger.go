package utils

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	baseOnce sync.Once
	base     *logrus.Logger
)

func baseLogger() *logrus.Logger {
	baseOnce.Do(func() {
		base = logrus.New()
		base.SetOutput(os.Stderr)
		base.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05",
		})
		base.SetLevel(logrus.InfoLevel)
		if os.Getenv("DEBUG") == "true" {
			base.SetLevel(logrus.DebugLevel)
		}
	})
	return base
}

// SetOutput 设置日志输出，标准输出留给报表
func SetOutput(w io.Writer) {
	baseLogger().SetOutput(w)
}

// SetVerbose 打开或关闭调试日志
func SetVerbose(verbose bool) {
	if verbose {
		baseLogger().SetLevel(logrus.DebugLevel)
		return
	}
	if os.Getenv("DEBUG") != "true" {
		baseLogger().SetLevel(logrus.InfoLevel)
	}
}

// Logger 按组件命名的日志器
type Logger struct {
	entry *logrus.Entry
}

func NewLogger(name string) *Logger {
	return &Logger{entry: baseLogger().WithField("component", name)}
}

// With 返回附带额外字段的日志器
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}
