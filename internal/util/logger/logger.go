// Package logger 提供 go-slp 的统一日志系统
//
// 基于标准库 log/slog，按子系统分级：
//
//	var logger = logger.Logger("slp.transport")
//
//	logger.Debug("datagram sent", "xid", xid, "group", addr)
//
// 环境变量:
//
//	# transport 为 debug，其余为 warn
//	SLP_LOG_LEVEL=slp.transport=debug,warn
//
//	# JSON 输出
//	SLP_LOG_FORMAT=json
package logger

import (
	"io"
	"log/slog"
	"sync"
)

var (
	loggers  sync.Map // map[string]*slog.Logger
	handlers sync.Map // map[string]*subsystemHandler
)

// Logger 获取指定子系统的 Logger
//
// 同一子系统多次调用返回同一实例，级别由 SLP_LOG_LEVEL 决定。
func Logger(subsystem string) *slog.Logger {
	if l, ok := loggers.Load(subsystem); ok {
		return l.(*slog.Logger)
	}

	cfg := ConfigFromEnv()
	h := newHandler(subsystem, cfg.LevelForSubsystem(subsystem), cfg.Format, cfg.AddSource)

	actual, loaded := loggers.LoadOrStore(subsystem, slog.New(h))
	if !loaded {
		handlers.Store(subsystem, h)
	}
	return actual.(*slog.Logger)
}

// SetLevel 运行时调整子系统日志级别
func SetLevel(subsystem string, level slog.Level) {
	if h, ok := handlers.Load(subsystem); ok {
		h.(*subsystemHandler).setLevel(level)
	}
}

// SetGlobalLevel 调整所有已创建子系统的日志级别
func SetGlobalLevel(level slog.Level) {
	handlers.Range(func(_, value any) bool {
		value.(*subsystemHandler).setLevel(level)
		return true
	})
}

// SetOutput 设置全局日志输出目标
//
// 已创建的 Logger 同样生效。
func SetOutput(w io.Writer) {
	outputMu.Lock()
	output = w
	outputMu.Unlock()
}

// Discard 返回丢弃所有日志的 Logger（测试用）
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}
