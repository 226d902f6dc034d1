package logger

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// 环境变量名
const (
	EnvLevel     = "SLP_LOG_LEVEL"
	EnvFormat    = "SLP_LOG_FORMAT"
	EnvAddSource = "SLP_LOG_ADD_SOURCE"
)

// Format 日志输出格式
type Format int

const (
	// FormatText 文本格式（默认）
	FormatText Format = iota
	// FormatJSON JSON 格式
	FormatJSON
)

// Config 日志配置
type Config struct {
	// DefaultLevel 默认日志级别
	DefaultLevel slog.Level

	// SubsystemLevels 各子系统的日志级别
	SubsystemLevels map[string]slog.Level

	// Format 输出格式
	Format Format

	// AddSource 是否输出源码位置
	AddSource bool
}

// LevelForSubsystem 获取子系统的日志级别
//
// 先精确匹配，再按 "." 逐级向上匹配父子系统。
func (c *Config) LevelForSubsystem(subsystem string) slog.Level {
	for name := subsystem; name != ""; {
		if level, ok := c.SubsystemLevels[name]; ok {
			return level
		}
		i := strings.LastIndexByte(name, '.')
		if i < 0 {
			break
		}
		name = name[:i]
	}
	return c.DefaultLevel
}

var (
	configCache *Config
	configOnce  sync.Once
)

// ConfigFromEnv 从环境变量解析配置（结果缓存）
func ConfigFromEnv() *Config {
	configOnce.Do(func() {
		configCache = ParseConfig(os.Getenv(EnvLevel), os.Getenv(EnvFormat), os.Getenv(EnvAddSource))
	})
	return configCache
}

// ParseConfig 解析级别、格式与源码位置配置
//
// 级别格式: subsystem=level,subsystem=level,defaultLevel
func ParseConfig(levelStr, formatStr, addSourceStr string) *Config {
	cfg := &Config{
		DefaultLevel:    slog.LevelInfo,
		SubsystemLevels: make(map[string]slog.Level),
		Format:          FormatText,
	}

	for _, part := range strings.Split(levelStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if name, lvl, ok := strings.Cut(part, "="); ok {
			if level, ok := parseLevel(lvl); ok {
				cfg.SubsystemLevels[strings.TrimSpace(name)] = level
			}
			continue
		}
		if level, ok := parseLevel(part); ok {
			cfg.DefaultLevel = level
		}
	}

	if strings.EqualFold(strings.TrimSpace(formatStr), "json") {
		cfg.Format = FormatJSON
	}
	cfg.AddSource = addSourceStr == "true" || addSourceStr == "1"
	return cfg
}

func parseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

// ResetConfig 重置配置缓存（仅用于测试）
func ResetConfig() {
	configOnce = sync.Once{}
	configCache = nil
}
