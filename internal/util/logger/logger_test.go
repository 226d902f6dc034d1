package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetOutput_ExistingLogger(t *testing.T) {
	// 先创建 logger，再切换输出
	log := Logger("slp.test")

	buf := &bytes.Buffer{}
	SetOutput(buf)

	log.Info("after switch", "xid", 42)

	out := buf.String()
	assert.Contains(t, out, "after switch")
	assert.Contains(t, out, "xid=42")
	assert.Contains(t, out, "subsystem=slp.test")
}

func TestSetLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	SetOutput(buf)

	log := Logger("slp.level")
	SetLevel("slp.level", slog.LevelError)
	log.Warn("hidden")
	assert.Empty(t, buf.String())

	// With 派生的 logger 共享级别
	derived := log.With("peer", "10.0.0.1")
	SetLevel("slp.level", slog.LevelDebug)
	derived.Debug("visible")
	assert.Contains(t, buf.String(), "peer=10.0.0.1")
}

func TestParseConfig(t *testing.T) {
	cfg := ParseConfig("slp.transport=debug, slp=error ,warn", "JSON", "1")

	assert.Equal(t, slog.LevelWarn, cfg.DefaultLevel)
	assert.Equal(t, FormatJSON, cfg.Format)
	assert.True(t, cfg.AddSource)

	assert.Equal(t, slog.LevelDebug, cfg.LevelForSubsystem("slp.transport"))
	// 父子系统匹配
	assert.Equal(t, slog.LevelError, cfg.LevelForSubsystem("slp.knownda"))
	assert.Equal(t, slog.LevelWarn, cfg.LevelForSubsystem("other"))
}

func TestParseConfig_Defaults(t *testing.T) {
	cfg := ParseConfig("", "", "")
	require.NotNil(t, cfg)
	assert.Equal(t, slog.LevelInfo, cfg.DefaultLevel)
	assert.Equal(t, FormatText, cfg.Format)
	assert.False(t, cfg.AddSource)
}

func TestDiscard(t *testing.T) {
	assert.False(t, Discard().Enabled(context.Background(), slog.LevelError))
}
