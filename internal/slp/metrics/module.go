package metrics

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-slp/config"
)

// Config 指标配置
type Config struct {
	// Enabled 是否启用流量统计
	Enabled bool

	// Namespace Prometheus 命名空间
	Namespace string

	// PeerIdleTimeout 对端统计在无活动多久后被清理
	PeerIdleTimeout time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		Namespace:       "slp",
		PeerIdleTimeout: 10 * time.Minute,
	}
}

// ConfigFromUnified 从统一配置创建指标配置
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		return DefaultConfig()
	}
	def := DefaultConfig()
	c := Config{
		Enabled:         cfg.Metrics.Enabled,
		Namespace:       cfg.Metrics.Namespace,
		PeerIdleTimeout: def.PeerIdleTimeout,
	}
	if c.Namespace == "" {
		c.Namespace = def.Namespace
	}
	return c
}

// Params Metrics 依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config        `optional:"true"`
	Clock      clock.Clock           `optional:"true"`
	Registerer prometheus.Registerer `optional:"true"`
}

// Module 是 metrics 的 Fx 模块
var Module = fx.Module("slp.metrics",
	fx.Provide(NewReporterFromParams),
	fx.Invoke(registerCollector),
	fx.Invoke(startIdleTrim),
)

// NewReporterFromParams 从参数创建 Reporter，未启用时返回 NopReporter
func NewReporterFromParams(p Params) Reporter {
	cfg := ConfigFromUnified(p.UnifiedCfg)
	if !cfg.Enabled {
		return NopReporter{}
	}
	return NewTrafficCounter(p.Clock)
}

func registerCollector(p Params, r Reporter) error {
	if p.Registerer == nil {
		return nil
	}
	if _, ok := r.(NopReporter); ok {
		return nil
	}
	return p.Registerer.Register(NewCollector(ConfigFromUnified(p.UnifiedCfg).Namespace, r))
}

// startIdleTrim 周期性清理长时间无活动的对端统计
func startIdleTrim(lc fx.Lifecycle, p Params, r Reporter) {
	tc, ok := r.(*TrafficCounter)
	if !ok {
		return
	}
	idle := ConfigFromUnified(p.UnifiedCfg).PeerIdleTimeout
	if idle <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ticker := tc.clock.Ticker(idle)
			go func() {
				defer close(done)
				defer ticker.Stop()
				tc.trimLoop(ctx, ticker, idle)
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			<-done
			return nil
		},
	})
}
