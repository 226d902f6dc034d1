package slp

import (
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-slp/config"
	"github.com/dep2p/go-slp/internal/slp/dhcp"
	"github.com/dep2p/go-slp/internal/slp/knownda"
	"github.com/dep2p/go-slp/internal/slp/metrics"
	"github.com/dep2p/go-slp/internal/slp/transport"
)

// buildFxApp 构建 Fx 应用
//
// 加载顺序（按依赖）：
//  1. 配置：*config.Config → *config.Properties
//  2. 指标：metrics.Reporter
//  3. 传输：*transport.Engine
//  4. KnownDA：*knownda.Cache
func buildFxApp(o *options, cfg *config.Config, dc *DiscoveryContext) (*fx.App, error) {
	// ════════════════════════════════════════════════════════════════════════
	// 1. 配置验证（前置）
	// ════════════════════════════════════════════════════════════════════════
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	modules := []fx.Option{
		fx.Supply(cfg),
		fx.Provide(provideProperties),
	}

	// ════════════════════════════════════════════════════════════════════════
	// 2. 可替换依赖（未设置时各模块使用默认实现）
	// ════════════════════════════════════════════════════════════════════════
	if o.network != nil {
		n := o.network
		modules = append(modules, fx.Provide(func() transport.Network { return n }))
	}
	if o.clock != nil {
		c := o.clock
		modules = append(modules, fx.Provide(func() clock.Clock { return c }))
	}
	if o.dhcp != nil {
		src := o.dhcp
		modules = append(modules, fx.Provide(func() dhcp.Source { return src }))
	}
	if o.registerer != nil {
		r := o.registerer
		modules = append(modules, fx.Provide(func() prometheus.Registerer { return r }))
	}

	// ════════════════════════════════════════════════════════════════════════
	// 3. 组件模块
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		metrics.Module,
		transport.Module,
		knownda.Module,
	)

	// ════════════════════════════════════════════════════════════════════════
	// 4. 用户扩展（Fx Options）
	// ════════════════════════════════════════════════════════════════════════
	if len(o.userFxOptions) > 0 {
		modules = append(modules, o.userFxOptions...)
	}

	// ════════════════════════════════════════════════════════════════════════
	// 5. 组件注入与 Fx 配置
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		fx.Invoke(injectComponents(dc)),
		// 禁用 Fx 日志输出（避免干扰用户日志）
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
	)

	return fx.New(modules...), nil
}

// provideProperties 按统一配置构建属性存储
func provideProperties(cfg *config.Config) (*config.Properties, error) {
	return cfg.NewProperties()
}

// componentParams DiscoveryContext 组件注入参数
type componentParams struct {
	fx.In

	Props    *config.Properties
	Engine   *transport.Engine
	Cache    *knownda.Cache
	Reporter metrics.Reporter
}

// injectComponents 创建组件注入函数
func injectComponents(dc *DiscoveryContext) interface{} {
	return func(p componentParams) {
		dc.props = p.Props
		dc.engine = p.Engine
		dc.cache = p.Cache
		dc.reporter = p.Reporter
	}
}
