package transport

import (
	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-slp/config"
	"github.com/dep2p/go-slp/internal/slp/metrics"
)

// Params Engine 依赖参数
type Params struct {
	fx.In

	Props    *config.Properties
	Reporter metrics.Reporter `optional:"true"`
	Clock    clock.Clock      `optional:"true"`
	Network  Network          `optional:"true"`
}

// Module 是 transport 的 Fx 模块
var Module = fx.Module("slp.transport",
	fx.Provide(NewEngineFromParams),
)

// NewEngineFromParams 从参数创建 Engine
func NewEngineFromParams(p Params) *Engine {
	var opts []Option
	if p.Reporter != nil {
		opts = append(opts, WithReporter(p.Reporter))
	}
	if p.Clock != nil {
		opts = append(opts, WithClock(p.Clock))
	}
	if p.Network != nil {
		opts = append(opts, WithNetwork(p.Network))
	}
	return NewEngine(p.Props, opts...)
}
