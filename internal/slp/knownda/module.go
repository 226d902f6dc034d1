package knownda

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-slp/config"
	"github.com/dep2p/go-slp/internal/slp/dhcp"
	"github.com/dep2p/go-slp/internal/slp/transport"
)

// Params Cache 依赖参数
type Params struct {
	fx.In

	Engine     *transport.Engine
	UnifiedCfg *config.Config `optional:"true"`
	DHCP       dhcp.Source    `optional:"true"`
	Clock      clock.Clock    `optional:"true"`
}

// Module 是 knownda 的 Fx 模块
//
// 提供:
//   - *Cache: 已知 DA 缓存
//
// 生命周期:
//   - OnStop: 关闭持久化存储
var Module = fx.Module("slp.knownda",
	fx.Provide(NewCacheFromParams),
	fx.Invoke(registerLifecycle),
)

// NewCacheFromParams 从参数创建 Cache；未注入 DHCP 来源时使用 DHCPINFORM 客户端
func NewCacheFromParams(p Params) (*Cache, error) {
	src := p.DHCP
	if src == nil {
		src = dhcp.NewClient()
	}
	opts := []Option{
		WithConfig(ConfigFromUnified(p.UnifiedCfg)),
		WithDHCP(src),
	}
	if p.Clock != nil {
		opts = append(opts, WithClock(p.Clock))
	}
	return NewCache(p.Engine, opts...)
}

func registerLifecycle(lc fx.Lifecycle, c *Cache) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			if err := c.Close(); err != nil {
				log.Warn("关闭 KnownDA 缓存失败", "err", err)
				return err
			}
			return nil
		},
	})
}
