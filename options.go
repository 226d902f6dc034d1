package slp

import (
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-slp/config"
	"github.com/dep2p/go-slp/internal/slp/dhcp"
	"github.com/dep2p/go-slp/internal/slp/transport"
)

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	// 统一配置；nil 时使用 config.NewConfig()
	config *config.Config

	// 在统一配置之上覆盖的 net.slp.* 属性
	properties map[string]string

	// 可替换的依赖，主要用于测试
	network    transport.Network
	clock      clock.Clock
	dhcp       dhcp.Source
	registerer prometheus.Registerer

	// 用户自定义 Fx 选项
	userFxOptions []fx.Option
}

func newOptions() *options {
	return &options{properties: make(map[string]string)}
}

// toInternalConfig 合并统一配置与属性覆盖
func (o *options) toInternalConfig() *config.Config {
	cfg := config.NewConfig()
	if o.config != nil {
		c := *o.config
		c.Properties = make(map[string]string, len(o.config.Properties))
		for k, v := range o.config.Properties {
			c.Properties[k] = v
		}
		cfg = &c
	}
	for k, v := range o.properties {
		cfg.Properties[k] = v
	}
	return cfg
}

// ============================================================================
//                              配置选项
// ============================================================================

// WithConfig 使用完整的统一配置
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return fmt.Errorf("配置不能为空")
		}
		o.config = cfg
		return nil
	}
}

// WithConfigFile 从 JSON 文件加载统一配置
//
//	slp.New(ctx, slp.WithConfigFile("/etc/slp.json"))
func WithConfigFile(path string) Option {
	return func(o *options) error {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return err
		}
		o.config = cfg
		return nil
	}
}

// WithProperty 覆盖一个 net.slp.* 属性
//
//	slp.New(ctx,
//	    slp.WithProperty(config.KeyDAAddresses, "10.0.0.5"),
//	    slp.WithProperty(config.KeyUseScopes, "eng"),
//	)
func WithProperty(key, value string) Option {
	return func(o *options) error {
		if key == "" {
			return fmt.Errorf("属性名不能为空")
		}
		o.properties[key] = value
		return nil
	}
}

// WithScopes 设置 net.slp.useScopes
func WithScopes(scopes string) Option {
	return WithProperty(config.KeyUseScopes, scopes)
}

// WithDAAddresses 设置 net.slp.DAAddresses
func WithDAAddresses(addrs string) Option {
	return WithProperty(config.KeyDAAddresses, addrs)
}

// ============================================================================
//                              依赖注入选项
// ============================================================================

// WithNetwork 替换传输层使用的网络实现
func WithNetwork(n transport.Network) Option {
	return func(o *options) error {
		o.network = n
		return nil
	}
}

// WithClock 替换时钟
func WithClock(c clock.Clock) Option {
	return func(o *options) error {
		o.clock = c
		return nil
	}
}

// WithDHCP 替换 DHCP 信息来源；默认发送 DHCPINFORM
func WithDHCP(src dhcp.Source) Option {
	return func(o *options) error {
		o.dhcp = src
		return nil
	}
}

// WithRegisterer 把流量指标注册到 Prometheus
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) error {
		o.registerer = r
		return nil
	}
}

// WithFxOption 追加自定义 Fx 选项
func WithFxOption(opts ...fx.Option) Option {
	return func(o *options) error {
		o.userFxOptions = append(o.userFxOptions, opts...)
		return nil
	}
}
