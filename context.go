package slp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/fx"

	"github.com/dep2p/go-slp/config"
	"github.com/dep2p/go-slp/internal/slp/knownda"
	"github.com/dep2p/go-slp/internal/slp/metrics"
	"github.com/dep2p/go-slp/internal/slp/session"
	"github.com/dep2p/go-slp/internal/slp/transport"
	"github.com/dep2p/go-slp/internal/util/logger"
)

var log = logger.Logger("slp")

// 启停超时
const (
	startTimeout = 30 * time.Second
	stopTimeout  = 10 * time.Second
)

// DiscoveryContext 一组 SLP 句柄共享的进程级状态
//
// 持有属性存储、传输引擎、KnownDA 缓存与流量指标，由 Fx 组装。
// 不同的 DiscoveryContext 互不共享状态。
//
// 使用示例：
//
//	dc, err := slp.New(ctx, slp.WithDAAddresses("10.0.0.5"))
//	if err != nil {
//	    return err
//	}
//	defer dc.Close()
//
//	h, err := dc.Open()
//	if err != nil {
//	    return err
//	}
//	defer h.Close()
type DiscoveryContext struct {
	app   *fx.App
	async bool

	props    *config.Properties
	engine   *transport.Engine
	cache    *knownda.Cache
	reporter metrics.Reporter

	mu     sync.Mutex
	closed bool
}

// New 创建并启动 DiscoveryContext
func New(ctx context.Context, opts ...Option) (*DiscoveryContext, error) {
	o := newOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}
	cfg := o.toInternalConfig()

	dc := &DiscoveryContext{async: cfg.Async}
	app, err := buildFxApp(o, cfg, dc)
	if err != nil {
		return nil, err
	}
	if err := app.Err(); err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}

	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		log.Error("启动失败", "error", err)
		return nil, fmt.Errorf("start failed: %w", err)
	}
	dc.app = app

	log.Debug("DiscoveryContext 已启动",
		"scopes", dc.props.Get(config.KeyUseScopes),
		"das", dc.props.Get(config.KeyDAAddresses))
	return dc, nil
}

// Open 打开句柄；未指定 session.WithAsync 时使用配置中的 Async
func (dc *DiscoveryContext) Open(opts ...session.Option) (*session.Handle, error) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	if dc.closed {
		return nil, ErrClosed
	}
	opts = append([]session.Option{session.WithAsync(dc.async)}, opts...)
	return session.Open(dc.engine, dc.cache, opts...), nil
}

// Properties 属性存储
func (dc *DiscoveryContext) Properties() *config.Properties {
	return dc.props
}

// Engine 传输引擎
func (dc *DiscoveryContext) Engine() *transport.Engine {
	return dc.engine
}

// KnownDAs KnownDA 缓存
func (dc *DiscoveryContext) KnownDAs() *knownda.Cache {
	return dc.cache
}

// Metrics 流量统计；未启用时为 metrics.NopReporter
func (dc *DiscoveryContext) Metrics() metrics.Reporter {
	return dc.reporter
}

// Close 停止所有组件
//
// 调用前应先关闭由 Open 得到的句柄。重复调用返回 nil。
func (dc *DiscoveryContext) Close() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	if dc.closed {
		return nil
	}
	dc.closed = true

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := dc.app.Stop(ctx); err != nil {
		log.Error("停止失败", "error", err)
		return fmt.Errorf("stop fx app: %w", err)
	}
	log.Debug("DiscoveryContext 已关闭")
	return nil
}
