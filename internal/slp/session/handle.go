package session

import (
	"context"
	"net"
	"net/netip"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/dep2p/go-slp/config"
	"github.com/dep2p/go-slp/internal/slp/compare"
	"github.com/dep2p/go-slp/internal/slp/knownda"
	"github.com/dep2p/go-slp/internal/slp/transport"
	"github.com/dep2p/go-slp/internal/util/logger"
	"github.com/dep2p/go-slp/pkg/types"
)

var log = logger.Logger("slp.session")

// Handle SLP 句柄
type Handle struct {
	id     uuid.UUID
	lang   string
	async  bool
	props  *config.Properties
	engine *transport.Engine
	cache  *knownda.Cache

	mu     sync.Mutex
	inUse  bool
	closed bool
	wg     sync.WaitGroup

	// da 查询使用的 DA 连接，sa 注册使用的 SA/DA 连接
	da cachedConn
	sa cachedConn

	// unicast 非零时查询直接以 UDP 发往该节点
	unicast netip.AddrPort
	// ifaces 多播出接口地址列表，覆盖 net.slp.interfaces
	ifaces string
}

// cachedConn 句柄缓存的流连接及其 scope
type cachedConn struct {
	conn   net.Conn
	peer   netip.AddrPort
	scopes string
}

func (c *cachedConn) covers(scopes string) bool {
	return c.conn != nil && compare.Subset(scopes, c.scopes)
}

func (c *cachedConn) close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	*c = cachedConn{}
	return err
}

// Option 句柄选项
type Option func(*Handle)

// WithAsync 设置异步模式
func WithAsync(async bool) Option {
	return func(h *Handle) { h.async = async }
}

// WithLanguage 设置语言标签，默认取 net.slp.locale
func WithLanguage(tag string) Option {
	return func(h *Handle) { h.lang = tag }
}

// WithUnicast 查询不经 DA 与多播，直接以 UDP 单播发往 peer；端口为 0 时使用 427
func WithUnicast(peer netip.AddrPort) Option {
	return func(h *Handle) {
		if peer.Port() == 0 {
			peer = netip.AddrPortFrom(peer.Addr(), types.ReservedPort)
		}
		h.unicast = peer
	}
}

// WithInterfaces 以逗号分隔的本机地址指定多播出接口，覆盖 net.slp.interfaces
func WithInterfaces(list string) Option {
	return func(h *Handle) { h.ifaces = list }
}

// Open 创建句柄
func Open(engine *transport.Engine, cache *knownda.Cache, opts ...Option) *Handle {
	h := &Handle{
		id:     uuid.New(),
		props:  engine.Properties(),
		engine: engine,
		cache:  cache,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.lang == "" {
		h.lang = h.props.Get(config.KeyLocale)
	}
	log.Debug("打开句柄", "id", h.id, "async", h.async, "lang", h.lang, "unicast", h.unicast, "interfaces", h.ifaces)
	return h
}

// ID 句柄标识
func (h *Handle) ID() uuid.UUID {
	return h.id
}

// Language 句柄的语言标签
func (h *Handle) Language() string {
	return h.lang
}

// Async 是否为异步句柄
func (h *Handle) Async() bool {
	return h.async
}

// Close 等待进行中的异步操作结束后释放缓存连接
//
// 重复调用返回 nil。
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	h.wg.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	log.Debug("关闭句柄", "id", h.id)
	return multierr.Combine(h.da.close(), h.sa.close())
}

// start 占用句柄并运行 op
//
// 同步句柄返回 op 的结果；异步句柄立即返回 nil，op 在新 goroutine 上运行。
func (h *Handle) start(ctx context.Context, name string, op func(ctx context.Context) error) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return types.NewError(types.ParameterBad, name, ErrClosed)
	}
	if h.inUse {
		h.mu.Unlock()
		return types.NewError(types.HandleInUse, name, ErrInUse)
	}
	h.inUse = true
	h.wg.Add(1)
	h.mu.Unlock()

	run := func() error {
		defer h.release()
		err := op(ctx)
		if err != nil {
			log.Debug("操作失败", "id", h.id, "op", name, "err", err)
		}
		return err
	}
	if h.async {
		go func() { _ = run() }()
		return nil
	}
	return run()
}

func (h *Handle) release() {
	h.mu.Lock()
	h.inUse = false
	h.mu.Unlock()
	h.wg.Done()
}

// scopesOr 空 scope 列表使用 net.slp.useScopes
func (h *Handle) scopesOr(scopes string) string {
	if scopes == "" {
		return h.props.Get(config.KeyUseScopes)
	}
	return scopes
}

func usage(op string, err error) error {
	return types.NewError(types.ParameterBad, op, err)
}
