package knownda

import (
	"context"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-slp/config"
	"github.com/dep2p/go-slp/internal/slp/attr"
	"github.com/dep2p/go-slp/internal/slp/compare"
	"github.com/dep2p/go-slp/internal/slp/dhcp"
	"github.com/dep2p/go-slp/internal/slp/srvurl"
	"github.com/dep2p/go-slp/internal/slp/transport"
	"github.com/dep2p/go-slp/internal/slp/wire"
	"github.com/dep2p/go-slp/internal/util/logger"
	"github.com/dep2p/go-slp/pkg/types"
)

var log = logger.Logger("slp.knownda")

// Entry 一个已知 DA
type Entry struct {
	// URL DA 的 service:directory-agent URL
	URL string
	// Scopes DA 支持的 scope 列表
	Scopes string
	// Attrs DA 通告的属性
	Attrs string
	// SPIs DA 支持的安全参数索引
	SPIs string
	// BootTimestamp DA 启动时间
	BootTimestamp uint32
	// Peer DA 的流地址，端口固定为 427
	Peer netip.AddrPort
	// Updated 最近一次收到通告的时间
	Updated time.Time
}

// Cache 已知 DA 缓存，可被多个句柄并发使用
type Cache struct {
	cfg    Config
	props  *config.Properties
	engine *transport.Engine
	dhcp   dhcp.Source
	clock  clock.Clock
	store  *store

	mu      sync.RWMutex
	entries []*Entry
	closed  bool

	// bad 值为负缓存截止时间，按 c.clock 判断是否仍有效
	bad     *expirable.LRU[netip.Addr, time.Time]
	limiter *rate.Limiter
	flight  singleflight.Group
}

// Option 缓存选项
type Option func(*Cache)

// WithConfig 设置缓存配置
func WithConfig(cfg Config) Option {
	return func(c *Cache) { c.cfg = cfg }
}

// WithDHCP 设置 DHCP 信息来源；未设置时跳过 DHCP 发现
func WithDHCP(src dhcp.Source) Option {
	return func(c *Cache) { c.dhcp = src }
}

// WithClock 替换时钟
func WithClock(clk clock.Clock) Option {
	return func(c *Cache) { c.clock = clk }
}

// NewCache 创建缓存，配置了 PersistPath 时加载已持久化的 DA
func NewCache(engine *transport.Engine, opts ...Option) (*Cache, error) {
	c := &Cache{
		cfg:    DefaultConfig(),
		props:  engine.Properties(),
		engine: engine,
		clock:  clock.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.cfg.Validate(); err != nil {
		return nil, err
	}

	c.bad = expirable.NewLRU[netip.Addr, time.Time](c.cfg.BadDACapacity, nil, c.cfg.BadDATTL)
	c.limiter = rate.NewLimiter(rate.Every(c.cfg.MinDiscoveryInterval), 1)

	if c.cfg.PersistPath != "" {
		s, err := openStore(c.cfg.PersistPath)
		if err != nil {
			return nil, err
		}
		c.store = s
		c.reload()
	}
	return c, nil
}

// Close 关闭持久化存储
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.store != nil {
		return c.store.close()
	}
	return nil
}

// ============================================================================
//                              查询与修改
// ============================================================================

// FindByScope 返回第一个支持全部 scopes 的 DA
//
// 比较不区分大小写；空 scopes 视为 net.slp.useScopes。地址族被禁用的 DA 不参与匹配。
func (c *Cache) FindByScope(scopes string) (Entry, bool) {
	if scopes == "" {
		scopes = c.props.Get(config.KeyUseScopes)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.entries {
		if compare.Subset(scopes, e.Scopes) && c.familyEnabled(e.Peer.Addr()) {
			return *e, true
		}
	}
	return Entry{}, false
}

// Entries 返回缓存快照，按加入顺序
func (c *Cache) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, len(c.entries))
	for i, e := range c.entries {
		out[i] = *e
	}
	return out
}

// Add 加入 DA，URL 相同（不区分大小写）的旧项被替换
//
// 返回 true 表示是新 DA。
func (c *Cache) Add(e Entry) bool {
	if e.Updated.IsZero() {
		e.Updated = c.clock.Now()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, old := range c.entries {
		if strings.EqualFold(old.URL, e.URL) {
			c.entries[i] = &e
			return false
		}
	}
	c.entries = append(c.entries, &e)
	return true
}

// Remove 按 URL 删除 DA
func (c *Cache) Remove(url string) bool {
	c.mu.Lock()
	removed := false
	for i, e := range c.entries {
		if strings.EqualFold(e.URL, url) {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			removed = true
			break
		}
	}
	c.mu.Unlock()
	if removed {
		c.unpersist(url)
	}
	return removed
}

// MarkBad 删除地址为 addr 的 DA 并在 BadDATTL 内拒绝重新加入
func (c *Cache) MarkBad(addr netip.Addr) {
	addr = addr.Unmap()
	c.bad.Add(addr, c.clock.Now().Add(c.cfg.BadDATTL))

	var urls []string
	c.mu.Lock()
	kept := c.entries[:0]
	for _, e := range c.entries {
		if e.Peer.Addr() == addr {
			urls = append(urls, e.URL)
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(c.entries); i++ {
		c.entries[i] = nil
	}
	c.entries = kept
	c.mu.Unlock()

	for _, u := range urls {
		log.Debug("DA 标记为不可达", "url", u, "addr", addr)
		c.unpersist(u)
	}
}

// IsBad addr 是否在负缓存中
func (c *Cache) IsBad(addr netip.Addr) bool {
	until, ok := c.bad.Peek(addr.Unmap())
	return ok && c.clock.Now().Before(until)
}

// Scopes 发现全部 DA 后返回它们的 scope 并集，再并入 net.slp.useScopes
func (c *Cache) Scopes(ctx context.Context) string {
	c.discoverAll(ctx)

	var scopes string
	for _, e := range c.Entries() {
		scopes = compare.Union(scopes, e.Scopes)
	}
	return compare.Union(scopes, c.props.Get(config.KeyUseScopes))
}

// attrMinRefresh DAAdvert 中声明最小重注册间隔的属性
const attrMinRefresh = "min-refresh-interval"

// RefreshInterval 发现全部 DA 后返回各 DA min-refresh-interval 的最大值（秒）
//
// 按此间隔重注册不会被任何 DA 拒绝；没有 DA 声明该属性时返回 0。
func (c *Cache) RefreshInterval(ctx context.Context) uint16 {
	c.discoverAll(ctx)

	var maxSecs uint16
	for _, e := range c.Entries() {
		v, err := attr.Lookup(e.Attrs, attrMinRefresh)
		if err != nil {
			continue
		}
		secs, err := strconv.ParseUint(strings.TrimSpace(v), 10, 16)
		if err != nil {
			log.Debug("忽略无效的 min-refresh-interval", "url", e.URL, "value", v)
			continue
		}
		maxSecs = max(maxSecs, uint16(secs))
	}
	return maxSecs
}

// ProcessSrvRqst 以缓存应答对 service:directory-agent 的查找
//
// scopes 非空时只返回与之有交集的 DA。cb 返回 false 时停止枚举；
// 最后总会以 (""、0、types.ErrLastCall) 调用一次 cb。
func (c *Cache) ProcessSrvRqst(ctx context.Context, scopes string, cb func(url string, lifetime uint16, err error) bool) {
	c.discoverAll(ctx)

	for _, e := range c.Entries() {
		if scopes != "" && compare.Intersect(scopes, e.Scopes) == 0 {
			continue
		}
		if !cb(e.URL, types.LifetimeMaximum, nil) {
			break
		}
	}
	cb("", 0, types.ErrLastCall)
}

// Connect 返回到支持 scopes 的 DA 的 TCP 连接
//
// 未命中时触发一次发现；连接失败的 DA 被标记为不可达后继续尝试下一个，
// 直到没有候选时返回 ErrNoDA。
func (c *Cache) Connect(ctx context.Context, scopes string) (net.Conn, Entry, error) {
	tried := make(map[netip.Addr]bool)
	for {
		e, ok := c.FindByScope(scopes)
		if !ok || tried[e.Peer.Addr()] {
			if _, err := c.Discover(ctx, scopes); err != nil && ctx.Err() != nil {
				return nil, Entry{}, ctx.Err()
			}
			e, ok = c.FindByScope(scopes)
			if !ok || tried[e.Peer.Addr()] {
				return nil, Entry{}, ErrNoDA
			}
		}
		tried[e.Peer.Addr()] = true

		conn, err := c.engine.Dial(ctx, e.Peer)
		if err == nil {
			return conn, e, nil
		}
		if ctx.Err() != nil {
			return nil, Entry{}, ctx.Err()
		}
		log.Debug("连接 DA 失败", "url", e.URL, "peer", e.Peer, "err", err)
		c.MarkBad(e.Peer.Addr())
	}
}

func (c *Cache) familyEnabled(a netip.Addr) bool {
	if a.Is4() || a.Is4In6() {
		return c.props.Bool(config.KeyUseIPv4)
	}
	return c.props.Bool(config.KeyUseIPv6)
}

// ============================================================================
//                              DAAdvert 处理
// ============================================================================

// record 处理一条 DAAdvert，返回是否记录了 DA
//
// 启动时间为 0 表示 DA 正在关闭，删除对应项。
func (c *Cache) record(ctx context.Context, adv *wire.DAAdvert, from netip.AddrPort) bool {
	if adv.BootTimestamp == 0 {
		if c.Remove(adv.URL) {
			log.Debug("DA 已关闭", "url", adv.URL)
		}
		return false
	}
	peer, ok := c.peerOf(ctx, adv.URL, from)
	if !ok {
		log.Debug("无法确定 DA 地址", "url", adv.URL)
		return false
	}
	if c.IsBad(peer.Addr()) {
		return false
	}

	added := c.Add(Entry{
		URL:           adv.URL,
		Scopes:        adv.ScopeList,
		Attrs:         adv.AttrList,
		SPIs:          adv.SPIList,
		BootTimestamp: adv.BootTimestamp,
		Peer:          peer,
	})
	if added {
		log.Debug("发现 DA", "url", adv.URL, "scopes", adv.ScopeList, "peer", peer)
	}
	c.persist(adv)
	return true
}

// peerOf DA URL 的主机部分（必要时解析）作为 DA 地址，失败时退回到报文来源
func (c *Cache) peerOf(ctx context.Context, url string, from netip.AddrPort) (netip.AddrPort, bool) {
	if u, err := srvurl.Parse(url); err == nil {
		if ap, err := u.Resolve(ctx, types.ReservedPort); err == nil {
			return netip.AddrPortFrom(ap.Addr(), types.ReservedPort), true
		}
	}
	if from.Addr().IsValid() {
		return netip.AddrPortFrom(from.Addr().Unmap(), types.ReservedPort), true
	}
	return netip.AddrPort{}, false
}

func (c *Cache) persist(adv *wire.DAAdvert) {
	if c.store == nil {
		return
	}
	raw, err := wire.Encode(wire.NewMessage(adv, 0, c.props.Get(config.KeyLocale), 0))
	if err == nil {
		err = c.store.put(adv.URL, raw)
	}
	if err != nil {
		log.Warn("持久化 DA 失败", "url", adv.URL, "err", err)
	}
}

func (c *Cache) unpersist(url string) {
	if c.store == nil {
		return
	}
	if err := c.store.delete(url); err != nil {
		log.Warn("删除持久化 DA 失败", "url", url, "err", err)
	}
}

// reload 从存储恢复 DA
func (c *Cache) reload() {
	raws, err := c.store.load()
	if err != nil {
		log.Warn("加载持久化 DA 失败", "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.props.Millis(config.KeyDADiscoveryMaximumWait))
	defer cancel()
	for _, raw := range raws {
		msg, err := wire.Decode(raw, netip.AddrPort{})
		if err != nil {
			continue
		}
		adv, ok := msg.Body.(*wire.DAAdvert)
		if !ok || adv.ErrorCode != 0 || adv.BootTimestamp == 0 {
			continue
		}
		peer, ok := c.peerOf(ctx, adv.URL, netip.AddrPort{})
		if !ok {
			continue
		}
		c.Add(Entry{
			URL:           adv.URL,
			Scopes:        adv.ScopeList,
			Attrs:         adv.AttrList,
			SPIs:          adv.SPIList,
			BootTimestamp: adv.BootTimestamp,
			Peer:          peer,
		})
	}
	log.Debug("已加载持久化 DA", "count", len(raws))
}
