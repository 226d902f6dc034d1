package knownda

import (
	"context"
	"net"
	"net/netip"
	"strings"

	"github.com/dep2p/go-slp/config"
	"github.com/dep2p/go-slp/internal/slp/transport"
	"github.com/dep2p/go-slp/internal/slp/wire"
	"github.com/dep2p/go-slp/internal/util/addrutil"
	"github.com/dep2p/go-slp/pkg/types"
)

// source 一个 DA 发现来源，返回记录到的 DA 数
type source struct {
	name string
	find func(ctx context.Context, scopes string) (int, error)
}

func (c *Cache) sources() []source {
	return []source{
		{"ipc", c.fromIPC},
		{"properties", c.fromProperties},
		{"dhcp", c.fromDHCP},
		{"multicast", c.fromMulticast},
	}
}

// Discover 依次询问各来源，第一个得到 DA 的来源之后停止
//
// 距上次发现不足 MinDiscoveryInterval 时返回 ErrThrottled。
// 并发调用共享同一次发现。
func (c *Cache) Discover(ctx context.Context, scopes string) (int, error) {
	v, err, _ := c.flight.Do("scopes:"+strings.ToLower(scopes), func() (interface{}, error) {
		if c.isClosed() {
			return 0, ErrClosed
		}
		if !c.limiter.AllowN(c.clock.Now(), 1) {
			return 0, ErrThrottled
		}
		for _, s := range c.sources() {
			n, err := s.find(ctx, scopes)
			if err != nil {
				if ctx.Err() != nil {
					return 0, ctx.Err()
				}
				log.Debug("DA 发现来源失败", "source", s.name, "err", err)
				continue
			}
			if n > 0 {
				log.Debug("DA 发现完成", "source", s.name, "count", n)
				return n, nil
			}
		}
		return 0, nil
	})
	n, _ := v.(int)
	return n, err
}

// discoverAll 尽可能发现全部 DA：slpd 没有结果时询问其余所有来源
func (c *Cache) discoverAll(ctx context.Context) {
	_, _, _ = c.flight.Do("all", func() (interface{}, error) {
		if c.isClosed() {
			return nil, nil
		}
		if n, err := c.fromIPC(ctx, ""); err == nil && n > 0 {
			return nil, nil
		}
		for _, s := range c.sources()[1:] {
			if _, err := s.find(ctx, ""); err != nil {
				log.Debug("DA 发现来源失败", "source", s.name, "err", err)
			}
		}
		return nil, nil
	})
}

func (c *Cache) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// ============================================================================
//                              发现来源
// ============================================================================

// fromIPC 询问本机 slpd，它在一条连接上返回所有已知 DA
func (c *Cache) fromIPC(ctx context.Context, _ string) (int, error) {
	var peers []netip.AddrPort
	if c.props.Bool(config.KeyUseIPv6) {
		peers = append(peers, netip.AddrPortFrom(netip.IPv6Loopback(), types.ReservedPort))
	}
	if c.props.Bool(config.KeyUseIPv4) {
		peers = append(peers, netip.AddrPortFrom(netip.AddrFrom4([4]byte{127, 0, 0, 1}), types.ReservedPort))
	}
	for _, peer := range peers {
		conn, err := c.engine.Dial(ctx, peer)
		if err != nil {
			continue
		}
		defer conn.Close()
		return c.ask(ctx, conn, "", true)
	}
	return 0, nil
}

// fromProperties 询问 net.slp.DAAddresses 中的 DA
func (c *Cache) fromProperties(ctx context.Context, scopes string) (int, error) {
	total := 0
	for _, host := range c.props.StringList(config.KeyDAAddresses) {
		addr, err := resolveHost(ctx, host)
		if err != nil {
			log.Debug("无法解析 DA 地址", "host", host, "err", err)
			continue
		}
		n, err := c.askPeer(ctx, netip.AddrPortFrom(addr, types.ReservedPort), scopes)
		if err != nil {
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
			continue
		}
		total += n
		if scopes != "" && total > 0 {
			break
		}
	}
	return total, nil
}

// fromDHCP 询问 DHCP 下发的 DA；DHCP 没有给出 scope 时使用 net.slp.useScopes
func (c *Cache) fromDHCP(ctx context.Context, _ string) (int, error) {
	if c.dhcp == nil || !c.props.Bool(config.KeyUseIPv4) {
		return 0, nil
	}
	info, err := c.dhcp.Lookup(ctx)
	if err != nil {
		return 0, err
	}
	if info == nil {
		return 0, nil
	}
	scopes := info.Scopes
	if scopes == "" {
		scopes = c.props.Get(config.KeyUseScopes)
	}

	total := 0
	for _, addr := range info.DAs {
		if !addr.IsValid() || addr.IsUnspecified() {
			continue
		}
		n, err := c.askPeer(ctx, netip.AddrPortFrom(addr.Unmap(), types.ReservedPort), scopes)
		if err != nil {
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
			continue
		}
		total += n
		if scopes != "" && total > 0 {
			break
		}
	}
	return total, nil
}

// fromMulticast 主动多播 DA 发现
func (c *Cache) fromMulticast(ctx context.Context, scopes string) (int, error) {
	if !c.props.Bool(config.KeyActiveDADetection) || c.props.Millis(config.KeyDADiscoveryMaximumWait) <= 0 {
		return 0, nil
	}
	n := 0
	err := c.engine.Multicast(ctx, &transport.Request{
		Body:      daRequest(scopes),
		LangTag:   c.props.Get(config.KeyLocale),
		Discovery: true,
	}, c.collect(ctx, &n))
	return n, err
}

// askPeer 通过新的 TCP 连接询问一个 DA
func (c *Cache) askPeer(ctx context.Context, peer netip.AddrPort, scopes string) (int, error) {
	if !c.familyEnabled(peer.Addr()) {
		return 0, nil
	}
	n := 0
	err := c.engine.Stream(ctx, peer, c.daQuery(scopes, false), c.collect(ctx, &n))
	return n, err
}

func (c *Cache) ask(ctx context.Context, conn net.Conn, scopes string, multi bool) (int, error) {
	n := 0
	err := c.engine.Exchange(ctx, conn, c.daQuery(scopes, multi), c.collect(ctx, &n))
	return n, err
}

func (c *Cache) daQuery(scopes string, multi bool) *transport.Request {
	return &transport.Request{
		Body:    daRequest(scopes),
		LangTag: c.props.Get(config.KeyLocale),
		Multi:   multi,
	}
}

// collect 记录应答中的 DAAdvert
//
// INTERNAL_ERROR 表示 slpd 的 DA 列表结束；带 MCAST 标志的通告记录后停止。
func (c *Cache) collect(ctx context.Context, n *int) transport.Callback {
	return func(reply *wire.Message, _ error) transport.Verdict {
		if reply == nil {
			return transport.Stop
		}
		adv, ok := reply.Body.(*wire.DAAdvert)
		if !ok {
			return transport.Continue
		}
		switch adv.ErrorCode {
		case types.WireOK:
			if c.record(ctx, adv, reply.Peer) {
				*n++
			}
		case types.WireInternalError:
			return transport.Stop
		default:
			log.Debug("DAAdvert 携带错误码", "code", adv.ErrorCode, "peer", reply.Peer)
		}
		if reply.Header.Flags.Has(types.FlagMcast) {
			return transport.Stop
		}
		return transport.Continue
	}
}

// daRequest 查找 DA 的 SrvRqst
func daRequest(scopes string) *wire.SrvRqst {
	return &wire.SrvRqst{
		ServiceType: types.DirectoryAgentType,
		ScopeList:   scopes,
	}
}

// resolveHost 字面地址直接返回，否则查询 DNS
func resolveHost(ctx context.Context, host string) (netip.Addr, error) {
	if addr, ok := addrutil.ExtractAddr(host); ok {
		return addr, nil
	}
	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return netip.Addr{}, err
	}
	if len(addrs) == 0 {
		return netip.Addr{}, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	return addrs[0].Unmap(), nil
}
