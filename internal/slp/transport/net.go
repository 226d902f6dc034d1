package transport

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"go.uber.org/multierr"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/dep2p/go-slp/internal/util/addrutil"
)

// ============================================================================
//                              接口
// ============================================================================

// PacketConn 数据报套接字
type PacketConn interface {
	// ReadFrom 阻塞读取一个数据报，套接字关闭后返回错误
	ReadFrom(p []byte) (int, netip.AddrPort, error)
	// WriteTo 发送数据报；多播目标会从每个选定接口各发一次
	WriteTo(p []byte, dst netip.AddrPort) error
	Close() error
}

// PacketOptions 数据报套接字选项
type PacketOptions struct {
	// MulticastTTL 多播 TTL / 跳数限制，0 使用系统默认
	MulticastTTL int
	// Broadcast 允许发送广播
	Broadcast bool
	// Interfaces 多播出接口，为空使用系统默认路由
	Interfaces []net.Interface
}

// Network 创建套接字
type Network interface {
	// ListenPacket 在临时端口上打开 "udp4" 或 "udp6" 套接字
	ListenPacket(ctx context.Context, network string, opts PacketOptions) (PacketConn, error)
	// DialStream 建立 TCP 连接
	DialStream(ctx context.Context, peer netip.AddrPort) (net.Conn, error)
}

// ============================================================================
//                              UDPNetwork
// ============================================================================

// UDPNetwork 基于系统套接字的 Network
type UDPNetwork struct {
	dialer net.Dialer
}

var _ Network = (*UDPNetwork)(nil)

// NewUDPNetwork 创建系统网络
func NewUDPNetwork() *UDPNetwork {
	return &UDPNetwork{}
}

// ListenPacket 实现 Network
func (n *UDPNetwork) ListenPacket(ctx context.Context, network string, opts PacketOptions) (PacketConn, error) {
	lc := net.ListenConfig{}
	if opts.Broadcast {
		lc.Control = addrutil.BroadcastControl
	}
	pc, err := lc.ListenPacket(ctx, network, ":0")
	if err != nil {
		return nil, err
	}
	uc := pc.(*net.UDPConn)

	c := &udpConn{conn: uc, ifaces: opts.Interfaces}
	switch network {
	case "udp6":
		c.p6 = ipv6.NewPacketConn(uc)
		if opts.MulticastTTL > 0 {
			err = c.p6.SetMulticastHopLimit(opts.MulticastTTL)
		}
	default:
		c.p4 = ipv4.NewPacketConn(uc)
		if opts.MulticastTTL > 0 {
			err = c.p4.SetMulticastTTL(opts.MulticastTTL)
		}
	}
	if err != nil {
		uc.Close()
		return nil, fmt.Errorf("set multicast ttl: %w", err)
	}
	return c, nil
}

// DialStream 实现 Network
func (n *UDPNetwork) DialStream(ctx context.Context, peer netip.AddrPort) (net.Conn, error) {
	return n.dialer.DialContext(ctx, "tcp", peer.String())
}

// udpConn 对 *net.UDPConn 的包装
type udpConn struct {
	conn   *net.UDPConn
	p4     *ipv4.PacketConn
	p6     *ipv6.PacketConn
	ifaces []net.Interface
}

func (c *udpConn) ReadFrom(p []byte) (int, netip.AddrPort, error) {
	n, addr, err := c.conn.ReadFromUDPAddrPort(p)
	return n, netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port()), err
}

func (c *udpConn) WriteTo(p []byte, dst netip.AddrPort) error {
	if !dst.Addr().IsMulticast() || len(c.ifaces) == 0 {
		_, err := c.conn.WriteToUDPAddrPort(p, dst)
		return err
	}

	// 逐个接口发送，至少一个成功即可
	var errs error
	sent := false
	for i := range c.ifaces {
		ifi := &c.ifaces[i]
		var err error
		if c.p6 != nil {
			err = c.p6.SetMulticastInterface(ifi)
		} else {
			err = c.p4.SetMulticastInterface(ifi)
		}
		if err == nil {
			_, err = c.conn.WriteToUDPAddrPort(p, dst)
		}
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", ifi.Name, err))
			continue
		}
		sent = true
	}
	if sent {
		return nil
	}
	return errs
}

func (c *udpConn) Close() error {
	return c.conn.Close()
}
