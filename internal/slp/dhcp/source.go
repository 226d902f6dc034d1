package dhcp

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"net"
	"net/netip"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/dep2p/go-slp/internal/util/addrutil"
	"github.com/dep2p/go-slp/internal/util/logger"
)

var log = logger.Logger("slp.dhcp")

// Source 提供 DHCP 下发的 SLP 信息
type Source interface {
	Lookup(ctx context.Context) (*Info, error)
}

// StaticSource 返回固定信息，用于测试与手工配置
type StaticSource struct {
	Info *Info
	Err  error
}

// Lookup 实现 Source
func (s StaticSource) Lookup(context.Context) (*Info, error) {
	return s.Info, s.Err
}

// ============================================================================
//                              DHCPINFORM 客户端
// ============================================================================

// ErrNoInterface 找不到带 IPv4 与硬件地址的接口
var ErrNoInterface = errors.New("dhcp: no usable interface")

// Client 通过广播 DHCPINFORM 查询选项 78/79
//
// 需要绑定客户端端口 68，非特权进程通常会失败，调用方应把失败视为"无信息"。
type Client struct {
	// Retries 发送次数，默认 2
	Retries int
	// InitialTimeout 首次等待时间，之后每次翻倍，默认 250ms
	InitialTimeout time.Duration

	serverAddr string
	clientAddr string
}

// NewClient 创建使用标准端口的客户端
func NewClient() *Client {
	return &Client{
		Retries:        2,
		InitialTimeout: 250 * time.Millisecond,
		serverAddr:     "255.255.255.255:67",
		clientAddr:     ":68",
	}
}

// Lookup 实现 Source
func (c *Client) Lookup(ctx context.Context) (*Info, error) {
	ip, hw, err := localIdentity()
	if err != nil {
		return nil, err
	}

	var xidBuf [4]byte
	_, _ = rand.Read(xidBuf[:])
	xid := binary.BigEndian.Uint32(xidBuf[:])
	req, err := buildInform(xid, ip, hw)
	if err != nil {
		return nil, err
	}

	lc := net.ListenConfig{Control: addrutil.BroadcastControl}
	pc, err := lc.ListenPacket(ctx, "udp4", c.clientAddr)
	if err != nil {
		return nil, err
	}
	defer pc.Close()

	dst, err := net.ResolveUDPAddr("udp4", c.serverAddr)
	if err != nil {
		return nil, err
	}

	timeout := c.InitialTimeout
	buf := make([]byte, 1500)
	for attempt := 0; attempt < c.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := pc.WriteTo(req, dst); err != nil {
			return nil, err
		}
		deadline := time.Now().Add(timeout)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		_ = pc.SetReadDeadline(deadline)

		for {
			n, _, err := pc.ReadFrom(buf)
			if err != nil {
				var ne net.Error
				if errors.As(err, &ne) && ne.Timeout() {
					break
				}
				return nil, err
			}
			reply, err := DecodeReply(buf[:n])
			if err != nil {
				log.Debug("丢弃无效 DHCP 应答", "err", err)
				continue
			}
			if reply.Operation != layers.DHCPOpReply || reply.Xid != xid {
				continue
			}
			return ParseOptions(reply.Options), nil
		}
		timeout *= 2
	}
	return &Info{}, nil
}

// buildInform 构造 DHCPINFORM 请求，参数请求列表为 79、78
func buildInform(xid uint32, ip netip.Addr, hw net.HardwareAddr) ([]byte, error) {
	if len(hw) > 16 {
		hw = hw[:16]
	}
	ip4 := ip.As4()
	clientID := append([]byte{byte(layers.LinkTypeEthernet)}, hw...)

	req := &layers.DHCPv4{
		Operation:    layers.DHCPOpRequest,
		HardwareType: layers.LinkTypeEthernet,
		Xid:          xid,
		ClientIP:     net.IP(ip4[:]),
		ClientHWAddr: hw,
		Options: layers.DHCPOptions{
			layers.NewDHCPOption(layers.DHCPOptMessageType, []byte{byte(layers.DHCPMsgTypeInform)}),
			layers.NewDHCPOption(layers.DHCPOptParamsRequest, []byte{byte(OptSLPScope), byte(OptSLPDA)}),
			layers.NewDHCPOption(layers.DHCPOptClientID, clientID),
		},
	}
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, req); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// localIdentity 选择第一个同时具备 IPv4 与硬件地址的接口
func localIdentity() (netip.Addr, net.HardwareAddr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return netip.Addr{}, nil, err
	}
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagLoopback != 0 || len(ifi.HardwareAddr) == 0 {
			continue
		}
		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if addr, ok := netip.AddrFromSlice(ipnet.IP); ok && addr.Unmap().Is4() {
				return addr.Unmap(), ifi.HardwareAddr, nil
			}
		}
	}
	return netip.Addr{}, nil, ErrNoInterface
}
