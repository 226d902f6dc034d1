package transport

import (
	"net/netip"

	"github.com/dep2p/go-slp/config"
	"github.com/dep2p/go-slp/internal/slp/wire"
	"github.com/dep2p/go-slp/pkg/types"
)

var (
	// GroupV4 IPv4 管理范围多播组
	GroupV4 = netip.AddrPortFrom(netip.MustParseAddr(types.DefaultMulticastGroupV4), types.ReservedPort)

	// BroadcastV4 有限广播地址
	BroadcastV4 = netip.AddrPortFrom(netip.AddrFrom4([4]byte{255, 255, 255, 255}), types.ReservedPort)
)

// IPv6 多播范围，按发送顺序排列：节点、链路、站点
var v6Scopes = []byte{0x1, 0x2, 0x5}

// v6Group 构造 FF0<scope>::<mid>:<hi><lo>
func v6Group(scope, hi, lo, mid byte) netip.AddrPort {
	var a [16]byte
	a[0] = 0xFF
	a[1] = scope
	a[13] = mid
	a[14] = hi
	a[15] = lo
	return netip.AddrPortFrom(netip.AddrFrom16(a), types.ReservedPort)
}

// SrvTypeHash 服务类型到 IPv6 组号的散列，h = h*33 + c，取低 10 位
func SrvTypeHash(srvType string) uint16 {
	var h uint32
	for i := 0; i < len(srvType); i++ {
		h = h*33 + uint32(srvType[i])
	}
	return uint16(h & 0x3FF)
}

// Groups 返回请求的多播目标，顺序为 IPv6 节点、链路、站点，最后是 IPv4
//
// net.slp.isBroadcastOnly 为真时只返回 255.255.255.255:427。
func Groups(body wire.Body, discovery bool, props *config.Properties) []netip.AddrPort {
	if props.Bool(config.KeyIsBroadcastOnly) {
		return []netip.AddrPort{BroadcastV4}
	}

	var out []netip.AddrPort
	if props.Bool(config.KeyUseIPv6) {
		for _, scope := range v6Scopes {
			switch {
			case discovery:
				// FF0x::123
				out = append(out, v6Group(scope, 0x01, 0x23, 0))
			case body.Function() == types.FuncSrvRqst:
				// FF0x::1:1000 | hash
				h := SrvTypeHash(body.(*wire.SrvRqst).ServiceType)
				out = append(out, v6Group(scope, 0x10|byte(h>>8), byte(h), 0x01))
			default:
				// FF0x::116
				out = append(out, v6Group(scope, 0x01, 0x16, 0))
			}
		}
	}
	if props.Bool(config.KeyUseIPv4) {
		out = append(out, GroupV4)
	}
	return out
}
