// Package addrutil 提供地址解析与套接字选项工具
package addrutil

import (
	"net"
	"net/netip"
	"strings"
)

// ============================================================================
//                              地址解析
// ============================================================================

// ParseAddrList 解析逗号分隔的 IP 列表（例如 net.slp.DAAddresses）
//
// 支持格式：
//   - 纯 IP: 10.0.0.1 / fe80::1
//   - host:port: 10.0.0.1:427 / [fe80::1]:427（端口被忽略）
//
// 无法解析的项被跳过，调用方通过返回长度判断。
func ParseAddrList(list string) []netip.Addr {
	var out []netip.Addr
	for _, item := range strings.Split(list, ",") {
		if addr, ok := ExtractAddr(strings.TrimSpace(item)); ok {
			out = append(out, addr)
		}
	}
	return out
}

// ExtractAddr 从地址字符串中提取 IP 地址，IPv4 映射地址被还原为 IPv4
func ExtractAddr(s string) (netip.Addr, bool) {
	if s == "" {
		return netip.Addr{}, false
	}
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().Unmap(), true
	}
	if addr, err := netip.ParseAddr(strings.Trim(s, "[]")); err == nil {
		return addr.Unmap(), true
	}
	return netip.Addr{}, false
}

// AddrType 返回地址类型描述
//
// 返回值：
//   - "loopback" - 回环地址
//   - "multicast" - 组播地址
//   - "private" - 私网或链路本地地址
//   - "public" - 公网地址
//   - "unknown" - 无效地址
func AddrType(addr netip.Addr) string {
	switch {
	case !addr.IsValid():
		return "unknown"
	case addr.IsLoopback():
		return "loopback"
	case addr.IsMulticast():
		return "multicast"
	case addr.IsPrivate() || addr.IsLinkLocalUnicast():
		return "private"
	case addr.IsGlobalUnicast():
		return "public"
	}
	return "unknown"
}

// ============================================================================
//                              接口选择
// ============================================================================

// MulticastInterfaces 返回用于发送组播的接口
//
// addrs 非空时（来自 net.slp.interfaces）只返回拥有这些地址的接口；
// 为空时返回 nil，表示使用系统默认接口。
func MulticastInterfaces(addrs []netip.Addr) ([]net.Interface, error) {
	if len(addrs) == 0 {
		return nil, nil
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var out []net.Interface
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagMulticast == 0 {
			continue
		}
		ifAddrs, err := ifi.Addrs()
		if err != nil {
			continue
		}
		if ownsAny(ifAddrs, addrs) {
			out = append(out, ifi)
		}
	}
	return out, nil
}

func ownsAny(ifAddrs []net.Addr, want []netip.Addr) bool {
	for _, a := range ifAddrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		have, ok := netip.AddrFromSlice(ipnet.IP)
		if !ok {
			continue
		}
		for _, w := range want {
			if have.Unmap() == w {
				return true
			}
		}
	}
	return false
}
