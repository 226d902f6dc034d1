// Package srvurl 解析 service: URL
//
//	service:printer.x://192.168.100.2:4563/hello/good/world
//	└──── Type ─────┘   └─── Host ──┘ Port └─ Remainder ─┘
package srvurl

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"

	"github.com/dep2p/go-slp/pkg/types"
)

var (
	// ErrNoScheme URL 中没有 "://" 分隔
	ErrNoScheme = errors.New("srvurl: missing \"://\"")

	// ErrBadPort 端口不是 0..65535 的整数
	ErrBadPort = errors.New("srvurl: invalid port")

	// ErrNoHost 需要主机地址但 URL 中没有
	ErrNoHost = errors.New("srvurl: no host part")
)

// URL 解析后的服务 URL
type URL struct {
	// Type 服务类型，例如 "service:printer.x"
	Type string
	// Host 主机名或地址，IPv6 字面量不带方括号；可以为空
	Host string
	// Port 端口，未指定时为 0
	Port uint16
	// Remainder 主机端口之后的部分，含前导 '/' 或 ';'
	Remainder string
}

// Parse 解析服务 URL
func Parse(s string) (*URL, error) {
	i := strings.Index(s, "://")
	if i <= 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoScheme, s)
	}
	u := &URL{Type: s[:i]}
	rest := s[i+3:]

	// 主机部分截止于 '/' 或 ';'，端口在最后一个 ':' 之后
	end := strings.IndexAny(rest, "/;")
	if end < 0 {
		end = len(rest)
	}
	hostport, remainder := rest[:end], rest[end:]
	u.Remainder = remainder

	host, port := hostport, ""
	if strings.HasPrefix(hostport, "[") {
		j := strings.IndexByte(hostport, ']')
		if j < 0 {
			return nil, fmt.Errorf("%w: unterminated ipv6 literal", ErrNoHost)
		}
		host = hostport[1:j]
		if tail := hostport[j+1:]; strings.HasPrefix(tail, ":") {
			port = tail[1:]
		}
	} else if j := strings.LastIndexByte(hostport, ':'); j >= 0 {
		host, port = hostport[:j], hostport[j+1:]
	}
	u.Host = host

	if port != "" {
		p, err := strconv.ParseUint(port, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrBadPort, port)
		}
		u.Port = uint16(p)
	}
	return u, nil
}

// String 重新拼装 URL
func (u *URL) String() string {
	var b strings.Builder
	b.WriteString(u.Type)
	b.WriteString("://")
	if strings.Contains(u.Host, ":") {
		b.WriteString("[" + u.Host + "]")
	} else {
		b.WriteString(u.Host)
	}
	if u.Port != 0 {
		b.WriteString(":" + strconv.Itoa(int(u.Port)))
	}
	b.WriteString(u.Remainder)
	return b.String()
}

// Resolve 返回主机地址与端口（未指定端口时使用 defaultPort）
//
// 主机为字面地址时不查询 DNS。
func (u *URL) Resolve(ctx context.Context, defaultPort uint16) (netip.AddrPort, error) {
	port := u.Port
	if port == 0 {
		port = defaultPort
	}
	if u.Host == "" {
		return netip.AddrPort{}, ErrNoHost
	}
	if addr, err := netip.ParseAddr(u.Host); err == nil {
		return netip.AddrPortFrom(addr.Unmap(), port), nil
	}
	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", u.Host)
	if err != nil {
		return netip.AddrPort{}, types.NewError(types.NetworkError, "resolve", err)
	}
	if len(addrs) == 0 {
		return netip.AddrPort{}, types.NewError(types.NetworkError, "resolve", ErrNoHost)
	}
	return netip.AddrPortFrom(addrs[0].Unmap(), port), nil
}

// Valid 是否为可注册的服务 URL（以 "service:" 开头且可解析）
func Valid(s string) bool {
	if !strings.HasPrefix(strings.ToLower(s), "service:") {
		return false
	}
	_, err := Parse(s)
	return err == nil
}
