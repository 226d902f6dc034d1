// Package dhcp 获取 DHCP 下发的 SLP 配置（RFC 2610 选项 78/79）
//
// BOOTP 固定头与 tag/length/value 选项区由 gopacket 的 layers.DHCPv4 处理，
// 本包只解析两个 SLP 选项的值：
//
//	78 SLP Directory Agent: mandatory(1), a1(4), a2(4), ...
//	79 SLP Service Scope:   mandatory(1), scope-list
package dhcp

import (
	"bytes"
	"errors"
	"fmt"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// SLP 相关的 DHCP 选项编号，layers 未定义
const (
	OptSLPDA    layers.DHCPOpt = 78
	OptSLPScope layers.DHCPOpt = 79
)

// minReplySize BOOTP 固定头加 magic cookie
const minReplySize = 240

var (
	// ErrShortReply 应答短于 BOOTP 固定头
	ErrShortReply = errors.New("dhcp: reply shorter than bootp header")

	// ErrMalformed 应答的 cookie 或选项区无效
	ErrMalformed = errors.New("dhcp: malformed reply")
)

// Info DHCP 提供的 SLP 配置
type Info struct {
	// DAs 选项 78 中的 DA 地址，全零地址被丢弃
	DAs []netip.Addr
	// Scopes 选项 79 中的作用域列表
	Scopes string
	// DAMandatory / ScopeMandatory 服务器要求强制使用
	DAMandatory    bool
	ScopeMandatory bool
}

// Empty 没有任何 SLP 信息
func (i *Info) Empty() bool {
	return i == nil || (len(i.DAs) == 0 && i.Scopes == "")
}

// ParseOptions 从已解码的选项中提取 SLP 信息，其余选项被忽略
func ParseOptions(opts layers.DHCPOptions) *Info {
	info := &Info{}
	for _, o := range opts {
		switch o.Type {
		case OptSLPDA:
			parseDAOption(info, o.Data)
		case OptSLPScope:
			parseScopeOption(info, o.Data)
		}
	}
	return info
}

// DecodeReply 解码完整的 BOOTP/DHCP 报文
func DecodeReply(pkt []byte) (*layers.DHCPv4, error) {
	if len(pkt) < minReplySize {
		return nil, ErrShortReply
	}
	// chaddr 字段只有 16 字节
	if pkt[2] > 16 {
		return nil, fmt.Errorf("%w: hardware length %d", ErrMalformed, pkt[2])
	}
	var d layers.DHCPv4
	if err := d.DecodeFromBytes(pkt, gopacket.NilDecodeFeedback); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &d, nil
}

// ParseReply 解码应答并提取 SLP 信息
func ParseReply(pkt []byte) (*Info, error) {
	d, err := DecodeReply(pkt)
	if err != nil {
		return nil, err
	}
	return ParseOptions(d.Options), nil
}

func parseDAOption(info *Info, val []byte) {
	if len(val) == 0 {
		return
	}
	info.DAMandatory = val[0] != 0
	for val = val[1:]; len(val) >= 4; val = val[4:] {
		addr := netip.AddrFrom4([4]byte(val[:4]))
		if addr.IsUnspecified() {
			continue
		}
		info.DAs = append(info.DAs, addr)
	}
}

func parseScopeOption(info *Info, val []byte) {
	if len(val) == 0 {
		return
	}
	info.ScopeMandatory = val[0] != 0
	scopes := val[1:]
	if i := bytes.IndexByte(scopes, 0); i >= 0 {
		scopes = scopes[:i]
	}
	info.Scopes = string(scopes)
}
