package transport

import (
	"net/netip"
	"strings"
)

// prList 已应答节点列表
type prList struct {
	mtu  int
	list strings.Builder
	seen map[netip.Addr]struct{}
}

func newPRList(mtu int) *prList {
	return &prList{mtu: mtu, seen: make(map[netip.Addr]struct{})}
}

// add 追加节点地址；已存在或追加后不满足 len+len(addr)+1 < MTU 时忽略
func (p *prList) add(addr netip.Addr) bool {
	addr = addr.Unmap()
	if !addr.IsValid() {
		return false
	}
	if _, ok := p.seen[addr]; ok {
		return false
	}
	s := addr.WithZone("").String()
	if p.list.Len()+len(s)+1 >= p.mtu {
		return false
	}
	if p.list.Len() > 0 {
		p.list.WriteByte(',')
	}
	p.list.WriteString(s)
	p.seen[addr] = struct{}{}
	return true
}

func (p *prList) String() string {
	return p.list.String()
}
