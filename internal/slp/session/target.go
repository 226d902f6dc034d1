package session

import (
	"context"
	"errors"
	"net/netip"

	"github.com/dep2p/go-slp/config"
	"github.com/dep2p/go-slp/internal/slp/knownda"
	"github.com/dep2p/go-slp/internal/slp/transport"
	"github.com/dep2p/go-slp/internal/slp/wire"
	"github.com/dep2p/go-slp/pkg/types"
)

// attempt 在多次尝试之间转发应答并截留引擎的终止调用，
// 由句柄在全部尝试结束后投递唯一一次终止调用
type attempt struct {
	cb      transport.Callback
	replies int
	stopped bool
}

func (a *attempt) callback(reply *wire.Message, _ error) transport.Verdict {
	if reply == nil || a.stopped {
		return transport.Stop
	}
	a.replies++
	if a.cb(reply, nil) == transport.Stop {
		a.stopped = true
		return transport.Stop
	}
	return transport.Continue
}

// finish 投递终止调用；err 为 nil 时投递 types.ErrLastCall
func (a *attempt) finish(err error) error {
	if err == nil {
		a.cb(nil, types.ErrLastCall)
		return nil
	}
	a.cb(nil, err)
	return err
}

// query 发送查询类请求：缓存的 DA 连接 → KnownDA → 多播
//
// 句柄指定了单播节点时只询问该节点。
func (h *Handle) query(ctx context.Context, scopes string, body wire.Body, cb transport.Callback) error {
	a := &attempt{cb: cb}
	req := &transport.Request{Body: body, LangTag: h.lang, Interfaces: h.ifaces}

	if h.unicast.IsValid() {
		return a.finish(h.engine.Unicast(ctx, h.unicast, req, a.callback))
	}

	if h.da.covers(scopes) {
		err := h.engine.Exchange(ctx, h.da.conn, req, a.callback)
		if err == nil {
			return a.finish(nil)
		}
		h.dropDA(err)
		if a.replies > 0 || ctx.Err() != nil {
			return a.finish(err)
		}
		return a.finish(h.engine.Multicast(ctx, req, a.callback))
	}
	_ = h.da.close()

	conn, da, err := h.cache.Connect(ctx, scopes)
	switch {
	case err == nil:
		h.da = cachedConn{conn: conn, peer: da.Peer, scopes: da.Scopes}
		err = h.engine.Exchange(ctx, conn, req, a.callback)
		if err == nil {
			return a.finish(nil)
		}
		h.dropDA(err)
		if a.replies > 0 || ctx.Err() != nil {
			return a.finish(err)
		}
	case ctx.Err() != nil:
		return a.finish(ctx.Err())
	case !errors.Is(err, knownda.ErrNoDA):
		log.Debug("连接 DA 失败，改用多播", "id", h.id, "err", err)
	}
	return a.finish(h.engine.Multicast(ctx, req, a.callback))
}

// dropDA 丢弃失败的 DA 连接并把 DA 标记为不可达
func (h *Handle) dropDA(err error) {
	peer := h.da.peer
	log.Debug("DA 连接失败", "id", h.id, "peer", peer, "err", err)
	_ = h.da.close()
	if peer.IsValid() {
		h.cache.MarkBad(peer.Addr())
	}
}

// register 发送注册类请求：缓存的 SA 连接 → 本机 slpd → KnownDA
//
// 注册不使用多播；没有可用目标时返回 types.NetworkInitFailed。
func (h *Handle) register(ctx context.Context, op, scopes string, body wire.Body) error {
	var ack error
	cb := func(reply *wire.Message, _ error) transport.Verdict {
		if reply == nil {
			return transport.Stop
		}
		if a, ok := reply.Body.(*wire.SrvAck); ok && a.ErrorCode != types.WireOK {
			ack = peerError(op, reply.Peer, a.ErrorCode)
		}
		return transport.Stop
	}
	req := &transport.Request{Body: body, LangTag: h.lang}

	if !h.sa.covers(scopes) {
		_ = h.sa.close()
		if err := h.connectSA(ctx, scopes); err != nil {
			return err
		}
	}
	if err := h.engine.Exchange(ctx, h.sa.conn, req, cb); err != nil {
		log.Debug("SA 连接失败", "id", h.id, "peer", h.sa.peer, "err", err)
		_ = h.sa.close()
		return err
	}
	return ack
}

// connectSA 优先连接本机 slpd，其次连接支持 scopes 的 DA
func (h *Handle) connectSA(ctx context.Context, scopes string) error {
	for _, peer := range h.loopbacks() {
		conn, err := h.engine.Dial(ctx, peer)
		if err == nil {
			h.sa = cachedConn{conn: conn, peer: peer, scopes: scopes}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	conn, da, err := h.cache.Connect(ctx, scopes)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return types.NewError(types.NetworkInitFailed, "connect", errors.Join(ErrNoTarget, err))
	}
	h.sa = cachedConn{conn: conn, peer: da.Peer, scopes: da.Scopes}
	return nil
}

func (h *Handle) loopbacks() []netip.AddrPort {
	var out []netip.AddrPort
	if h.props.Bool(config.KeyUseIPv6) {
		out = append(out, netip.AddrPortFrom(netip.IPv6Loopback(), types.ReservedPort))
	}
	if h.props.Bool(config.KeyUseIPv4) {
		out = append(out, netip.AddrPortFrom(netip.AddrFrom4([4]byte{127, 0, 0, 1}), types.ReservedPort))
	}
	return out
}

// peerError 对端返回的线路错误码
func peerError(op string, peer netip.AddrPort, code types.WireError) error {
	if peer.IsValid() {
		op += " " + peer.String()
	}
	return types.NewError(code.Code(), op, nil)
}
