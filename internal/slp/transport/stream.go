package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/netip"
	"time"

	"github.com/dep2p/go-slp/internal/slp/wire"
	"github.com/dep2p/go-slp/pkg/types"
)

// MaxStreamReply 流应答长度上限
const MaxStreamReply = 64 * 1024

// ErrXIDMismatch 流应答的 XID 与请求不同
var ErrXIDMismatch = errors.New("transport: reply xid mismatch")

// Stream 通过新建的 TCP 连接完成一次请求/应答
func (e *Engine) Stream(ctx context.Context, peer netip.AddrPort, req *Request, cb Callback) error {
	if err := req.validate(cb); err != nil {
		return err
	}
	wait := PlanFor(ClassUnicast, e.props).First()
	conn, err := e.dial(ctx, peer, wait)
	if err != nil {
		return e.finish(cb, netError("stream", err))
	}
	defer conn.Close()
	return e.exchangeOn(ctx, conn, req, cb, wait)
}

// Exchange 在已建立的流连接上完成一次请求/应答，连接不会被关闭
//
// 返回错误时调用方应丢弃该连接。
func (e *Engine) Exchange(ctx context.Context, conn net.Conn, req *Request, cb Callback) error {
	if err := req.validate(cb); err != nil {
		return err
	}
	return e.exchangeOn(ctx, conn, req, cb, PlanFor(ClassUnicast, e.props).First())
}

// Dial 建立到 peer 的 TCP 连接，超时为单播计划的第一个等待时间
func (e *Engine) Dial(ctx context.Context, peer netip.AddrPort) (net.Conn, error) {
	conn, err := e.dial(ctx, peer, PlanFor(ClassUnicast, e.props).First())
	if err != nil {
		return nil, netError("dial", err)
	}
	return conn, nil
}

func (e *Engine) dial(ctx context.Context, peer netip.AddrPort, wait time.Duration) (net.Conn, error) {
	if wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}
	return e.network.DialStream(ctx, peer)
}

func (e *Engine) exchangeOn(ctx context.Context, conn net.Conn, req *Request, cb Callback, wait time.Duration) error {
	msg := wire.NewMessage(req.Body, e.xids.Next(), req.LangTag, requestFlags(req.Body, false))
	data, err := wire.Encode(msg)
	if err != nil {
		return e.finish(cb, err)
	}

	reply, err := e.roundTrip(ctx, conn, data, msg.Header, wait)
	if err != nil {
		return e.finish(cb, err)
	}
	if cb(reply, nil) == Continue && req.Multi {
		if err := e.drain(ctx, conn, msg.Header, wait, cb); err != nil {
			return e.finish(cb, err)
		}
	}
	cb(nil, types.ErrLastCall)
	return nil
}

// drain 读取同一连接上的后续应答
//
// 对端关闭或等待超时视为正常结束；只有 ctx 结束才返回错误。
func (e *Engine) drain(ctx context.Context, conn net.Conn, h wire.Header, wait time.Duration, cb Callback) error {
	for {
		reply, err := e.readReply(ctx, conn, h, wait)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			log.Debug("流应答结束", "xid", h.XID, "err", err)
			return nil
		}
		if cb(reply, nil) == Stop {
			return nil
		}
	}
}

// streamOnce 拨号、发送、接收后关闭连接
func (e *Engine) streamOnce(ctx context.Context, peer netip.AddrPort, data []byte, h wire.Header, wait time.Duration) (*wire.Message, error) {
	conn, err := e.dial(ctx, peer, wait)
	if err != nil {
		return nil, netError("stream", err)
	}
	defer conn.Close()
	return e.roundTrip(ctx, conn, data, h, wait)
}

// roundTrip 写出请求并读取一条应答
func (e *Engine) roundTrip(ctx context.Context, conn net.Conn, data []byte, h wire.Header, wait time.Duration) (*wire.Message, error) {
	defer guard(ctx, conn, wait)()

	if _, err := conn.Write(data); err != nil {
		return nil, netError("stream write", ctxOr(ctx, err))
	}
	e.reporter.LogSent(h.Function, addrPortOf(conn.RemoteAddr()), len(data))
	return e.read(ctx, conn, h)
}

// readReply 在已发送请求的连接上再读取一条应答
func (e *Engine) readReply(ctx context.Context, conn net.Conn, h wire.Header, wait time.Duration) (*wire.Message, error) {
	defer guard(ctx, conn, wait)()
	return e.read(ctx, conn, h)
}

// guard 为连接设置截止时间，ctx 取消时让阻塞的读写立即返回
func guard(ctx context.Context, conn net.Conn, wait time.Duration) func() {
	if wait > 0 {
		_ = conn.SetDeadline(time.Now().Add(wait))
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	return func() {
		stop()
		if wait > 0 {
			_ = conn.SetDeadline(time.Time{})
		}
	}
}

// read 读取一条按 24 位长度分帧的应答
func (e *Engine) read(ctx context.Context, conn net.Conn, h wire.Header) (*wire.Message, error) {
	peer := addrPortOf(conn.RemoteAddr())

	var head [5]byte
	if _, err := io.ReadFull(conn, head[:]); err != nil {
		return nil, netError("stream read", ctxOr(ctx, err))
	}
	n, _ := wire.PeekLength(head[:])
	if n > MaxStreamReply {
		return nil, types.NewError(types.NetworkError, "stream read", ErrStreamTooLarge)
	}
	if n < wire.MinMessageSize {
		return nil, types.NewError(types.ParseError, "stream read", wire.ErrTooShort)
	}
	buf := make([]byte, n)
	copy(buf, head[:])
	if _, err := io.ReadFull(conn, buf[len(head):]); err != nil {
		return nil, netError("stream read", ctxOr(ctx, err))
	}
	e.reporter.LogRecv(types.FunctionID(buf[1]), peer, n)

	reply, err := wire.Decode(buf, peer)
	if err != nil {
		return nil, err
	}
	if reply.Header.XID != h.XID {
		return nil, types.NewError(types.NetworkError, "stream read", ErrXIDMismatch)
	}
	return reply, nil
}

// ctxOr 若 ctx 已结束则返回 ctx 的错误
func ctxOr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func addrPortOf(a net.Addr) netip.AddrPort {
	switch v := a.(type) {
	case *net.TCPAddr:
		ap := v.AddrPort()
		return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
	case *net.UDPAddr:
		ap := v.AddrPort()
		return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
	}
	if a == nil {
		return netip.AddrPort{}
	}
	ap, _ := netip.ParseAddrPort(a.String())
	return ap
}
