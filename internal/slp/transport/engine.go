package transport

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	tec "github.com/jbenet/go-temp-err-catcher"
	"go.uber.org/multierr"

	"github.com/dep2p/go-slp/config"
	"github.com/dep2p/go-slp/internal/slp/metrics"
	"github.com/dep2p/go-slp/internal/slp/wire"
	"github.com/dep2p/go-slp/internal/util/addrutil"
	"github.com/dep2p/go-slp/internal/util/logger"
	"github.com/dep2p/go-slp/pkg/types"
)

var log = logger.Logger("slp.transport")

const (
	// maxDatagram UDP 数据报上限
	maxDatagram = 65535

	// inboxSize 接收队列长度
	inboxSize = 32
)

// ============================================================================
//                              回调
// ============================================================================

// Verdict 回调返回值
type Verdict int

const (
	// Continue 继续收集应答
	Continue Verdict = iota
	// Stop 不再需要应答
	Stop
)

// Callback 应答回调
//
// 非终止调用为 (reply, nil)。终止调用恰好一次，reply 为 nil，
// err 为 types.ErrLastCall 或操作失败的原因；终止调用的返回值被忽略。
type Callback func(reply *wire.Message, err error) Verdict

// Request 一次交换的请求
type Request struct {
	// Body 请求消息体；PRList 由引擎在每次发送前改写
	Body wire.Body
	// LangTag 语言标签
	LangTag string
	// Discovery DA 发现：使用 DA 发现计划与 DA 多播组
	Discovery bool
	// Multi 流连接上可能有多条应答（slpd 返回的 DA 列表），
	// 持续读取直到回调返回 Stop、对端关闭或等待超时
	Multi bool
	// Interfaces 多播出接口地址列表，非空时取代 net.slp.interfaces
	Interfaces string
}

func (r *Request) validate(cb Callback) error {
	if cb == nil {
		return types.NewError(types.ParameterBad, "exchange", ErrNilCallback)
	}
	if r == nil || r.Body == nil {
		return types.NewError(types.ParameterBad, "exchange", wire.ErrNoBody)
	}
	return nil
}

// requestFlags 多播/广播请求带 MCAST，注册带 FRESH
func requestFlags(body wire.Body, mcast bool) types.Flags {
	var f types.Flags
	if mcast {
		f |= types.FlagMcast
	}
	if body.Function() == types.FuncSrvReg {
		f |= types.FlagFresh
	}
	return f
}

// ============================================================================
//                              Engine
// ============================================================================

// Engine 请求/应答交换引擎，可被多个句柄并发使用
type Engine struct {
	props    *config.Properties
	network  Network
	clock    clock.Clock
	reporter metrics.Reporter
	xids     *wire.XIDSource
}

// Option 引擎选项
type Option func(*Engine)

// WithNetwork 替换套接字实现
func WithNetwork(n Network) Option {
	return func(e *Engine) { e.network = n }
}

// WithClock 替换时钟
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithReporter 设置流量统计
func WithReporter(r metrics.Reporter) Option {
	return func(e *Engine) { e.reporter = r }
}

// WithXIDSource 设置事务 ID 生成器
func WithXIDSource(s *wire.XIDSource) Option {
	return func(e *Engine) { e.xids = s }
}

// NewEngine 创建引擎
func NewEngine(props *config.Properties, opts ...Option) *Engine {
	e := &Engine{
		props:    props,
		network:  NewUDPNetwork(),
		clock:    clock.New(),
		reporter: metrics.NopReporter{},
		xids:     wire.NewXIDSource(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Properties 返回引擎使用的属性
func (e *Engine) Properties() *config.Properties {
	return e.props
}

// Network 返回引擎使用的套接字实现
func (e *Engine) Network() Network {
	return e.network
}

// ============================================================================
//                              公开操作
// ============================================================================

// Multicast 向多播组（或广播地址）发送请求并收集所有应答
//
// 没有应答不是错误：终止调用为 ErrLastCall。
func (e *Engine) Multicast(ctx context.Context, req *Request, cb Callback) error {
	if err := req.validate(cb); err != nil {
		return err
	}

	class := ClassMulticast
	broadcast := e.props.Bool(config.KeyIsBroadcastOnly)
	switch {
	case req.Discovery:
		class = ClassDADiscovery
	case broadcast:
		class = ClassBroadcast
	}

	d := datagramOp{
		op:        "multicast",
		dests:     Groups(req.Body, req.Discovery, e.props),
		plan:      PlanFor(class, e.props),
		mcast:     true,
		broadcast: broadcast,
	}
	if len(d.dests) == 0 {
		return e.finish(cb, types.NewError(types.NetworkInitFailed, d.op, ErrNoDestination))
	}
	return e.datagram(ctx, d, req, cb)
}

// Unicast 以 UDP 向单个节点发送请求，收到第一个应答即结束
//
// 计划耗尽仍无应答时终止调用为 NetworkTimedOut。
func (e *Engine) Unicast(ctx context.Context, peer netip.AddrPort, req *Request, cb Callback) error {
	if err := req.validate(cb); err != nil {
		return err
	}
	class := ClassUnicast
	if req.Discovery {
		class = ClassDADiscovery
	}
	return e.datagram(ctx, datagramOp{
		op:      "unicast",
		dests:   []netip.AddrPort{peer},
		plan:    PlanFor(class, e.props),
		unicast: true,
	}, req, cb)
}

// ============================================================================
//                              数据报算法
// ============================================================================

type datagramOp struct {
	op        string
	dests     []netip.AddrPort
	plan      Plan
	mcast     bool
	broadcast bool
	unicast   bool
}

type packet struct {
	data []byte
	from netip.AddrPort
}

// exchange 一次数据报交换的状态
type exchange struct {
	e       *Engine
	d       datagramOp
	req     *Request
	cb      Callback
	xid     uint16
	flags   types.Flags
	pr      *prList
	replies int
	stopped bool
}

func (e *Engine) datagram(ctx context.Context, d datagramOp, req *Request, cb Callback) error {
	conns, err := e.openConns(ctx, d, req)
	if err != nil {
		return e.finish(cb, err)
	}

	inbox := make(chan packet, inboxSize)
	done := make(chan struct{})
	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c PacketConn) {
			defer wg.Done()
			e.readLoop(c, inbox, done)
		}(c)
	}
	defer func() {
		close(done)
		for _, c := range conns {
			c.Close()
		}
		wg.Wait()
	}()

	mtu := e.props.Int(config.KeyMTU)
	x := &exchange{
		e:     e,
		d:     d,
		req:   req,
		cb:    cb,
		xid:   e.xids.Next(),
		flags: requestFlags(req.Body, d.mcast),
		pr:    newPRList(mtu),
	}
	carrier, hasPR := req.Body.(wire.PRListCarrier)

	var fatal, ctxErr error
	for i, wait := range d.plan.Attempts() {
		if hasPR {
			carrier.SetPreviousResponders(x.pr.String())
		}
		msg := wire.NewMessage(req.Body, x.xid, req.LangTag, x.flags)
		if size := wire.Size(msg); size > mtu {
			// 首次发送即超过 MTU 为错误；之后 PRList 增长导致超限则以已有结果结束
			if i == 0 {
				fatal = types.NewError(types.BufferOverflow, d.op, ErrExceedsMTU)
			}
			log.Debug("请求超过 MTU", "xid", x.xid, "size", size, "mtu", mtu, "attempt", i)
			break
		}
		data, err := wire.Encode(msg)
		if err != nil {
			fatal = err
			break
		}
		if err := e.sendAll(conns, d.dests, data, msg.Header.Function); err != nil {
			fatal = types.NewError(types.NetworkError, d.op, err)
			break
		}

		if ctxErr = x.collect(ctx, inbox, wait); ctxErr != nil {
			break
		}
		if x.stopped || (d.unicast && x.replies > 0) {
			break
		}
	}

	log.Debug("数据报交换结束", "op", d.op, "xid", x.xid, "replies", x.replies, "stopped", x.stopped)

	switch {
	case fatal != nil:
		return e.finish(cb, fatal)
	case ctxErr != nil:
		cb(nil, types.ErrLastCall)
		return ctxErr
	case d.unicast && x.replies == 0:
		return e.finish(cb, types.NewError(types.NetworkTimedOut, d.op, ErrNoReply))
	}
	cb(nil, types.ErrLastCall)
	return nil
}

// finish 交付失败的终止调用
func (e *Engine) finish(cb Callback, err error) error {
	cb(nil, err)
	return err
}

// openConns 为目标涉及的每个地址族打开一个套接字
func (e *Engine) openConns(ctx context.Context, d datagramOp, req *Request) (map[string]PacketConn, error) {
	opts := PacketOptions{
		MulticastTTL: e.props.Int(config.KeyMulticastTTL),
		Broadcast:    d.broadcast,
	}
	if d.mcast {
		list := req.Interfaces
		if list == "" {
			list = e.props.Get(config.KeyInterfaces)
		}
		ifaces, err := addrutil.MulticastInterfaces(addrutil.ParseAddrList(list))
		if err != nil {
			log.Warn("解析接口列表失败，使用默认路由", "interfaces", list, "err", err)
		}
		opts.Interfaces = ifaces
	}

	conns := make(map[string]PacketConn, 2)
	var errs error
	for _, dst := range d.dests {
		network := familyOf(dst.Addr())
		if _, ok := conns[network]; ok {
			continue
		}
		c, err := e.network.ListenPacket(ctx, network, opts)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		conns[network] = c
	}
	if len(conns) == 0 {
		return nil, types.NewError(types.NetworkInitFailed, d.op, multierr.Append(ErrNoSocket, errs))
	}
	if errs != nil {
		log.Debug("部分地址族不可用", "err", errs)
	}
	return conns, nil
}

func familyOf(a netip.Addr) string {
	if a.Unmap().Is4() {
		return "udp4"
	}
	return "udp6"
}

// sendAll 向所有目标发送；全部失败才返回错误
func (e *Engine) sendAll(conns map[string]PacketConn, dests []netip.AddrPort, data []byte, fn types.FunctionID) error {
	var errs error
	sent := 0
	for _, dst := range dests {
		c, ok := conns[familyOf(dst.Addr())]
		if !ok {
			continue
		}
		if err := c.WriteTo(data, dst); err != nil {
			errs = multierr.Append(errs, err)
			log.Debug("发送失败", "dst", dst, "err", err)
			continue
		}
		e.reporter.LogSent(fn, dst, len(data))
		sent++
	}
	if sent == 0 {
		if errs == nil {
			errs = ErrNoDestination
		}
		return errs
	}
	return nil
}

// readLoop 把收到的数据报送入 inbox，直到套接字关闭
func (e *Engine) readLoop(c PacketConn, inbox chan<- packet, done <-chan struct{}) {
	var catcher tec.TempErrCatcher
	buf := make([]byte, maxDatagram)
	for {
		n, from, err := c.ReadFrom(buf)
		if err != nil {
			if catcher.IsTemporary(err) {
				continue
			}
			return
		}
		p := packet{data: append([]byte(nil), buf[:n]...), from: from}
		select {
		case inbox <- p:
		case <-done:
			return
		}
	}
}

// collect 在一次等待时间内处理应答，返回 ctx 的错误
func (x *exchange) collect(ctx context.Context, inbox <-chan packet, wait time.Duration) error {
	timer := x.e.clock.Timer(wait)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case p := <-inbox:
			if x.handle(ctx, p) {
				return nil
			}
		}
	}
}

// handle 处理一个数据报，返回是否结束本次交换
func (x *exchange) handle(ctx context.Context, p packet) bool {
	rep := x.e.reporter
	xid, ok := wire.PeekXID(p.data)
	if !ok {
		rep.LogDropped(metrics.DropParse)
		return false
	}
	if xid != x.xid {
		rep.LogDropped(metrics.DropXID)
		log.Debug("丢弃 XID 不匹配的应答", "want", x.xid, "got", xid, "peer", p.from)
		return false
	}
	if n, ok := wire.PeekLength(p.data); ok && n > len(p.data) {
		rep.LogDropped(metrics.DropOversize)
		log.Debug("丢弃不完整的数据报", "peer", p.from, "length", n, "received", len(p.data))
		return false
	}
	msg, err := wire.Decode(p.data, p.from)
	if err != nil {
		rep.LogDropped(metrics.DropParse)
		log.Debug("丢弃无法解析的应答", "peer", p.from, "err", err)
		return false
	}
	rep.LogRecv(msg.Header.Function, p.from, len(p.data))

	if msg.Header.Flags.Has(types.FlagOverflow) {
		if full := x.refetch(ctx, p.from); full != nil {
			msg = full
		}
	}

	x.replies++
	if x.cb(msg, nil) == Stop {
		x.stopped = true
		return true
	}
	x.pr.add(p.from.Addr())
	return x.d.unicast
}

// refetch 应答被截断时改用 TCP 向同一节点重新请求，失败返回 nil
func (x *exchange) refetch(ctx context.Context, peer netip.AddrPort) *wire.Message {
	msg := wire.NewMessage(x.req.Body, x.e.xids.Next(), x.req.LangTag, x.flags&^types.FlagMcast)
	data, err := wire.Encode(msg)
	if err != nil {
		return nil
	}
	wait := x.e.props.Millis(config.KeyUnicastMaximumWait)
	reply, err := x.e.streamOnce(ctx, peer, data, msg.Header, wait)
	if err != nil {
		log.Debug("截断应答的 TCP 重取失败", "peer", peer, "err", err)
		return nil
	}
	return reply
}

// ============================================================================
//                              错误分类
// ============================================================================

// netError 将底层网络错误映射为 NetworkTimedOut 或 NetworkError
func netError(op string, err error) error {
	var se *types.Error
	if errors.As(err, &se) {
		return err
	}
	if types.CodeOf(err) == types.NetworkTimedOut {
		return types.NewError(types.NetworkTimedOut, op, err)
	}
	return types.NewError(types.NetworkError, op, err)
}
