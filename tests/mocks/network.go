package mocks

import (
	"context"
	"errors"
	"io"
	"net"
	"net/netip"
	"strings"
	"sync"

	"github.com/dep2p/go-slp/internal/slp/transport"
	"github.com/dep2p/go-slp/internal/slp/wire"
	"github.com/dep2p/go-slp/pkg/types"
)

// ErrUnreachable 目标地址上没有节点
var ErrUnreachable = errors.New("mock: host unreachable")

// Datagram 一条被发送的数据报
type Datagram struct {
	Dst     netip.AddrPort
	Message *wire.Message
}

// Handler 为请求生成应答消息体；返回 nil 表示不应答
type Handler func(req *wire.Message) wire.Body

// MockNode 模拟网络上的一个 SLP 节点
type MockNode struct {
	Addr netip.Addr

	// Handler 数据报与流请求共用的处理函数
	Handler Handler

	// ReplyFlags 数据报应答附加的标志
	ReplyFlags types.Flags

	// MangleFunc 在投递前改写编码后的数据报应答，可返回多条
	MangleFunc func(reply []byte) [][]byte

	// IgnorePRList 为 true 时即使出现在 PRList 中也应答
	IgnorePRList bool

	// NoStream 为 true 时拒绝 TCP 连接
	NoStream bool

	mu       sync.Mutex
	requests []*wire.Message
}

// Requests 返回节点收到的请求副本
func (n *MockNode) Requests() []*wire.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*wire.Message(nil), n.requests...)
}

func (n *MockNode) record(m *wire.Message) {
	n.mu.Lock()
	n.requests = append(n.requests, m)
	n.mu.Unlock()
}

// MockNetwork 模拟 transport.Network，数据报与流都在内存中投递
type MockNetwork struct {
	mu    sync.Mutex
	nodes []*MockNode
	sent  []Datagram
	conns []*MockPacketConn
	opts  []transport.PacketOptions

	// ListenErr 按 "udp4"/"udp6" 注入 ListenPacket 失败
	ListenErr map[string]error

	// DialFunc 覆盖 DialStream
	DialFunc func(ctx context.Context, peer netip.AddrPort) (net.Conn, error)

	// 调用记录
	ListenCalls int
	DialCalls   int
}

var _ transport.Network = (*MockNetwork)(nil)

// NewMockNetwork 创建空网络
func NewMockNetwork() *MockNetwork {
	return &MockNetwork{ListenErr: make(map[string]error)}
}

// AddNode 添加节点
func (m *MockNetwork) AddNode(addr string, h Handler) *MockNode {
	n := &MockNode{Addr: netip.MustParseAddr(addr), Handler: h}
	m.mu.Lock()
	m.nodes = append(m.nodes, n)
	m.mu.Unlock()
	return n
}

// Sent 返回所有已发送的数据报
func (m *MockNetwork) Sent() []Datagram {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Datagram(nil), m.sent...)
}

// SentTo 统计发往 dst 的数据报数
func (m *MockNetwork) SentTo(dst netip.AddrPort) int {
	n := 0
	for _, d := range m.Sent() {
		if d.Dst == dst {
			n++
		}
	}
	return n
}

// OpenConns 返回尚未关闭的套接字数
func (m *MockNetwork) OpenConns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.conns {
		if !c.isClosed() {
			n++
		}
	}
	return n
}

// ListenOptions 返回每次 ListenPacket 收到的选项
func (m *MockNetwork) ListenOptions() []transport.PacketOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]transport.PacketOptions(nil), m.opts...)
}

// ListenPacket 实现 transport.Network
func (m *MockNetwork) ListenPacket(_ context.Context, network string, opts transport.PacketOptions) (transport.PacketConn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListenCalls++
	m.opts = append(m.opts, opts)
	if err := m.ListenErr[network]; err != nil {
		return nil, err
	}
	c := &MockPacketConn{
		net:    m,
		inbox:  make(chan packet, 256),
		closed: make(chan struct{}),
	}
	m.conns = append(m.conns, c)
	return c, nil
}

// DialStream 实现 transport.Network
//
// 连接另一端由节点的 Handler 处理一条请求。
func (m *MockNetwork) DialStream(ctx context.Context, peer netip.AddrPort) (net.Conn, error) {
	m.mu.Lock()
	m.DialCalls++
	dial := m.DialFunc
	m.mu.Unlock()
	if dial != nil {
		return dial(ctx, peer)
	}

	node := m.nodeAt(peer.Addr())
	if node == nil || node.NoStream {
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: ErrUnreachable}
	}
	client, server := net.Pipe()
	go serveStream(server, node)
	return &pipeConn{Conn: client, remote: peer}, nil
}

func (m *MockNetwork) nodeAt(a netip.Addr) *MockNode {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.nodes {
		if n.Addr == a.Unmap() {
			return n
		}
	}
	return nil
}

// deliver 把数据报交给目标节点并把应答放入发送方的收件箱
func (m *MockNetwork) deliver(from *MockPacketConn, p []byte, dst netip.AddrPort) {
	req, err := wire.Decode(p, netip.AddrPort{})
	m.mu.Lock()
	m.sent = append(m.sent, Datagram{Dst: dst, Message: req})
	nodes := append([]*MockNode(nil), m.nodes...)
	m.mu.Unlock()
	if err != nil {
		return
	}

	group := dst.Addr().IsMulticast() || dst.Addr() == transport.BroadcastV4.Addr()
	for _, n := range nodes {
		if !group && n.Addr != dst.Addr().Unmap() {
			continue
		}
		if group && !n.IgnorePRList && inPRList(req, n.Addr) {
			continue
		}
		n.record(req)
		if n.Handler == nil {
			continue
		}
		body := n.Handler(req)
		if body == nil {
			continue
		}
		reply := wire.NewMessage(body, req.Header.XID, req.Header.LangTag, n.ReplyFlags)
		data, err := wire.Encode(reply)
		if err != nil {
			continue
		}
		out := [][]byte{data}
		if n.MangleFunc != nil {
			out = n.MangleFunc(data)
		}
		for _, d := range out {
			from.push(packet{data: d, from: netip.AddrPortFrom(n.Addr, types.ReservedPort)})
		}
	}
}

func inPRList(req *wire.Message, a netip.Addr) bool {
	c, ok := req.Body.(wire.PRListCarrier)
	if !ok {
		return false
	}
	for _, s := range strings.Split(c.PreviousResponders(), ",") {
		if s == a.String() {
			return true
		}
	}
	return false
}

// ============================================================================
//                              MockPacketConn
// ============================================================================

type packet struct {
	data []byte
	from netip.AddrPort
}

// MockPacketConn 内存数据报套接字
type MockPacketConn struct {
	net   *MockNetwork
	inbox chan packet

	closeOnce sync.Once
	closed    chan struct{}

	// WriteErr 非空时 WriteTo 返回该错误
	WriteErr error
}

// Inject 直接向套接字投递一条数据报
func (c *MockPacketConn) Inject(data []byte, from netip.AddrPort) {
	c.push(packet{data: data, from: from})
}

func (c *MockPacketConn) push(p packet) {
	select {
	case c.inbox <- p:
	case <-c.closed:
	}
}

// ReadFrom 实现 transport.PacketConn
func (c *MockPacketConn) ReadFrom(p []byte) (int, netip.AddrPort, error) {
	select {
	case pkt := <-c.inbox:
		return copy(p, pkt.data), pkt.from, nil
	case <-c.closed:
		return 0, netip.AddrPort{}, net.ErrClosed
	}
}

// WriteTo 实现 transport.PacketConn
func (c *MockPacketConn) WriteTo(p []byte, dst netip.AddrPort) error {
	if c.isClosed() {
		return net.ErrClosed
	}
	if c.WriteErr != nil {
		return c.WriteErr
	}
	c.net.deliver(c, append([]byte(nil), p...), dst)
	return nil
}

// Close 实现 transport.PacketConn
func (c *MockPacketConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *MockPacketConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// ============================================================================
//                              流
// ============================================================================

// pipeConn 为 net.Pipe 提供真实的对端地址
type pipeConn struct {
	net.Conn
	remote netip.AddrPort
}

func (c *pipeConn) RemoteAddr() net.Addr {
	return net.TCPAddrFromAddrPort(c.remote)
}

// serveStream 按 24 位长度读取请求并写回应答，直到连接关闭
func serveStream(conn net.Conn, node *MockNode) {
	defer conn.Close()
	for {
		req, err := readFrame(conn)
		if err != nil {
			return
		}
		node.record(req)
		if node.Handler == nil {
			return
		}
		body := node.Handler(req)
		if body == nil {
			return
		}
		if err := writeReply(conn, req, body); err != nil {
			return
		}
	}
}

// MultiReplyDialer 返回可用作 MockNetwork.DialFunc 的拨号函数
//
// 每条连接读取一条请求，按顺序写回 bodies 的应答后关闭。
func MultiReplyDialer(bodies ...wire.Body) func(context.Context, netip.AddrPort) (net.Conn, error) {
	return func(_ context.Context, peer netip.AddrPort) (net.Conn, error) {
		client, server := net.Pipe()
		go func() {
			defer server.Close()
			req, err := readFrame(server)
			if err != nil {
				return
			}
			for _, b := range bodies {
				if err := writeReply(server, req, b); err != nil {
					return
				}
			}
		}()
		return &pipeConn{Conn: client, remote: peer}, nil
	}
}

func readFrame(conn net.Conn) (*wire.Message, error) {
	var head [5]byte
	if _, err := io.ReadFull(conn, head[:]); err != nil {
		return nil, err
	}
	n, _ := wire.PeekLength(head[:])
	if n < len(head) {
		return nil, wire.ErrTooShort
	}
	buf := make([]byte, n)
	copy(buf, head[:])
	if _, err := io.ReadFull(conn, buf[len(head):]); err != nil {
		return nil, err
	}
	return wire.Decode(buf, netip.AddrPort{})
}

func writeReply(conn net.Conn, req *wire.Message, body wire.Body) error {
	data, err := wire.Encode(wire.NewMessage(body, req.Header.XID, req.Header.LangTag, 0))
	if err != nil {
		return err
	}
	_, err = conn.Write(data)
	return err
}
