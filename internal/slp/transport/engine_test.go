package transport_test

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-slp/config"
	"github.com/dep2p/go-slp/internal/slp/metrics"
	"github.com/dep2p/go-slp/internal/slp/transport"
	"github.com/dep2p/go-slp/internal/slp/wire"
	"github.com/dep2p/go-slp/pkg/types"
	"github.com/dep2p/go-slp/tests/mocks"
)

// ============================================================================
//                              测试辅助
// ============================================================================

// testProps 使用短超时的属性
func testProps(kv ...string) *config.Properties {
	p := config.NewProperties()
	p.Set(config.KeyMulticastTimeouts, "20,20,20")
	p.Set(config.KeyMulticastMaximumWait, "100")
	p.Set(config.KeyUnicastTimeouts, "100,100")
	p.Set(config.KeyUnicastMaximumWait, "500")
	p.Set(config.KeyDADiscoveryTimeouts, "20,20")
	p.Set(config.KeyDADiscoveryMaximumWait, "100")
	for i := 0; i+1 < len(kv); i += 2 {
		p.Set(kv[i], kv[i+1])
	}
	return p
}

// recorder 记录回调
type recorder struct {
	mu       sync.Mutex
	replies  []*wire.Message
	terminal []error

	// verdict 按已收到的应答数决定返回值
	verdict func(n int) transport.Verdict
}

func (r *recorder) callback(reply *wire.Message, err error) transport.Verdict {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reply == nil {
		r.terminal = append(r.terminal, err)
		return transport.Stop
	}
	r.replies = append(r.replies, reply)
	if r.verdict != nil {
		return r.verdict(len(r.replies))
	}
	return transport.Continue
}

func srvRqst(srvType string) *transport.Request {
	return &transport.Request{
		Body:    &wire.SrvRqst{ServiceType: srvType, ScopeList: "DEFAULT"},
		LangTag: "en",
	}
}

func printerSA(addr string) *mocks.MockAgent {
	return mocks.NewMockSA("DEFAULT", mocks.Service{
		URL:      "service:printer:lpr://" + addr,
		Type:     "service:printer:lpr",
		Lifetime: 300,
	})
}

// ============================================================================
//                              多播
// ============================================================================

func TestMulticast_CollectsAllReplies(t *testing.T) {
	network := mocks.NewMockNetwork()
	network.AddNode("10.0.0.1", printerSA("10.0.0.1").Handle)
	network.AddNode("10.0.0.2", printerSA("10.0.0.2").Handle)

	eng := transport.NewEngine(testProps(), transport.WithNetwork(network))
	rec := &recorder{}

	err := eng.Multicast(context.Background(), srvRqst("service:printer"), rec.callback)
	require.NoError(t, err)

	require.Len(t, rec.replies, 2)
	peers := []string{rec.replies[0].Peer.Addr().String(), rec.replies[1].Peer.Addr().String()}
	assert.ElementsMatch(t, []string{"10.0.0.1", "10.0.0.2"}, peers)

	// 恰好一次终止调用
	require.Len(t, rec.terminal, 1)
	assert.True(t, types.IsLastCall(rec.terminal[0]))

	// 所有套接字均已关闭
	assert.Zero(t, network.OpenConns())
}

func TestMulticast_RetransmissionCount(t *testing.T) {
	network := mocks.NewMockNetwork()
	props := testProps(
		config.KeyMulticastTimeouts, "10,20,30,40",
		config.KeyMulticastMaximumWait, "60",
	)
	eng := transport.NewEngine(props, transport.WithNetwork(network))
	rec := &recorder{}

	err := eng.Multicast(context.Background(), srvRqst("service:printer"), rec.callback)
	require.NoError(t, err)

	// 10+20+30 = 60 ≤ 60，第四次超限
	assert.Equal(t, 3, network.SentTo(transport.GroupV4))
	assert.Empty(t, rec.replies)
	require.Len(t, rec.terminal, 1)
	assert.True(t, types.IsLastCall(rec.terminal[0]))
}

func TestMulticast_PreviousResponders(t *testing.T) {
	network := mocks.NewMockNetwork()
	network.AddNode("10.0.0.1", printerSA("10.0.0.1").Handle)

	eng := transport.NewEngine(testProps(), transport.WithNetwork(network))
	rec := &recorder{}

	require.NoError(t, eng.Multicast(context.Background(), srvRqst("service:printer"), rec.callback))

	// 第二次起 PRList 包含已应答节点，节点不再应答
	assert.Len(t, rec.replies, 1)

	sent := network.Sent()
	require.Len(t, sent, 3)
	assert.Equal(t, "", sent[0].Message.Body.(*wire.SrvRqst).PRList)
	assert.Equal(t, "10.0.0.1", sent[1].Message.Body.(*wire.SrvRqst).PRList)
	assert.Equal(t, "10.0.0.1", sent[2].Message.Body.(*wire.SrvRqst).PRList)

	// 所有发送使用同一 XID 并带 MCAST 标志
	for _, d := range sent {
		assert.Equal(t, sent[0].Message.Header.XID, d.Message.Header.XID)
		assert.True(t, d.Message.Header.Flags.Has(types.FlagMcast))
	}
}

func TestMulticast_DropsMismatchedAndGarbage(t *testing.T) {
	network := mocks.NewMockNetwork()
	node := network.AddNode("10.0.0.1", printerSA("10.0.0.1").Handle)
	node.MangleFunc = func(reply []byte) [][]byte {
		wrongXID := append([]byte(nil), reply...)
		wrongXID[10] ^= 0xFF
		garbage := append([]byte(nil), reply[:12]...)
		garbage[0] = 9 // 版本错误
		return [][]byte{wrongXID, garbage, {0x02}}
	}

	counter := metrics.NewTrafficCounter(nil)
	eng := transport.NewEngine(testProps(), transport.WithNetwork(network), transport.WithReporter(counter))
	rec := &recorder{}

	require.NoError(t, eng.Multicast(context.Background(), srvRqst("service:printer"), rec.callback))

	assert.Empty(t, rec.replies)
	require.Len(t, rec.terminal, 1)
	assert.True(t, types.IsLastCall(rec.terminal[0]))

	dropped := counter.Dropped()
	assert.Positive(t, dropped[metrics.DropXID])
	assert.Positive(t, dropped[metrics.DropParse])
	assert.Positive(t, counter.Totals().MessagesOut)
}

func TestMulticast_BufferOverflowOnFirstAttempt(t *testing.T) {
	network := mocks.NewMockNetwork()
	eng := transport.NewEngine(testProps(config.KeyMTU, "64"), transport.WithNetwork(network))
	rec := &recorder{}

	err := eng.Multicast(context.Background(), srvRqst("service:"+strings.Repeat("x", 100)), rec.callback)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrBufferOverflow))

	assert.Empty(t, network.Sent())
	require.Len(t, rec.terminal, 1)
	assert.Equal(t, types.BufferOverflow, types.CodeOf(rec.terminal[0]))
}

func TestMulticast_StopVerdict(t *testing.T) {
	network := mocks.NewMockNetwork()
	network.AddNode("10.0.0.1", printerSA("10.0.0.1").Handle)
	network.AddNode("10.0.0.2", printerSA("10.0.0.2").Handle)

	eng := transport.NewEngine(testProps(), transport.WithNetwork(network))
	rec := &recorder{verdict: func(int) transport.Verdict { return transport.Stop }}

	require.NoError(t, eng.Multicast(context.Background(), srvRqst("service:printer"), rec.callback))

	assert.Len(t, rec.replies, 1)
	// Stop 之后仍交付一次终止调用，且不再重传
	require.Len(t, rec.terminal, 1)
	assert.True(t, types.IsLastCall(rec.terminal[0]))
	assert.Equal(t, 1, network.SentTo(transport.GroupV4))
}

func TestMulticast_DADiscoveryPlan(t *testing.T) {
	network := mocks.NewMockNetwork()
	da := mocks.NewMockDA("10.0.0.5", "DEFAULT")
	network.AddNode("10.0.0.5", da.Handle)

	props := testProps(config.KeyDADiscoveryTimeouts, "20", config.KeyDADiscoveryMaximumWait, "50")
	eng := transport.NewEngine(props, transport.WithNetwork(network))
	rec := &recorder{}

	req := srvRqst(types.DirectoryAgentType)
	req.Discovery = true
	require.NoError(t, eng.Multicast(context.Background(), req, rec.callback))

	require.Len(t, rec.replies, 1)
	adv, ok := rec.replies[0].Body.(*wire.DAAdvert)
	require.True(t, ok)
	assert.Equal(t, "service:directory-agent://10.0.0.5", adv.URL)
	// DA 发现计划只有一次发送
	assert.Equal(t, 1, network.SentTo(transport.GroupV4))
}

func TestMulticast_OverflowRefetchesOverStream(t *testing.T) {
	network := mocks.NewMockNetwork()
	node := network.AddNode("10.0.0.1", printerSA("10.0.0.1").Handle)
	node.ReplyFlags = types.FlagOverflow

	eng := transport.NewEngine(testProps(), transport.WithNetwork(network))
	rec := &recorder{}

	require.NoError(t, eng.Multicast(context.Background(), srvRqst("service:printer"), rec.callback))

	require.Len(t, rec.replies, 1)
	assert.False(t, rec.replies[0].Header.Flags.Has(types.FlagOverflow))
	assert.Equal(t, 1, network.DialCalls)

	// TCP 重取的请求不带 MCAST 标志且使用新的 XID
	reqs := node.Requests()
	require.GreaterOrEqual(t, len(reqs), 2)
	assert.False(t, reqs[1].Header.Flags.Has(types.FlagMcast))
	assert.NotEqual(t, reqs[0].Header.XID, reqs[1].Header.XID)
}

func TestMulticast_OverflowRefetchFailureKeepsTruncated(t *testing.T) {
	network := mocks.NewMockNetwork()
	node := network.AddNode("10.0.0.1", printerSA("10.0.0.1").Handle)
	node.ReplyFlags = types.FlagOverflow
	node.NoStream = true

	eng := transport.NewEngine(testProps(), transport.WithNetwork(network))
	rec := &recorder{}

	require.NoError(t, eng.Multicast(context.Background(), srvRqst("service:printer"), rec.callback))

	require.Len(t, rec.replies, 1)
	assert.True(t, rec.replies[0].Header.Flags.Has(types.FlagOverflow))
}

func TestMulticast_NoSocket(t *testing.T) {
	network := mocks.NewMockNetwork()
	network.ListenErr["udp4"] = errors.New("permission denied")

	eng := transport.NewEngine(testProps(), transport.WithNetwork(network))
	rec := &recorder{}

	err := eng.Multicast(context.Background(), srvRqst("service:printer"), rec.callback)
	assert.Equal(t, types.NetworkInitFailed, types.CodeOf(err))
	require.Len(t, rec.terminal, 1)
	assert.Equal(t, types.NetworkInitFailed, types.CodeOf(rec.terminal[0]))
}

func TestMulticast_ContextCancel(t *testing.T) {
	network := mocks.NewMockNetwork()
	props := testProps(config.KeyMulticastTimeouts, "5000", config.KeyMulticastMaximumWait, "10000")
	eng := transport.NewEngine(props, transport.WithNetwork(network))
	rec := &recorder{}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := eng.Multicast(ctx, srvRqst("service:printer"), rec.callback)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)

	require.Len(t, rec.terminal, 1)
	assert.True(t, types.IsLastCall(rec.terminal[0]))
}

func TestMulticast_Validation(t *testing.T) {
	eng := transport.NewEngine(testProps(), transport.WithNetwork(mocks.NewMockNetwork()))

	err := eng.Multicast(context.Background(), srvRqst("service:printer"), nil)
	assert.ErrorIs(t, err, transport.ErrNilCallback)

	err = eng.Multicast(context.Background(), &transport.Request{}, (&recorder{}).callback)
	assert.Equal(t, types.ParameterBad, types.CodeOf(err))
}

// multicastIfaceAddr 返回本机一个支持多播的接口及其 IPv4 地址
func multicastIfaceAddr(t *testing.T) (net.Interface, netip.Addr) {
	t.Helper()
	ifaces, err := net.Interfaces()
	if err != nil {
		t.Skip("无法枚举接口: ", err)
	}
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagMulticast == 0 {
			continue
		}
		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if ipnet, ok := a.(*net.IPNet); ok {
				if addr, ok := netip.AddrFromSlice(ipnet.IP); ok && addr.Unmap().Is4() {
					return ifi, addr.Unmap()
				}
			}
		}
	}
	t.Skip("没有支持多播的 IPv4 接口")
	return net.Interface{}, netip.Addr{}
}

func TestMulticast_RequestInterfacesOverrideProperty(t *testing.T) {
	ifi, addr := multicastIfaceAddr(t)

	network := mocks.NewMockNetwork()
	eng := transport.NewEngine(testProps(config.KeyInterfaces, "203.0.113.77"), transport.WithNetwork(network))

	require.NoError(t, eng.Multicast(context.Background(), srvRqst("service:printer"), (&recorder{}).callback))
	req := srvRqst("service:printer")
	req.Interfaces = addr.String()
	require.NoError(t, eng.Multicast(context.Background(), req, (&recorder{}).callback))

	opts := network.ListenOptions()
	require.Len(t, opts, 2)
	assert.Empty(t, opts[0].Interfaces)
	require.Len(t, opts[1].Interfaces, 1)
	assert.Equal(t, ifi.Name, opts[1].Interfaces[0].Name)
}

// ============================================================================
//                              单播与流
// ============================================================================

func TestUnicast_FirstReplyEnds(t *testing.T) {
	network := mocks.NewMockNetwork()
	network.AddNode("10.0.0.1", printerSA("10.0.0.1").Handle)
	peer := netip.MustParseAddrPort("10.0.0.1:427")

	eng := transport.NewEngine(testProps(), transport.WithNetwork(network))
	rec := &recorder{}

	require.NoError(t, eng.Unicast(context.Background(), peer, srvRqst("service:printer"), rec.callback))

	require.Len(t, rec.replies, 1)
	assert.Equal(t, 1, network.SentTo(peer))
	assert.False(t, network.Sent()[0].Message.Header.Flags.Has(types.FlagMcast))
	require.Len(t, rec.terminal, 1)
	assert.True(t, types.IsLastCall(rec.terminal[0]))
}

func TestUnicast_NoReplyTimesOut(t *testing.T) {
	network := mocks.NewMockNetwork()
	peer := netip.MustParseAddrPort("10.0.0.9:427")

	eng := transport.NewEngine(testProps(), transport.WithNetwork(network))
	rec := &recorder{}

	err := eng.Unicast(context.Background(), peer, srvRqst("service:printer"), rec.callback)
	assert.Equal(t, types.NetworkTimedOut, types.CodeOf(err))

	// 单播计划 100+100 ≤ 500，发送两次
	assert.Equal(t, 2, network.SentTo(peer))
	require.Len(t, rec.terminal, 1)
	assert.Equal(t, types.NetworkTimedOut, types.CodeOf(rec.terminal[0]))
}

func TestStream_Registration(t *testing.T) {
	network := mocks.NewMockNetwork()
	da := mocks.NewMockDA("10.0.0.5", "DEFAULT")
	node := network.AddNode("10.0.0.5", da.Handle)
	peer := netip.MustParseAddrPort("10.0.0.5:427")

	counter := metrics.NewTrafficCounter(nil)
	eng := transport.NewEngine(testProps(), transport.WithNetwork(network), transport.WithReporter(counter))
	rec := &recorder{}

	req := &transport.Request{
		LangTag: "en",
		Body: &wire.SrvReg{
			URL:         wire.URLEntry{URL: "service:printer:lpr://10.0.0.1", Lifetime: 300},
			ServiceType: "service:printer:lpr",
			ScopeList:   "DEFAULT",
		},
	}
	require.NoError(t, eng.Stream(context.Background(), peer, req, rec.callback))

	require.Len(t, rec.replies, 1)
	ack, ok := rec.replies[0].Body.(*wire.SrvAck)
	require.True(t, ok)
	assert.Equal(t, types.WireOK, ack.ErrorCode)
	assert.Equal(t, peer, rec.replies[0].Peer)

	require.Len(t, rec.terminal, 1)
	assert.True(t, types.IsLastCall(rec.terminal[0]))

	// 注册带 FRESH 标志
	reqs := node.Requests()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].Header.Flags.Has(types.FlagFresh))
	assert.Len(t, da.Services(), 1)

	byFn := counter.ByFunction()
	assert.Equal(t, int64(1), byFn[types.FuncSrvReg].MessagesOut)
	assert.Equal(t, int64(1), byFn[types.FuncSrvAck].MessagesIn)
}

func TestStream_DialFailure(t *testing.T) {
	network := mocks.NewMockNetwork()
	eng := transport.NewEngine(testProps(), transport.WithNetwork(network))
	rec := &recorder{}

	err := eng.Stream(context.Background(), netip.MustParseAddrPort("10.0.0.99:427"), srvRqst("service:printer"), rec.callback)
	assert.Equal(t, types.NetworkError, types.CodeOf(err))
	assert.Empty(t, rec.replies)
	require.Len(t, rec.terminal, 1)
}

func TestExchange_ReusesConnection(t *testing.T) {
	network := mocks.NewMockNetwork()
	sa := printerSA("10.0.0.1")
	node := network.AddNode("10.0.0.1", sa.Handle)

	eng := transport.NewEngine(testProps(), transport.WithNetwork(network))
	conn, err := eng.Dial(context.Background(), netip.MustParseAddrPort("10.0.0.1:427"))
	require.NoError(t, err)
	defer conn.Close()

	for i := 0; i < 2; i++ {
		rec := &recorder{}
		require.NoError(t, eng.Exchange(context.Background(), conn, srvRqst("service:printer"), rec.callback))
		require.Len(t, rec.replies, 1)
		require.Len(t, rec.terminal, 1)
	}
	assert.Equal(t, 1, network.DialCalls)
	assert.Len(t, node.Requests(), 2)
}

func TestExchange_MultiReadsUntilStop(t *testing.T) {
	network := mocks.NewMockNetwork()
	network.DialFunc = mocks.MultiReplyDialer(
		&wire.SrvRply{URLs: []wire.URLEntry{{URL: "service:a://1", Lifetime: 10}}},
		&wire.SrvRply{URLs: []wire.URLEntry{{URL: "service:a://2", Lifetime: 10}}},
		&wire.SrvRply{URLs: []wire.URLEntry{{URL: "service:a://3", Lifetime: 10}}},
	)
	eng := transport.NewEngine(testProps(), transport.WithNetwork(network))
	peer := netip.MustParseAddrPort("127.0.0.1:427")

	// 不设置 Multi 只读取第一条
	conn, err := eng.Dial(context.Background(), peer)
	require.NoError(t, err)
	rec := &recorder{}
	require.NoError(t, eng.Exchange(context.Background(), conn, srvRqst("service:a"), rec.callback))
	conn.Close()
	assert.Len(t, rec.replies, 1)

	// Multi 读取到对端关闭
	conn, err = eng.Dial(context.Background(), peer)
	require.NoError(t, err)
	req := srvRqst("service:a")
	req.Multi = true
	rec = &recorder{}
	require.NoError(t, eng.Exchange(context.Background(), conn, req, rec.callback))
	conn.Close()
	assert.Len(t, rec.replies, 3)
	require.Len(t, rec.terminal, 1)
	assert.True(t, types.IsLastCall(rec.terminal[0]))

	// 回调返回 Stop 后不再读取
	conn, err = eng.Dial(context.Background(), peer)
	require.NoError(t, err)
	defer conn.Close()
	rec = &recorder{verdict: func(n int) transport.Verdict {
		if n == 2 {
			return transport.Stop
		}
		return transport.Continue
	}}
	require.NoError(t, eng.Exchange(context.Background(), conn, req, rec.callback))
	assert.Len(t, rec.replies, 2)
	require.Len(t, rec.terminal, 1)
}

// ============================================================================
//                              Fx 模块
// ============================================================================

func TestModule_ProvidesEngine(t *testing.T) {
	var eng *transport.Engine

	app := fxtest.New(t,
		fx.Supply(testProps()),
		fx.Provide(func() transport.Network { return mocks.NewMockNetwork() }),
		metrics.Module,
		transport.Module,
		fx.Populate(&eng),
	)
	defer app.RequireStart().RequireStop()

	require.NotNil(t, eng)
	assert.IsType(t, &mocks.MockNetwork{}, eng.Network())
}
