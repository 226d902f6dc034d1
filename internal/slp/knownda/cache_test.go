package knownda_test

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-slp/config"
	"github.com/dep2p/go-slp/internal/slp/dhcp"
	"github.com/dep2p/go-slp/internal/slp/knownda"
	"github.com/dep2p/go-slp/internal/slp/transport"
	"github.com/dep2p/go-slp/internal/slp/wire"
	"github.com/dep2p/go-slp/pkg/types"
	"github.com/dep2p/go-slp/tests/mocks"
	"github.com/dep2p/go-slp/tests/testutil"
)

// ============================================================================
//                              测试辅助
// ============================================================================

// noThrottle 每次未命中都允许发现
func noThrottle() knownda.Config {
	cfg := knownda.DefaultConfig()
	cfg.MinDiscoveryInterval = 0
	return cfg
}

func newCache(t *testing.T, network *mocks.MockNetwork, props *config.Properties, opts ...knownda.Option) *knownda.Cache {
	t.Helper()
	eng := transport.NewEngine(props, transport.WithNetwork(network))
	c, err := knownda.NewCache(eng, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func addDA(network *mocks.MockNetwork, addr, scopes string) (*mocks.MockAgent, *mocks.MockNode) {
	da := mocks.NewMockDA(addr, scopes)
	return da, network.AddNode(addr, da.Handle)
}

// ============================================================================
//                              缓存操作
// ============================================================================

func TestCache_AddReplacesByURL(t *testing.T) {
	c := newCache(t, mocks.NewMockNetwork(), testutil.FastProperties())

	peer := netip.MustParseAddrPort("10.0.0.5:427")
	assert.True(t, c.Add(knownda.Entry{URL: "service:directory-agent://10.0.0.5", Scopes: "a", Peer: peer}))
	assert.False(t, c.Add(knownda.Entry{URL: "SERVICE:directory-agent://10.0.0.5", Scopes: "a,b", Peer: peer}))

	entries := c.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "a,b", entries[0].Scopes)
	assert.False(t, entries[0].Updated.IsZero())
}

func TestCache_FindByScope(t *testing.T) {
	c := newCache(t, mocks.NewMockNetwork(), testutil.FastProperties())
	c.Add(knownda.Entry{URL: "service:directory-agent://10.0.0.1", Scopes: "eng", Peer: netip.MustParseAddrPort("10.0.0.1:427")})
	c.Add(knownda.Entry{URL: "service:directory-agent://10.0.0.2", Scopes: "eng,sales", Peer: netip.MustParseAddrPort("10.0.0.2:427")})
	c.Add(knownda.Entry{URL: "service:directory-agent://[fe80::1]", Scopes: "lab", Peer: netip.MustParseAddrPort("[fe80::1]:427")})

	tests := []struct {
		scopes string
		want   string
		found  bool
	}{
		{"eng", "service:directory-agent://10.0.0.1", true},
		{"SALES", "service:directory-agent://10.0.0.2", true},
		{"sales,eng", "service:directory-agent://10.0.0.2", true},
		// 空列表视为 net.slp.useScopes（DEFAULT）
		{"", "", false},
		{"hr", "", false},
		// IPv6 默认禁用
		{"lab", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.scopes, func(t *testing.T) {
			e, ok := c.FindByScope(tt.scopes)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, e.URL)
		})
	}
}

func TestCache_FindByScope_DefaultScope(t *testing.T) {
	c := newCache(t, mocks.NewMockNetwork(), testutil.FastProperties(config.KeyUseScopes, "eng"))
	c.Add(knownda.Entry{URL: "service:directory-agent://10.0.0.1", Scopes: "lab", Peer: netip.MustParseAddrPort("10.0.0.1:427")})
	c.Add(knownda.Entry{URL: "service:directory-agent://10.0.0.2", Scopes: "default,ENG", Peer: netip.MustParseAddrPort("10.0.0.2:427")})

	e, ok := c.FindByScope("")
	require.True(t, ok)
	assert.Equal(t, "service:directory-agent://10.0.0.2", e.URL)

	// 子集匹配，不要求相等
	_, ok = c.FindByScope("eng")
	assert.True(t, ok)
	_, ok = c.FindByScope("eng,sales")
	assert.False(t, ok)
}

func TestCache_MarkBad(t *testing.T) {
	network := mocks.NewMockNetwork()
	addDA(network, "10.0.0.5", "DEFAULT")
	mock := clock.NewMock()
	c := newCache(t, network, testutil.FastProperties(config.KeyDAAddresses, "10.0.0.5"),
		knownda.WithConfig(noThrottle()), knownda.WithClock(mock))

	n, err := c.Discover(context.Background(), "DEFAULT")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	addr := netip.MustParseAddr("10.0.0.5")
	c.MarkBad(addr)
	assert.Empty(t, c.Entries())
	assert.True(t, c.IsBad(addr))

	// 负缓存有效期内发现流程不会重新加入
	n, err = c.Discover(context.Background(), "DEFAULT")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, c.Entries())

	mock.Add(knownda.DefaultConfig().BadDATTL + time.Second)
	assert.False(t, c.IsBad(addr))
	n, err = c.Discover(context.Background(), "DEFAULT")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// ============================================================================
//                              发现
// ============================================================================

func TestDiscover_FromProperties(t *testing.T) {
	network := mocks.NewMockNetwork()
	_, node := addDA(network, "10.0.0.5", "DEFAULT,eng")
	c := newCache(t, network, testutil.FastProperties(config.KeyDAAddresses, "10.0.0.5"))

	n, err := c.Discover(context.Background(), "eng")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	e, ok := c.FindByScope("eng")
	require.True(t, ok)
	assert.Equal(t, "service:directory-agent://10.0.0.5", e.URL)
	assert.Equal(t, netip.MustParseAddrPort("10.0.0.5:427"), e.Peer)
	assert.Equal(t, uint32(1), e.BootTimestamp)

	// 请求是查找 DA 的 SrvRqst，scope 为请求的 scope
	reqs := node.Requests()
	require.Len(t, reqs, 1)
	rqst, ok := reqs[0].Body.(*wire.SrvRqst)
	require.True(t, ok)
	assert.Equal(t, types.DirectoryAgentType, rqst.ServiceType)
	assert.Equal(t, "eng", rqst.ScopeList)

	// 未开启主动发现时不发送多播
	assert.Empty(t, network.Sent())
}

func TestDiscover_StopsAtFirstSource(t *testing.T) {
	network := mocks.NewMockNetwork()
	addDA(network, "10.0.0.5", "DEFAULT")
	_, mc := addDA(network, "10.0.0.7", "DEFAULT")
	c := newCache(t, network, testutil.FastProperties(
		config.KeyDAAddresses, "10.0.0.5",
		config.KeyActiveDADetection, "true",
	))

	n, err := c.Discover(context.Background(), "DEFAULT")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, mc.Requests())
	assert.Len(t, c.Entries(), 1)
}

func TestDiscover_FromDHCP(t *testing.T) {
	network := mocks.NewMockNetwork()
	_, node := addDA(network, "10.0.0.9", "site")
	src := dhcp.StaticSource{Info: &dhcp.Info{
		DAs:    []netip.Addr{netip.IPv4Unspecified(), netip.MustParseAddr("10.0.0.9")},
		Scopes: "site",
	}}
	c := newCache(t, network, testutil.FastProperties(), knownda.WithDHCP(src))

	n, err := c.Discover(context.Background(), "site")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	reqs := node.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "site", reqs[0].Body.(*wire.SrvRqst).ScopeList)
}

func TestDiscover_DHCPFailureFallsThrough(t *testing.T) {
	network := mocks.NewMockNetwork()
	addDA(network, "10.0.0.7", "DEFAULT")
	c := newCache(t, network, testutil.FastProperties(config.KeyActiveDADetection, "true"),
		knownda.WithDHCP(dhcp.StaticSource{Err: errors.New("no dhcp")}))

	n, err := c.Discover(context.Background(), "DEFAULT")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDiscover_Multicast(t *testing.T) {
	network := mocks.NewMockNetwork()
	addDA(network, "10.0.0.7", "DEFAULT")
	addDA(network, "10.0.0.8", "other")
	c := newCache(t, network, testutil.FastProperties(config.KeyActiveDADetection, "true"))

	n, err := c.Discover(context.Background(), "DEFAULT")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	entries := c.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "service:directory-agent://10.0.0.7", entries[0].URL)

	// DA 发现计划 "20,20"/100 发送两次，都发往 IPv4 多播组
	sent := network.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, transport.GroupV4, sent[0].Dst)
	assert.True(t, sent[0].Message.Header.Flags.Has(types.FlagMcast))
}

func TestDiscover_MulticastDisabledByZeroWait(t *testing.T) {
	network := mocks.NewMockNetwork()
	addDA(network, "10.0.0.7", "DEFAULT")
	c := newCache(t, network, testutil.FastProperties(
		config.KeyActiveDADetection, "true",
		config.KeyDADiscoveryMaximumWait, "0",
	))

	n, err := c.Discover(context.Background(), "DEFAULT")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, network.Sent())
}

func TestDiscover_FromIPC(t *testing.T) {
	network := mocks.NewMockNetwork()
	list := mocks.MultiReplyDialer(
		&wire.DAAdvert{BootTimestamp: 7, URL: "service:directory-agent://10.1.0.1", ScopeList: "a"},
		&wire.DAAdvert{BootTimestamp: 7, URL: "service:directory-agent://10.1.0.2", ScopeList: "b"},
		&wire.DAAdvert{ErrorCode: types.WireInternalError},
		&wire.DAAdvert{BootTimestamp: 7, URL: "service:directory-agent://10.1.0.3", ScopeList: "c"},
	)
	var dialed []netip.AddrPort
	var mu sync.Mutex
	network.DialFunc = func(ctx context.Context, peer netip.AddrPort) (net.Conn, error) {
		mu.Lock()
		dialed = append(dialed, peer)
		mu.Unlock()
		if !peer.Addr().IsLoopback() {
			return nil, mocks.ErrUnreachable
		}
		return list(ctx, peer)
	}
	c := newCache(t, network, testutil.FastProperties())

	n, err := c.Discover(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// INTERNAL_ERROR 之后的通告被忽略
	entries := c.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "service:directory-agent://10.1.0.1", entries[0].URL)
	assert.Equal(t, "service:directory-agent://10.1.0.2", entries[1].URL)
	assert.Equal(t, []netip.AddrPort{netip.MustParseAddrPort("127.0.0.1:427")}, dialed)
}

func TestDiscover_BootZeroRemoves(t *testing.T) {
	network := mocks.NewMockNetwork()
	da, _ := addDA(network, "10.0.0.5", "DEFAULT")
	c := newCache(t, network, testutil.FastProperties(config.KeyDAAddresses, "10.0.0.5"), knownda.WithConfig(noThrottle()))

	_, err := c.Discover(context.Background(), "DEFAULT")
	require.NoError(t, err)
	require.Len(t, c.Entries(), 1)

	da.Boot = 0
	n, err := c.Discover(context.Background(), "DEFAULT")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, c.Entries())
}

func TestDiscover_Throttled(t *testing.T) {
	mock := clock.NewMock()
	c := newCache(t, mocks.NewMockNetwork(), testutil.FastProperties(), knownda.WithClock(mock))

	_, err := c.Discover(context.Background(), "DEFAULT")
	require.NoError(t, err)

	_, err = c.Discover(context.Background(), "DEFAULT")
	assert.ErrorIs(t, err, knownda.ErrThrottled)

	mock.Add(knownda.DefaultConfig().MinDiscoveryInterval + time.Second)
	_, err = c.Discover(context.Background(), "DEFAULT")
	assert.NoError(t, err)
}

func TestDiscover_Closed(t *testing.T) {
	c := newCache(t, mocks.NewMockNetwork(), testutil.FastProperties())
	require.NoError(t, c.Close())
	_, err := c.Discover(context.Background(), "DEFAULT")
	assert.ErrorIs(t, err, knownda.ErrClosed)
}

// ============================================================================
//                              Connect
// ============================================================================

func TestConnect_DiscoversOnMiss(t *testing.T) {
	network := mocks.NewMockNetwork()
	addDA(network, "10.0.0.5", "DEFAULT")
	c := newCache(t, network, testutil.FastProperties(config.KeyDAAddresses, "10.0.0.5"))

	conn, da, err := c.Connect(context.Background(), "DEFAULT")
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "service:directory-agent://10.0.0.5", da.URL)
	assert.Equal(t, "10.0.0.5:427", conn.RemoteAddr().String())
}

func TestConnect_SkipsUnreachableDA(t *testing.T) {
	network := mocks.NewMockNetwork()
	_, down := addDA(network, "10.0.0.7", "DEFAULT")
	down.NoStream = true
	addDA(network, "10.0.0.8", "DEFAULT")
	c := newCache(t, network, testutil.FastProperties(config.KeyActiveDADetection, "true"), knownda.WithConfig(noThrottle()))

	conn, da, err := c.Connect(context.Background(), "DEFAULT")
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "service:directory-agent://10.0.0.8", da.URL)

	assert.True(t, c.IsBad(netip.MustParseAddr("10.0.0.7")))
	entries := c.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, da.URL, entries[0].URL)
}

func TestConnect_NoDA(t *testing.T) {
	c := newCache(t, mocks.NewMockNetwork(), testutil.FastProperties())
	_, _, err := c.Connect(context.Background(), "DEFAULT")
	assert.ErrorIs(t, err, knownda.ErrNoDA)
}

func TestConnect_AllUnreachable(t *testing.T) {
	network := mocks.NewMockNetwork()
	_, n1 := addDA(network, "10.0.0.7", "DEFAULT")
	_, n2 := addDA(network, "10.0.0.8", "DEFAULT")
	n1.NoStream, n2.NoStream = true, true
	// 负缓存 TTL 为 0 时也不会无限重试
	cfg := noThrottle()
	cfg.BadDATTL = 0
	c := newCache(t, network, testutil.FastProperties(config.KeyActiveDADetection, "true"), knownda.WithConfig(cfg))

	_, _, err := c.Connect(context.Background(), "DEFAULT")
	assert.ErrorIs(t, err, knownda.ErrNoDA)
}

// ============================================================================
//                              Scopes / ProcessSrvRqst
// ============================================================================

func TestScopes_UnionWithUseScopes(t *testing.T) {
	network := mocks.NewMockNetwork()
	addDA(network, "10.0.0.5", "eng,default")
	addDA(network, "10.0.0.6", "sales")
	c := newCache(t, network, testutil.FastProperties(config.KeyDAAddresses, "10.0.0.5,10.0.0.6"))

	assert.Equal(t, "eng,default,sales", c.Scopes(context.Background()))

	empty := newCache(t, mocks.NewMockNetwork(), testutil.FastProperties(config.KeyUseScopes, "x,y"))
	assert.Equal(t, "x,y", empty.Scopes(context.Background()))
}

func TestRefreshInterval(t *testing.T) {
	c := newCache(t, mocks.NewMockNetwork(), testutil.FastProperties())
	assert.Zero(t, c.RefreshInterval(context.Background()))

	c.Add(knownda.Entry{URL: "service:directory-agent://10.0.0.1", Attrs: "(min-refresh-interval=30)",
		Peer: netip.MustParseAddrPort("10.0.0.1:427")})
	c.Add(knownda.Entry{URL: "service:directory-agent://10.0.0.2", Attrs: "(x=1),(MIN-REFRESH-INTERVAL= 120 )",
		Peer: netip.MustParseAddrPort("10.0.0.2:427")})
	c.Add(knownda.Entry{URL: "service:directory-agent://10.0.0.3", Attrs: "(min-refresh-interval=never)",
		Peer: netip.MustParseAddrPort("10.0.0.3:427")})
	c.Add(knownda.Entry{URL: "service:directory-agent://10.0.0.4",
		Peer: netip.MustParseAddrPort("10.0.0.4:427")})

	assert.Equal(t, uint16(120), c.RefreshInterval(context.Background()))
}

func TestProcessSrvRqst(t *testing.T) {
	network := mocks.NewMockNetwork()
	addDA(network, "10.0.0.5", "eng")
	addDA(network, "10.0.0.6", "sales")
	c := newCache(t, network, testutil.FastProperties(config.KeyDAAddresses, "10.0.0.5,10.0.0.6"))

	type call struct {
		url      string
		lifetime uint16
		last     bool
	}
	var calls []call
	collect := func(url string, lifetime uint16, err error) bool {
		calls = append(calls, call{url, lifetime, types.IsLastCall(err)})
		return true
	}

	c.ProcessSrvRqst(context.Background(), "", collect)
	assert.Equal(t, []call{
		{"service:directory-agent://10.0.0.5", types.LifetimeMaximum, false},
		{"service:directory-agent://10.0.0.6", types.LifetimeMaximum, false},
		{"", 0, true},
	}, calls)

	calls = nil
	c.ProcessSrvRqst(context.Background(), "SALES", collect)
	assert.Equal(t, []call{
		{"service:directory-agent://10.0.0.6", types.LifetimeMaximum, false},
		{"", 0, true},
	}, calls)

	// 回调返回 false 后只剩终止调用
	calls = nil
	c.ProcessSrvRqst(context.Background(), "", func(url string, lifetime uint16, err error) bool {
		calls = append(calls, call{url, lifetime, types.IsLastCall(err)})
		return false
	})
	assert.Len(t, calls, 2)
	assert.True(t, calls[1].last)
}

// ============================================================================
//                              持久化
// ============================================================================

func TestCache_Persistence(t *testing.T) {
	dir := t.TempDir()
	cfg := noThrottle()
	cfg.PersistPath = dir

	network := mocks.NewMockNetwork()
	addDA(network, "10.0.0.5", "DEFAULT")
	addDA(network, "10.0.0.6", "eng")
	props := testutil.FastProperties(config.KeyDAAddresses, "10.0.0.5,10.0.0.6")

	eng := transport.NewEngine(props, transport.WithNetwork(network))
	c, err := knownda.NewCache(eng, knownda.WithConfig(cfg))
	require.NoError(t, err)
	_ = c.Scopes(context.Background())
	require.Len(t, c.Entries(), 2)
	c.MarkBad(netip.MustParseAddr("10.0.0.6"))
	require.NoError(t, c.Close())

	// 重新打开后不访问网络即可命中
	reopened, err := knownda.NewCache(transport.NewEngine(props, transport.WithNetwork(mocks.NewMockNetwork())),
		knownda.WithConfig(cfg))
	require.NoError(t, err)
	defer reopened.Close()

	entries := reopened.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "service:directory-agent://10.0.0.5", entries[0].URL)
	assert.Equal(t, "DEFAULT", entries[0].Scopes)
	assert.Equal(t, netip.MustParseAddrPort("10.0.0.5:427"), entries[0].Peer)
}

func TestNewCache_InvalidConfig(t *testing.T) {
	cfg := knownda.DefaultConfig()
	cfg.BadDACapacity = 0
	_, err := knownda.NewCache(transport.NewEngine(testutil.FastProperties()), knownda.WithConfig(cfg))
	assert.Error(t, err)
}

// ============================================================================
//                              Fx 模块
// ============================================================================

func TestModule_ProvidesCache(t *testing.T) {
	var c *knownda.Cache
	network := mocks.NewMockNetwork()
	addDA(network, "10.0.0.5", "DEFAULT")

	app := fxtest.New(t,
		fx.Supply(testutil.FastProperties(config.KeyDAAddresses, "10.0.0.5")),
		fx.Provide(func() transport.Network { return network }),
		fx.Provide(func() dhcp.Source { return dhcp.StaticSource{} }),
		transport.Module,
		knownda.Module,
		fx.Populate(&c),
	)
	defer app.RequireStart().RequireStop()

	require.NotNil(t, c)
	conn, da, err := c.Connect(context.Background(), "DEFAULT")
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "service:directory-agent://10.0.0.5", da.URL)
}
