package main

import (
	"bytes"
	"context"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	slp "github.com/dep2p/go-slp"
	"github.com/dep2p/go-slp/internal/slp/dhcp"
	"github.com/dep2p/go-slp/tests/mocks"
	"github.com/dep2p/go-slp/tests/testutil"
)

func newTool(t *testing.T) (*tool, *mocks.MockAgent, *bytes.Buffer) {
	t.Helper()
	return newToolOn(t, mocks.NewMockNetwork())
}

func newToolOn(t *testing.T, network *mocks.MockNetwork) (*tool, *mocks.MockAgent, *bytes.Buffer) {
	t.Helper()
	da := mocks.NewMockDA(testutil.DefaultTestDA, "DEFAULT,eng")
	network.AddNode(testutil.DefaultTestDA, da.Handle)

	dc, err := slp.New(context.Background(),
		slp.WithConfig(testutil.FastConfig()),
		slp.WithNetwork(network),
		slp.WithDHCP(dhcp.StaticSource{}),
		slp.WithDAAddresses(testutil.DefaultTestDA),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dc.Close() })

	out := &bytes.Buffer{}
	return &tool{dc: dc, out: out}, da, out
}

func TestTool_RegisterFindDeregister(t *testing.T) {
	tl, da, out := newTool(t)
	ctx := context.Background()
	url := testutil.DefaultTestService

	require.NoError(t, tl.run(ctx, "register", []string{"-lifetime", "600", url, "(color=true),(duplex=false)"}))
	assert.Contains(t, out.String(), "已注册 "+url)
	require.Len(t, da.Services(), 1)
	assert.Equal(t, uint16(600), da.Services()[0].Lifetime)
	assert.Equal(t, "service:printer", da.Services()[0].Type)

	out.Reset()
	require.NoError(t, tl.run(ctx, "findsrvs", []string{"service:printer"}))
	assert.Equal(t, url+",600\n", out.String())

	out.Reset()
	require.NoError(t, tl.run(ctx, "findattrs", []string{url}))
	assert.Equal(t, "(color=true),(duplex=false)\n", out.String())

	out.Reset()
	require.NoError(t, tl.run(ctx, "findsrvtypes", nil))
	assert.Equal(t, "service:printer\n", out.String())

	require.NoError(t, tl.run(ctx, "delattrs", []string{url, "duplex"}))
	assert.Equal(t, "(color=true)", da.Services()[0].Attrs)

	require.NoError(t, tl.run(ctx, "deregister", []string{url}))
	assert.Empty(t, da.Services())

	// 再次注销：DA 返回错误码
	assert.Error(t, tl.run(ctx, "deregister", []string{url}))
}

func TestTool_FindScopes(t *testing.T) {
	tl, _, out := newTool(t)
	require.NoError(t, tl.run(context.Background(), "findscopes", nil))
	assert.Contains(t, out.String(), "eng")
}

func TestTool_UnicastFindSrvs(t *testing.T) {
	network := mocks.NewMockNetwork()
	sa := mocks.NewMockSA("DEFAULT", mocks.Service{
		URL: "service:printer://10.0.0.7", Type: "service:printer", Scopes: "DEFAULT", Lifetime: 300,
	})
	network.AddNode("10.0.0.7", sa.Handle)
	tl, _, out := newToolOn(t, network)

	require.NoError(t, tl.run(context.Background(), "unicastfindsrvs", []string{"10.0.0.7", "service:printer"}))
	assert.Equal(t, "service:printer://10.0.0.7,300\n", out.String())
	assert.Equal(t, 1, network.SentTo(netip.MustParseAddrPort("10.0.0.7:427")))
}

func TestTool_FindSrvsUsingIfList(t *testing.T) {
	tl, _, out := newTool(t)
	require.NoError(t, tl.run(context.Background(), "findsrvsusingiflist", []string{"127.0.0.1", "service:printer"}))
	assert.Empty(t, out.String())
}

func TestTool_GetProperty(t *testing.T) {
	tl, _, out := newTool(t)
	require.NoError(t, tl.run(context.Background(), "getproperty", []string{"net.slp.DAAddresses"}))
	assert.Equal(t, "net.slp.DAAddresses = "+testutil.DefaultTestDA+"\n", out.String())
}

func TestTool_UsageErrors(t *testing.T) {
	tl, _, _ := newTool(t)
	ctx := context.Background()

	tests := []struct {
		name string
		cmd  string
		args []string
	}{
		{"未知命令", "frobnicate", nil},
		{"findsrvs 缺少类型", "findsrvs", nil},
		{"findattrs 参数过多", "findattrs", []string{"a", "b", "c"}},
		{"register 生存期为零", "register", []string{"-lifetime", "0", testutil.DefaultTestService}},
		{"register 生存期过大", "register", []string{"-lifetime", "70000", testutil.DefaultTestService}},
		{"register 未知选项", "register", []string{"-x", testutil.DefaultTestService}},
		{"deregister 缺少 URL", "deregister", nil},
		{"delattrs 缺少标签", "delattrs", []string{testutil.DefaultTestService}},
		{"unicastfindsrvs 缺少地址", "unicastfindsrvs", nil},
		{"unicastfindsrvs 无效地址", "unicastfindsrvs", []string{"not-an-ip", "service:printer"}},
		{"unicastfindattrs 缺少 URL", "unicastfindattrs", []string{"10.0.0.7"}},
		{"findsrvsusingiflist 无效接口", "findsrvsusingiflist", []string{"10.0.0.1,eth0", "service:printer"}},
		{"findsrvtypesusingiflist 缺少列表", "findsrvtypesusingiflist", nil},
		{"getproperty 缺少属性名", "getproperty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tl.run(ctx, tt.cmd, tt.args), errUsage)
		})
	}
}
