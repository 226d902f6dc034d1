package metrics

import (
	"net/netip"
	"time"

	"github.com/dep2p/go-slp/pkg/types"
)

// DropReason 报文被丢弃的原因
type DropReason string

const (
	// DropParse 解析失败
	DropParse DropReason = "parse"
	// DropXID XID 与请求不匹配
	DropXID DropReason = "xid"
	// DropOversize 流应答超过上限
	DropOversize DropReason = "oversize"
)

// Stats 流量统计快照
type Stats struct {
	BytesIn     int64
	BytesOut    int64
	MessagesIn  int64
	MessagesOut int64
	RateIn      float64 // 入站速率（字节/秒）
	RateOut     float64 // 出站速率（字节/秒）
}

// Reporter 记录与查询 SLP 流量
type Reporter interface {
	// LogSent 记录发出的报文
	LogSent(fn types.FunctionID, peer netip.AddrPort, size int)

	// LogRecv 记录收到并成功解析的报文
	LogRecv(fn types.FunctionID, peer netip.AddrPort, size int)

	// LogDropped 记录被丢弃的报文
	LogDropped(reason DropReason)

	// Totals 总流量
	Totals() Stats

	// ByFunction 按功能号统计
	ByFunction() map[types.FunctionID]Stats

	// ForPeer 单个对端的统计
	ForPeer(addr netip.Addr) Stats

	// Dropped 按原因统计的丢弃数
	Dropped() map[DropReason]int64

	// Reset 清除所有统计
	Reset()

	// TrimIdle 清理 since 之后没有活动的对端统计
	TrimIdle(since time.Time)
}

// NopReporter 不做任何记录
type NopReporter struct{}

func (NopReporter) LogSent(types.FunctionID, netip.AddrPort, int) {}
func (NopReporter) LogRecv(types.FunctionID, netip.AddrPort, int) {}
func (NopReporter) LogDropped(DropReason)                         {}
func (NopReporter) Totals() Stats                                 { return Stats{} }
func (NopReporter) ByFunction() map[types.FunctionID]Stats        { return nil }
func (NopReporter) ForPeer(netip.Addr) Stats                      { return Stats{} }
func (NopReporter) Dropped() map[DropReason]int64                 { return nil }
func (NopReporter) Reset()                                        {}
func (NopReporter) TrimIdle(time.Time)                            {}

var (
	_ Reporter = (*TrafficCounter)(nil)
	_ Reporter = NopReporter{}
)
