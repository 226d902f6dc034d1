package metrics

import (
	"context"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-slp/pkg/types"
)

// counters 一个统计维度的计数器组
type counters struct {
	bytesIn, bytesOut atomic.Int64
	msgsIn, msgsOut   atomic.Int64
	rateIn, rateOut   *RateMeter
}

func newCounters(clk clock.Clock) *counters {
	return &counters{rateIn: NewRateMeter(clk), rateOut: NewRateMeter(clk)}
}

func (c *counters) sent(size int) {
	c.bytesOut.Add(int64(size))
	c.msgsOut.Add(1)
	c.rateOut.Add(int64(size))
}

func (c *counters) recv(size int) {
	c.bytesIn.Add(int64(size))
	c.msgsIn.Add(1)
	c.rateIn.Add(int64(size))
}

func (c *counters) snapshot() Stats {
	if c == nil {
		return Stats{}
	}
	return Stats{
		BytesIn:     c.bytesIn.Load(),
		BytesOut:    c.bytesOut.Load(),
		MessagesIn:  c.msgsIn.Load(),
		MessagesOut: c.msgsOut.Load(),
		RateIn:      c.rateIn.Rate(),
		RateOut:     c.rateOut.Rate(),
	}
}

func (c *counters) lastActive() time.Time {
	in, out := c.rateIn.LastUpdate(), c.rateOut.LastUpdate()
	if in.After(out) {
		return in
	}
	return out
}

// TrafficCounter 流量计数器
//
// 按三个维度统计：全局、功能号、对端地址。
type TrafficCounter struct {
	clock clock.Clock
	total atomic.Pointer[counters]

	fnMu sync.RWMutex
	byFn map[types.FunctionID]*counters

	peerMu sync.RWMutex
	byPeer map[netip.Addr]*counters

	dropMu  sync.Mutex
	dropped map[DropReason]int64
}

// NewTrafficCounter 创建计数器，clk 为 nil 时使用系统时钟
func NewTrafficCounter(clk clock.Clock) *TrafficCounter {
	if clk == nil {
		clk = clock.New()
	}
	tc := &TrafficCounter{
		clock:   clk,
		byFn:    make(map[types.FunctionID]*counters),
		byPeer:  make(map[netip.Addr]*counters),
		dropped: make(map[DropReason]int64),
	}
	tc.total.Store(newCounters(clk))
	return tc
}

// LogSent 记录发出的报文
func (tc *TrafficCounter) LogSent(fn types.FunctionID, peer netip.AddrPort, size int) {
	tc.total.Load().sent(size)
	tc.function(fn).sent(size)
	if peer.IsValid() {
		tc.peer(peer.Addr().Unmap()).sent(size)
	}
}

// LogRecv 记录收到的报文
func (tc *TrafficCounter) LogRecv(fn types.FunctionID, peer netip.AddrPort, size int) {
	tc.total.Load().recv(size)
	tc.function(fn).recv(size)
	if peer.IsValid() {
		tc.peer(peer.Addr().Unmap()).recv(size)
	}
}

// LogDropped 记录丢弃的报文
func (tc *TrafficCounter) LogDropped(reason DropReason) {
	tc.dropMu.Lock()
	tc.dropped[reason]++
	tc.dropMu.Unlock()
}

func (tc *TrafficCounter) function(fn types.FunctionID) *counters {
	tc.fnMu.RLock()
	c := tc.byFn[fn]
	tc.fnMu.RUnlock()
	if c != nil {
		return c
	}

	tc.fnMu.Lock()
	defer tc.fnMu.Unlock()
	if c = tc.byFn[fn]; c == nil {
		c = newCounters(tc.clock)
		tc.byFn[fn] = c
	}
	return c
}

func (tc *TrafficCounter) peer(addr netip.Addr) *counters {
	tc.peerMu.RLock()
	c := tc.byPeer[addr]
	tc.peerMu.RUnlock()
	if c != nil {
		return c
	}

	tc.peerMu.Lock()
	defer tc.peerMu.Unlock()
	if c = tc.byPeer[addr]; c == nil {
		c = newCounters(tc.clock)
		tc.byPeer[addr] = c
	}
	return c
}

// Totals 返回总流量统计
func (tc *TrafficCounter) Totals() Stats {
	return tc.total.Load().snapshot()
}

// ByFunction 返回按功能号的统计
func (tc *TrafficCounter) ByFunction() map[types.FunctionID]Stats {
	tc.fnMu.RLock()
	defer tc.fnMu.RUnlock()

	out := make(map[types.FunctionID]Stats, len(tc.byFn))
	for fn, c := range tc.byFn {
		out[fn] = c.snapshot()
	}
	return out
}

// ForPeer 返回单个对端的统计
func (tc *TrafficCounter) ForPeer(addr netip.Addr) Stats {
	tc.peerMu.RLock()
	c := tc.byPeer[addr.Unmap()]
	tc.peerMu.RUnlock()
	return c.snapshot()
}

// Dropped 返回按原因统计的丢弃数
func (tc *TrafficCounter) Dropped() map[DropReason]int64 {
	tc.dropMu.Lock()
	defer tc.dropMu.Unlock()

	out := make(map[DropReason]int64, len(tc.dropped))
	for k, v := range tc.dropped {
		out[k] = v
	}
	return out
}

// Reset 清除所有统计
func (tc *TrafficCounter) Reset() {
	tc.fnMu.Lock()
	tc.byFn = make(map[types.FunctionID]*counters)
	tc.fnMu.Unlock()

	tc.peerMu.Lock()
	tc.byPeer = make(map[netip.Addr]*counters)
	tc.peerMu.Unlock()

	tc.dropMu.Lock()
	tc.dropped = make(map[DropReason]int64)
	tc.dropMu.Unlock()

	tc.total.Store(newCounters(tc.clock))
}

// TrimIdle 清理 since 之后没有活动的对端统计
func (tc *TrafficCounter) TrimIdle(since time.Time) {
	tc.peerMu.Lock()
	defer tc.peerMu.Unlock()
	for addr, c := range tc.byPeer {
		if c.lastActive().Before(since) {
			delete(tc.byPeer, addr)
		}
	}
}

// trimLoop 每次 ticker 触发时清理空闲超过 idle 的对端，直到 ctx 结束
func (tc *TrafficCounter) trimLoop(ctx context.Context, ticker *clock.Ticker, idle time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			tc.TrimIdle(now.Add(-idle))
		}
	}
}
