package metrics

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// ============================================================================
// RateMeter - 速率计算器
// ============================================================================

// RateMeter 速率计算器（基于滑动窗口）
//
// 使用 60 个 1 秒桶来计算最近 60 秒的平均速率。
type RateMeter struct {
	mu       sync.RWMutex
	clock    clock.Clock
	buckets  [60]int64
	lastIdx  int
	lastTime time.Time
	lastAdd  time.Time
}

// NewRateMeter 创建速率计算器，clk 为 nil 时使用系统时钟
func NewRateMeter(clk clock.Clock) *RateMeter {
	if clk == nil {
		clk = clock.New()
	}
	now := clk.Now()
	return &RateMeter{
		clock:    clk,
		lastTime: now,
		lastAdd:  now,
	}
}

// Add 添加字节数到当前桶
func (r *RateMeter) Add(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.advance()
	r.buckets[r.lastIdx] += n
	r.lastAdd = r.clock.Now()
}

// advance 按经过的整秒数移动桶，调用方持有锁
func (r *RateMeter) advance() {
	now := r.clock.Now()
	elapsed := now.Sub(r.lastTime)
	if elapsed < time.Second {
		return
	}
	seconds := int(elapsed / time.Second)
	if seconds >= len(r.buckets) {
		r.buckets = [60]int64{}
		r.lastIdx = 0
	} else {
		for i := 0; i < seconds; i++ {
			r.lastIdx = (r.lastIdx + 1) % len(r.buckets)
			r.buckets[r.lastIdx] = 0
		}
	}
	r.lastTime = r.lastTime.Add(time.Duration(seconds) * time.Second)
}

// Rate 返回最近 60 秒的平均速率（单位/秒）
func (r *RateMeter) Rate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.advance()
	var total int64
	for _, v := range r.buckets {
		total += v
	}
	return float64(total) / float64(len(r.buckets))
}

// LastUpdate 返回最后一次 Add 的时间
func (r *RateMeter) LastUpdate() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastAdd
}
