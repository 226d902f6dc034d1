package testutil

import (
	"context"
	"testing"
	"time"
)

// WaitForCondition 等待条件满足或超时
//
// 参数：
//   - t: 测试对象
//   - timeout: 超时时间
//   - interval: 检查间隔
//   - condition: 条件函数，返回 true 表示条件满足
//
// 返回：条件是否满足（超时返回 false）
func WaitForCondition(t *testing.T, timeout time.Duration, interval time.Duration, condition func() bool) bool {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// 立即检查一次
	if condition() {
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if condition() {
				return true
			}
		}
	}
}

// WaitForConditionOrFail 等待条件满足，超时则 fail 测试
func WaitForConditionOrFail(t *testing.T, timeout time.Duration, interval time.Duration, condition func() bool, msg string) {
	t.Helper()

	if !WaitForCondition(t, timeout, interval, condition) {
		t.Fatalf("等待超时: %s", msg)
	}
}

// Eventually 在指定时间内重试条件检查
//
// 使用默认间隔 100ms。
//
// 示例:
//
//	testutil.Eventually(t, 2*time.Second, func() bool {
//	    return len(da.Services()) == 1
//	}, "注册应到达 DA")
func Eventually(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	t.Helper()
	WaitForConditionOrFail(t, timeout, 100*time.Millisecond, condition, msg)
}

// WaitForSignal 等待 ch 关闭或收到值，超时则 fail 测试
//
// 用于等待异步句柄的终止回调。
//
// 示例:
//
//	done := make(chan struct{})
//	h.FindSrvs(ctx, "service:printer", "", "", func(url string, _ uint16, err error) transport.Verdict {
//	    if err != nil {
//	        close(done)
//	    }
//	    return transport.Continue
//	})
//	testutil.WaitForSignal(t, done, 5*time.Second, "等待终止回调")
func WaitForSignal[T any](t *testing.T, ch <-chan T, timeout time.Duration, msg string) T {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	select {
	case v := <-ch:
		return v
	case <-ctx.Done():
		t.Fatalf("等待超时: %s", msg)
	}
	var zero T
	return zero
}
