// Package session 实现 SLP 句柄
//
// 一个 Handle 同一时刻只执行一个操作；操作进行中再次调用立即返回
// types.HandleInUse。同步句柄在调用方 goroutine 上完成操作并对重复结果去重，
// 异步句柄在新 goroutine 上运行相同流程并原样投递结果。
//
// 每个被接受的操作都以恰好一次终止回调结束：查询类操作的终止回调携带
// types.ErrLastCall 或失败原因，注册类操作的唯一一次回调即为终止回调。
//
// 查询目标的选择顺序：
//
//  1. 句柄缓存的 DA 连接（其 scope 覆盖请求的 scope）
//  2. KnownDA 缓存中支持该 scope 的 DA
//  3. 多播
//
// 缓存连接失败时丢弃连接、把 DA 标记为不可达，然后改用多播重试一次。
//
// 使用示例：
//
//	h := session.Open(engine, cache)
//	defer h.Close()
//
//	err := h.FindSrvs(ctx, "service:printer", "", "", func(url string, lifetime uint16, err error) transport.Verdict {
//	    if types.IsLastCall(err) {
//	        return transport.Stop
//	    }
//	    fmt.Println(url)
//	    return transport.Continue
//	})
package session
