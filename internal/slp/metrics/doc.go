// Package metrics 统计 SLP 报文流量
//
// TrafficCounter 按方向、功能号和对端记录字节数与报文数，
// 并记录被丢弃的报文（解析失败、XID 不匹配等）。
//
// # 快速开始
//
//	counter := metrics.NewTrafficCounter(nil)
//
//	counter.LogSent(types.FuncSrvRqst, peer, 64)
//	counter.LogRecv(types.FuncSrvRply, peer, 128)
//	counter.LogDropped(metrics.DropParse)
//
//	stats := counter.Totals()
//	fmt.Printf("In: %d, Out: %d\n", stats.BytesIn, stats.BytesOut)
//
// # Prometheus
//
// NewCollector 把计数器导出为 Prometheus 指标：
//
//	reg := prometheus.NewRegistry()
//	reg.MustRegister(metrics.NewCollector("slp", counter))
//
// 导出的指标：
//   - slp_bytes_total{direction,function}
//   - slp_messages_total{direction,function}
//   - slp_dropped_total{reason}
//
// # Fx 模块
//
//	app := fx.New(
//	    metrics.Module,
//	    fx.Invoke(func(reporter metrics.Reporter) { ... }),
//	)
//
// 未启用统计时 Module 提供 NopReporter。
//
// # 并发安全
//
// 所有方法都是并发安全的：计数使用原子操作，映射由读写锁保护。
package metrics
