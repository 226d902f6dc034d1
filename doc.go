// Package slp 提供 SLPv2（RFC 2608）用户代理客户端
//
// # 核心概念
//
//   - DiscoveryContext: 进程级共享状态，持有属性、传输引擎与 KnownDA 缓存
//   - Handle: 会话句柄，执行服务查找与注册，同一时刻只有一个操作
//   - DA: 目录代理，存在时查询与注册都发往 DA，否则使用多播
//
// # 快速开始
//
//	dc, err := slp.New(ctx, slp.WithScopes("eng"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dc.Close()
//
//	h, err := dc.Open()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer h.Close()
//
//	err = h.FindSrvs(ctx, "service:printer", "", "", func(url string, lifetime uint16, err error) transport.Verdict {
//	    if err != nil {
//	        return transport.Stop
//	    }
//	    fmt.Println(url, lifetime)
//	    return transport.Continue
//	})
//
// # 组件
//
//	┌──────────────────────────────────────────────────────────┐
//	│  slp.DiscoveryContext                                    │
//	│  ┌──────────────┐                                        │
//	│  │session.Handle│  FindSrvs / FindAttrs / Reg / ...      │
//	│  └──────┬───────┘                                        │
//	│         │                                                │
//	│  ┌──────▼───────┐   ┌──────────────────┐                 │
//	│  │knownda.Cache │──▶│ transport.Engine │──▶ UDP / TCP    │
//	│  └──────────────┘   └──────────────────┘                 │
//	│         config.Properties      metrics.Reporter          │
//	└──────────────────────────────────────────────────────────┘
//
// # 配置
//
// net.slp.* 属性可以来自 slp.conf 风格的文件（config.Config.ConfFile）、
// JSON 统一配置（WithConfigFile）或逐项覆盖（WithProperty）。
//
// # 日志
//
// 日志级别由环境变量 SLP_LOG_LEVEL 控制，例如 "slp.transport=debug,info"。
package slp
