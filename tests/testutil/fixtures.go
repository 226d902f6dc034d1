// Package testutil 提供测试辅助工具
package testutil

import "github.com/dep2p/go-slp/config"

// 测试数据固件
//
// 提供测试中常用的常量值，确保测试一致性。

const (
	// DefaultTestDA 默认测试 DA 地址
	DefaultTestDA = "10.0.0.5"

	// DefaultTestScope 默认测试 scope，与 net.slp.useScopes 的默认值相同
	DefaultTestScope = "DEFAULT"

	// DefaultTestService 默认测试服务 URL
	DefaultTestService = "service:printer://10.0.0.9:515/queue"
)

// FastProperties 返回缩短了全部重传计划的属性存储
//
// kv 为依次排列的键值对，在缩短后的计划之上覆盖。
func FastProperties(kv ...string) *config.Properties {
	p := config.NewProperties()
	p.Set(config.KeyUnicastTimeouts, "100,100")
	p.Set(config.KeyUnicastMaximumWait, "500")
	p.Set(config.KeyMulticastTimeouts, "20,20")
	p.Set(config.KeyMulticastMaximumWait, "100")
	p.Set(config.KeyDatagramTimeouts, "20,20")
	p.Set(config.KeyDADiscoveryTimeouts, "20,20")
	p.Set(config.KeyDADiscoveryMaximumWait, "100")
	for i := 0; i+1 < len(kv); i += 2 {
		p.Set(kv[i], kv[i+1])
	}
	return p
}

// FastConfig 与 FastProperties 对应的统一配置
func FastConfig(kv ...string) *config.Config {
	cfg := config.NewConfig()
	for k, v := range FastProperties(kv...).Snapshot() {
		cfg.Properties[k] = v
	}
	cfg.KnownDA.MinDiscoveryInterval = 0
	return cfg
}
