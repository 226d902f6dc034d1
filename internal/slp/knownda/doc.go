// Package knownda 维护已知 DA（Directory Agent）缓存
//
// 缓存项来自 DAAdvert，按 URL 去重。按 scope 查找未命中时依次尝试：
//
//  1. 本机 slpd（回环地址 TCP 427）
//  2. net.slp.DAAddresses 配置的地址
//  3. DHCP 选项 78/79
//  4. 主动多播发现（net.slp.activeDADetection）
//
// 任一来源得到 DA 即停止。两次发现之间至少间隔 MinDiscoveryInterval，
// 并发的未命中只触发一次发现。
//
// 连接失败的 DA 从缓存删除并进入负缓存，BadDATTL 内不会被发现流程重新加入。
//
// 使用示例：
//
//	cache, err := knownda.NewCache(engine, knownda.WithDHCP(dhcp.NewClient()))
//	conn, da, err := cache.Connect(ctx, "DEFAULT")
//	if errors.Is(err, knownda.ErrNoDA) {
//	    // 回退到多播
//	}
package knownda
