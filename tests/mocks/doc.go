// Package mocks 提供统一的测试 Mock 实现
//
// # 网络 Mock
//
//   - MockNetwork: 模拟 transport.Network，数据报与 TCP 流都在内存中投递
//   - MockPacketConn: 内存数据报套接字，可直接 Inject 任意字节
//   - MockNode: 网络上的一个节点，按 Handler 生成应答，可改写（MangleFunc）
//     或附加标志（ReplyFlags）
//
// # 代理 Mock
//
//   - MockAgent: 带简单注册表的 DA/SA，应答 SrvRqst、AttrRqst、SrvTypeRqst、
//     SrvReg、SrvDeReg 与 DA 发现
//
// # 设计原则
//
// 1. 函数式注入: 通过 XxxFunc 字段注入自定义行为
// 2. 调用记录: 节点记录收到的请求，网络记录发送的数据报
// 3. 真实语义: 多播应答遵守 PRList，多播请求不应答 scope 错误与空结果
//
// # 使用示例
//
//	network := mocks.NewMockNetwork()
//	da := mocks.NewMockDA("10.0.0.5", "DEFAULT")
//	network.AddNode("10.0.0.5", da.Handle)
//
//	eng := transport.NewEngine(props, transport.WithNetwork(network))
package mocks
