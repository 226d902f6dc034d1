// Package transport 实现 SLP 的请求/应答交换
//
// 所有操作共用同一套收发算法：
//
//   - 数据报（多播、广播、单播 UDP）：按重传计划逐次发送，每次发送前把已应答节点
//     写入 PRList（Previous Responder List），在该次超时内收集 XID 匹配的应答。
//   - 流（TCP）：一次发送、一次接收，应答按头部 24 位长度分帧。
//
// 每个被接受的操作恰好触发一次终止回调：应答为 nil，错误为 types.ErrLastCall
// 或导致操作失败的错误。
//
// 使用示例：
//
//	eng := transport.NewEngine(props)
//	err := eng.Multicast(ctx, &transport.Request{Body: rqst, LangTag: "en"},
//	    func(reply *wire.Message, err error) transport.Verdict {
//	        if types.IsLastCall(err) {
//	            return transport.Stop
//	        }
//	        // 处理 reply
//	        return transport.Continue
//	    })
package transport
