// Package wire 实现 SLPv2（RFC 2608）报文编解码
//
// # 报文结构
//
// 每个报文由头部与消息体组成，头部为网络字节序：
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|    Version    |  Function-ID  |            Length             |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	| Length, contd.|O|F|R|       reserved          |Next Ext Offset|
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|  Next Extension Offset, contd.|              XID              |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|      Language Tag Length      |         Language Tag          \
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//
// 消息体由 Function-ID 选择，共 11 种，在 Go 中以 Body 接口表示（和类型）：
// 调用方通过类型断言取得具体消息体。
//
// # 解码
//
// Decode 先解析头部，再解析消息体，最后沿扩展链解析扩展。所有字段读取都经过
// buffer 包的边界检查，任何截断或越界都返回 types.ParseError。
// 应答类消息（SrvRply、AttrRply、DAAdvert、SrvTypeRply）在错误码非零时
// 不再解析剩余字段，只返回错误码。
//
// 扩展链通过偏移量串联，解码器记录访问过的偏移以检测环。
// 0x4000–0x7FFF 范围内无法识别的扩展返回 types.OptionNotUnderstood。
//
// # 编码
//
// Encode 先精确计算报文长度，一次分配后按 RFC 字段顺序写入，不会产生部分写入。
package wire
