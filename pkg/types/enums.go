package types

import "time"

// ============================================================================
//                              协议常量
// ============================================================================

const (
	// Version SLP 协议版本（仅支持 v2）
	Version = 2

	// ReservedPort SLP 保留端口
	ReservedPort = 427

	// DefaultMulticastGroupV4 IPv4 管理范围多播组
	DefaultMulticastGroupV4 = "239.255.255.253"

	// LifetimeDefault 默认注册生存期（秒）
	LifetimeDefault = 10800

	// LifetimeMaximum 最大注册生存期（秒）
	LifetimeMaximum = 65535

	// DirectoryAgentType DA 的服务类型
	DirectoryAgentType = "service:directory-agent"

	// ServiceAgentType SA 的服务类型
	ServiceAgentType = "service:service-agent"

	// DefaultScope 默认 scope
	DefaultScope = "DEFAULT"
)

// LifetimeToDuration 将线路上的秒数转换为 time.Duration
func LifetimeToDuration(seconds uint16) time.Duration {
	return time.Duration(seconds) * time.Second
}

// ============================================================================
//                              FunctionID - 消息功能号
// ============================================================================

// FunctionID 消息功能号（头部第 2 字节）
type FunctionID uint8

const (
	// FuncSrvRqst 服务请求
	FuncSrvRqst FunctionID = iota + 1
	// FuncSrvRply 服务应答
	FuncSrvRply
	// FuncSrvReg 服务注册
	FuncSrvReg
	// FuncSrvDeReg 服务注销
	FuncSrvDeReg
	// FuncSrvAck 注册/注销确认
	FuncSrvAck
	// FuncAttrRqst 属性请求
	FuncAttrRqst
	// FuncAttrRply 属性应答
	FuncAttrRply
	// FuncDAAdvert DA 通告
	FuncDAAdvert
	// FuncSrvTypeRqst 服务类型请求
	FuncSrvTypeRqst
	// FuncSrvTypeRply 服务类型应答
	FuncSrvTypeRply
	// FuncSAAdvert SA 通告
	FuncSAAdvert
)

// FuncDADiscovery 仅在本地使用的伪功能号：DA 发现时的 SrvRqst
//
// 线路上仍以 FuncSrvRqst 发送，只用于选择重传计划。
const FuncDADiscovery FunctionID = 0xFF

// Valid 功能号是否在 1..11 范围内
func (f FunctionID) Valid() bool {
	return f >= FuncSrvRqst && f <= FuncSAAdvert
}

// IsReply 是否为应答类消息
func (f FunctionID) IsReply() bool {
	switch f {
	case FuncSrvRply, FuncSrvAck, FuncAttrRply, FuncDAAdvert, FuncSrvTypeRply, FuncSAAdvert:
		return true
	}
	return false
}

// CarriesPRList 请求体是否以 PRList 开头
func (f FunctionID) CarriesPRList() bool {
	switch f {
	case FuncSrvRqst, FuncAttrRqst, FuncSrvTypeRqst, FuncDADiscovery:
		return true
	}
	return false
}

// String 返回功能号名称
func (f FunctionID) String() string {
	switch f {
	case FuncSrvRqst:
		return "SrvRqst"
	case FuncSrvRply:
		return "SrvRply"
	case FuncSrvReg:
		return "SrvReg"
	case FuncSrvDeReg:
		return "SrvDeReg"
	case FuncSrvAck:
		return "SrvAck"
	case FuncAttrRqst:
		return "AttrRqst"
	case FuncAttrRply:
		return "AttrRply"
	case FuncDAAdvert:
		return "DAAdvert"
	case FuncSrvTypeRqst:
		return "SrvTypeRqst"
	case FuncSrvTypeRply:
		return "SrvTypeRply"
	case FuncSAAdvert:
		return "SAAdvert"
	case FuncDADiscovery:
		return "DADiscovery"
	default:
		return "Unknown"
	}
}

// ============================================================================
//                              Flags - 头部标志位
// ============================================================================

// Flags 头部标志位
type Flags uint16

const (
	// FlagOverflow 应答被截断
	FlagOverflow Flags = 0x8000
	// FlagFresh 新注册（非增量）
	FlagFresh Flags = 0x4000
	// FlagMcast 请求通过多播/广播发送
	FlagMcast Flags = 0x2000

	// FlagsReserved 保留位，必须为 0
	FlagsReserved Flags = 0x1fff
)

// Has 是否设置了指定标志
func (f Flags) Has(flag Flags) bool {
	return f&flag != 0
}
