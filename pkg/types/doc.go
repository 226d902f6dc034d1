// Package types 定义 go-slp 的公共基础类型
//
// 这是整个系统的最底层包，不依赖任何其他 go-slp 内部包。
// 所有类型都是纯值类型，用于在 wire、transport、knownda、session 各层之间传递。
//
// # 文件组织
//
//   - enums.go   - FunctionID（消息功能号）、Flags（头部标志位）、协议常量
//   - errors.go  - ErrorCode（API 错误码）、Error（带操作上下文的错误）、哨兵错误
//
// # 错误码
//
// ErrorCode 与 RFC 2614 的 SLPError 取值一致：线路错误码取负即得 API 错误码，
// 仅在本地出现的错误码（如 HandleInUse）与线路错误码不相交。
// 线路上存在但 API 中没有对应值的错误码被映射到 -100 以下的本地区间。
package types
