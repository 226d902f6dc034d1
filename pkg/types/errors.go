package types

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// ============================================================================
//                              ErrorCode - API 错误码
// ============================================================================

// ErrorCode API 错误码
//
// ErrorCode 本身实现 error，可直接作为哨兵错误使用：
//
//	if errors.Is(err, types.ParseError) { ... }
type ErrorCode int

const (
	// LastCall 终止回调标记，不是错误
	LastCall ErrorCode = 1
	// OK 成功
	OK ErrorCode = 0

	LanguageNotSupported ErrorCode = -1
	ParseError           ErrorCode = -2
	InvalidRegistration  ErrorCode = -3
	ScopeNotSupported    ErrorCode = -4
	AuthenticationAbsent ErrorCode = -6
	AuthenticationFailed ErrorCode = -7
	InvalidUpdate        ErrorCode = -13
	RefreshRejected      ErrorCode = -15
	NotImplemented       ErrorCode = -17
	BufferOverflow       ErrorCode = -18
	NetworkTimedOut      ErrorCode = -19
	NetworkInitFailed    ErrorCode = -20
	MemoryAllocFailed    ErrorCode = -21
	ParameterBad         ErrorCode = -22
	NetworkError         ErrorCode = -23
	InternalSystemError  ErrorCode = -24
	HandleInUse          ErrorCode = -25
	TypeError            ErrorCode = -26

	// 以下错误码只出现在线路上，API 中没有对应值，映射到本地区间

	AuthenticationUnknown ErrorCode = -105
	VersionNotSupported   ErrorCode = -109
	InternalError         ErrorCode = -110
	DABusyNow             ErrorCode = -111
	OptionNotUnderstood   ErrorCode = -112
	MessageNotSupported   ErrorCode = -114
)

// ResourceExhausted 分配失败的别名
const ResourceExhausted = MemoryAllocFailed

var codeNames = map[ErrorCode]string{
	LastCall:              "last call",
	OK:                    "ok",
	LanguageNotSupported:  "language not supported",
	ParseError:            "parse error",
	InvalidRegistration:   "invalid registration",
	ScopeNotSupported:     "scope not supported",
	AuthenticationAbsent:  "authentication absent",
	AuthenticationFailed:  "authentication failed",
	InvalidUpdate:         "invalid update",
	RefreshRejected:       "refresh rejected",
	NotImplemented:        "not implemented",
	BufferOverflow:        "buffer overflow",
	NetworkTimedOut:       "network timed out",
	NetworkInitFailed:     "network init failed",
	MemoryAllocFailed:     "memory allocation failed",
	ParameterBad:          "parameter bad",
	NetworkError:          "network error",
	InternalSystemError:   "internal system error",
	HandleInUse:           "handle in use",
	TypeError:             "type error",
	AuthenticationUnknown: "authentication unknown",
	VersionNotSupported:   "version not supported",
	InternalError:         "internal error",
	DABusyNow:             "DA busy now",
	OptionNotUnderstood:   "option not understood",
	MessageNotSupported:   "message not supported",
}

// String 返回错误码名称
func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("error code %d", int(c))
}

// Error 实现 error 接口
func (c ErrorCode) Error() string {
	return "slp: " + c.String()
}

// Local 是否为仅本地出现的错误码（不可能来自对端）
func (c ErrorCode) Local() bool {
	switch c {
	case NotImplemented, BufferOverflow, NetworkTimedOut, NetworkInitFailed,
		MemoryAllocFailed, ParameterBad, NetworkError, InternalSystemError,
		HandleInUse, TypeError:
		return true
	}
	return false
}

// ============================================================================
//                              WireError - 线路错误码
// ============================================================================

// WireError 线路上的 16 位错误码（应答消息体第一个字段）
type WireError uint16

const (
	WireOK                    WireError = 0
	WireLanguageNotSupported  WireError = 1
	WireParseError            WireError = 2
	WireInvalidRegistration   WireError = 3
	WireScopeNotSupported     WireError = 4
	WireAuthenticationUnknown WireError = 5
	WireAuthenticationAbsent  WireError = 6
	WireAuthenticationFailed  WireError = 7
	WireVerNotSupported       WireError = 9
	WireInternalError         WireError = 10
	WireDABusyNow             WireError = 11
	WireOptionNotUnderstood   WireError = 12
	WireInvalidUpdate         WireError = 13
	WireMessageNotSupported   WireError = 14
	WireRefreshRejected       WireError = 15
)

// Code 将线路错误码转换为 API 错误码
func (w WireError) Code() ErrorCode {
	switch w {
	case WireOK:
		return OK
	case WireAuthenticationUnknown:
		return AuthenticationUnknown
	case WireOptionNotUnderstood:
		return OptionNotUnderstood
	case WireVerNotSupported:
		return VersionNotSupported
	case WireInternalError:
		return InternalError
	case WireDABusyNow:
		return DABusyNow
	case WireMessageNotSupported:
		return MessageNotSupported
	default:
		return ErrorCode(-int(w))
	}
}

// ToWire 将 API 错误码转换为线路错误码
//
// 本地错误码没有线路表示，返回 WireInternalError。
func ToWire(c ErrorCode) WireError {
	switch c {
	case OK, LastCall:
		return WireOK
	case AuthenticationUnknown:
		return WireAuthenticationUnknown
	case OptionNotUnderstood:
		return WireOptionNotUnderstood
	case DABusyNow:
		return WireDABusyNow
	case VersionNotSupported:
		return WireVerNotSupported
	case InternalError:
		return WireInternalError
	case MessageNotSupported:
		return WireMessageNotSupported
	}
	if c.Local() || c > 0 {
		return WireInternalError
	}
	return WireError(-int(c))
}

// ============================================================================
//                              Error - 带上下文的错误
// ============================================================================

// Error 带操作上下文的 SLP 错误
type Error struct {
	// Code API 错误码
	Code ErrorCode
	// Op 发生错误的操作
	Op string
	// Err 底层错误
	Err error
}

// NewError 创建 Error
func NewError(code ErrorCode, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// Error 实现 error 接口
func (e *Error) Error() string {
	msg := "slp"
	if e.Op != "" {
		msg += " " + e.Op
	}
	msg += ": " + e.Code.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap 返回底层错误
func (e *Error) Unwrap() error {
	return e.Err
}

// Is 按错误码匹配
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case ErrorCode:
		return e.Code == t
	case *Error:
		return e.Code == t.Code
	}
	return false
}

// CodeOf 提取错误对应的 API 错误码
func CodeOf(err error) ErrorCode {
	if err == nil {
		return OK
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	var code ErrorCode
	if errors.As(err, &code) {
		return code
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return NetworkTimedOut
	}
	if errors.Is(err, context.Canceled) {
		return NetworkError
	}
	return InternalSystemError
}

// ============================================================================
//                              哨兵错误
// ============================================================================

var (
	// ErrLastCall 终止回调标记
	ErrLastCall error = LastCall

	// ErrParse 报文解析失败
	ErrParse error = ParseError

	// ErrResourceExhausted 内存分配失败
	ErrResourceExhausted error = ResourceExhausted

	// ErrHandleInUse 句柄上已有操作在进行
	ErrHandleInUse error = HandleInUse

	// ErrParameterBad 参数错误
	ErrParameterBad error = ParameterBad

	// ErrNetworkTimedOut 网络超时
	ErrNetworkTimedOut error = NetworkTimedOut

	// ErrBufferOverflow 报文超过 MTU
	ErrBufferOverflow error = BufferOverflow
)

// IsLastCall 判断是否为终止回调标记
func IsLastCall(err error) bool {
	return errors.Is(err, LastCall)
}
