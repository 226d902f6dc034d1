package slp

import "errors"

// 公共错误定义
var (
	// ErrClosed 上下文已关闭
	ErrClosed = errors.New("slp: discovery context closed")
)
