package knownda

import "errors"

var (
	// ErrNoDA 没有支持所请求 scope 的可达 DA
	ErrNoDA = errors.New("knownda: no directory agent for scopes")

	// ErrThrottled 距上次主动发现未满最小间隔
	ErrThrottled = errors.New("knownda: discovery throttled")

	// ErrClosed 缓存已关闭
	ErrClosed = errors.New("knownda: cache closed")
)
