package session

import "errors"

var (
	// ErrEmptyServiceType 服务类型为空
	ErrEmptyServiceType = errors.New("session: empty service type")

	// ErrInvalidURL 服务 URL 为空或无法解析
	ErrInvalidURL = errors.New("session: invalid service url")

	// ErrNilCallback 回调为空
	ErrNilCallback = errors.New("session: nil callback")

	// ErrEmptyTags 要删除的属性标签为空
	ErrEmptyTags = errors.New("session: empty attribute tag list")

	// ErrLifetime 注册生存期不在 1..65535 之内
	ErrLifetime = errors.New("session: lifetime out of range")

	// ErrIncremental 不支持增量注册
	ErrIncremental = errors.New("session: incremental registration not supported")

	// ErrInUse 句柄上已有操作在进行
	ErrInUse = errors.New("session: handle in use")

	// ErrClosed 句柄已关闭
	ErrClosed = errors.New("session: handle closed")

	// ErrNoTarget 没有可用于注册的 SA 或 DA
	ErrNoTarget = errors.New("session: no agent to register with")
)
