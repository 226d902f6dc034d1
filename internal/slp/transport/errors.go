package transport

import "errors"

var (
	// ErrNoDestination 没有可用的目标地址（IPv4 与 IPv6 均被禁用）
	ErrNoDestination = errors.New("transport: no destination")

	// ErrExceedsMTU 数据报超过 net.slp.MTU
	ErrExceedsMTU = errors.New("transport: datagram exceeds MTU")

	// ErrStreamTooLarge 流应答超过 MaxStreamReply
	ErrStreamTooLarge = errors.New("transport: stream reply too large")

	// ErrNilCallback 回调为空
	ErrNilCallback = errors.New("transport: nil callback")

	// ErrNoReply 单播交换没有收到应答
	ErrNoReply = errors.New("transport: no reply")

	// ErrNoSocket 所有地址族的套接字都无法创建
	ErrNoSocket = errors.New("transport: no usable socket")
)
