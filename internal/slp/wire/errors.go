package wire

import (
	"errors"

	"github.com/dep2p/go-slp/pkg/types"
)

var (
	// ErrTooShort 报文短于最小头部
	ErrTooShort = errors.New("wire: message shorter than minimum header")

	// ErrBadFunction 功能号不在 1..11 范围内
	ErrBadFunction = errors.New("wire: function id out of range")

	// ErrReservedFlags 保留标志位非零
	ErrReservedFlags = errors.New("wire: reserved flag bits set")

	// ErrBadLength 长度字段与缓冲区不一致
	ErrBadLength = errors.New("wire: length field inconsistent with buffer")

	// ErrExtOffset 扩展偏移越界
	ErrExtOffset = errors.New("wire: extension offset out of range")

	// ErrExtCycle 扩展链存在环
	ErrExtCycle = errors.New("wire: extension chain loops")

	// ErrBodyTooShort 消息体短于该类型的最小长度
	ErrBodyTooShort = errors.New("wire: body shorter than minimum")

	// ErrAuthLength 认证块长度字段非法
	ErrAuthLength = errors.New("wire: auth block length invalid")

	// ErrNoBody 报文缺少消息体或消息体与功能号不匹配
	ErrNoBody = errors.New("wire: body missing or mismatched")

	// ErrFieldTooLong 字段超出长度前缀可表示的范围
	ErrFieldTooLong = errors.New("wire: field too long")
)

// parseError 将解码错误包装为 ParseError
func parseError(op string, err error) error {
	var se *types.Error
	if errors.As(err, &se) {
		return err
	}
	return types.NewError(types.ParseError, op, err)
}

// encodeError 将编码错误包装为 ParameterBad
func encodeError(op string, err error) error {
	var se *types.Error
	if errors.As(err, &se) {
		return err
	}
	return types.NewError(types.ParameterBad, op, err)
}
