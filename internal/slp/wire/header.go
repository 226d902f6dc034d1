package wire

import (
	"github.com/dep2p/go-slp/internal/slp/buffer"
	"github.com/dep2p/go-slp/pkg/types"
)

const (
	// FixedHeaderSize 头部定长部分（不含语言标签）
	FixedHeaderSize = 14

	// MinMessageSize 最小可解析报文长度
	MinMessageSize = 18

	// MaxLength 24 位长度字段上限
	MaxLength = 0xFFFFFF

	// 头部内 XID 的位置，传输层据此在解码前匹配应答
	xidOffset = 10
)

// Header SLPv2 报文头
type Header struct {
	Version   uint8
	Function  types.FunctionID
	Length    uint32
	Flags     types.Flags
	ExtOffset uint32
	XID       uint16
	LangTag   string
}

// Size 头部编码长度
func (h *Header) Size() int {
	return FixedHeaderSize + len(h.LangTag)
}

// PeekXID 从原始报文读取 XID，长度不足返回 false
func PeekXID(p []byte) (uint16, bool) {
	if len(p) < xidOffset+2 {
		return 0, false
	}
	return uint16(p[xidOffset])<<8 | uint16(p[xidOffset+1]), true
}

// PeekLength 从原始报文读取 24 位长度字段
func PeekLength(p []byte) (int, bool) {
	if len(p) < 5 {
		return 0, false
	}
	return int(p[2])<<16 | int(p[3])<<8 | int(p[4]), true
}

// DecodeHeader 解析报文头，游标停在消息体起点
//
// 成功返回后缓冲区 end 被收缩到长度字段声明的位置。
func DecodeHeader(b *buffer.Buffer) (Header, error) {
	var h Header
	if b.Len() < MinMessageSize {
		return h, parseError("header", ErrTooShort)
	}
	if err := b.Seek(0); err != nil {
		return h, parseError("header", err)
	}

	// 长度已检查，以下定长读取不会失败
	h.Version, _ = b.ReadU8()
	fn, _ := b.ReadU8()
	h.Function = types.FunctionID(fn)
	h.Length, _ = b.ReadU24()
	flags, _ := b.ReadU16()
	h.Flags = types.Flags(flags)
	h.ExtOffset, _ = b.ReadU24()
	h.XID, _ = b.ReadU16()

	if h.Version != types.Version {
		return h, types.NewError(types.VersionNotSupported, "header", nil)
	}
	if !h.Function.Valid() {
		return h, parseError("header", ErrBadFunction)
	}
	if h.Flags&types.FlagsReserved != 0 {
		return h, parseError("header", ErrReservedFlags)
	}
	if int(h.Length) > b.Len() || h.Length < MinMessageSize {
		return h, parseError("header", ErrBadLength)
	}
	if h.ExtOffset != 0 && int(h.ExtOffset) >= int(h.Length) {
		return h, parseError("header", ErrExtOffset)
	}

	lang, err := b.ReadString16()
	if err != nil {
		return h, parseError("header", err)
	}
	h.LangTag = lang
	if b.Pos() > int(h.Length) {
		return h, parseError("header", ErrBadLength)
	}
	if h.ExtOffset != 0 && int(h.ExtOffset) < b.Pos() {
		return h, parseError("header", ErrExtOffset)
	}

	// 忽略长度字段之后的尾随字节
	if err := b.Truncate(int(h.Length)); err != nil {
		return h, parseError("header", err)
	}
	return h, nil
}

// encode 写入头部，Length 与 ExtOffset 由调用方预先计算
func (h *Header) encode(b *buffer.Buffer) error {
	if err := b.WriteU8(types.Version); err != nil {
		return err
	}
	if err := b.WriteU8(uint8(h.Function)); err != nil {
		return err
	}
	if err := b.WriteU24(h.Length); err != nil {
		return err
	}
	if err := b.WriteU16(uint16(h.Flags)); err != nil {
		return err
	}
	if err := b.WriteU24(h.ExtOffset); err != nil {
		return err
	}
	if err := b.WriteU16(h.XID); err != nil {
		return err
	}
	return b.WriteString16(h.LangTag)
}
