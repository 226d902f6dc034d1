package wire

import (
	"net/netip"

	"github.com/dep2p/go-slp/internal/slp/buffer"
	"github.com/dep2p/go-slp/pkg/types"
)

// Message 一条完整的 SLPv2 报文
type Message struct {
	Header Header
	Body   Body

	// Peer 报文来源（仅解码时填写）
	Peer netip.AddrPort
}

// NewMessage 构造待编码的报文
func NewMessage(body Body, xid uint16, langTag string, flags types.Flags) *Message {
	return &Message{
		Header: Header{
			Version:  types.Version,
			Function: body.Function(),
			Flags:    flags,
			XID:      xid,
			LangTag:  langTag,
		},
		Body: body,
	}
}

// ============================================================================
//                              解码
// ============================================================================

// Decode 复制 data 并解析为报文
func Decode(data []byte, peer netip.AddrPort) (*Message, error) {
	b, err := buffer.Wrap(data)
	if err != nil {
		return nil, err
	}
	return DecodeBuffer(b, peer)
}

// DecodeBuffer 从缓冲区解析报文，消息体中的不透明字段引用 b 的内存
func DecodeBuffer(b *buffer.Buffer, peer netip.AddrPort) (*Message, error) {
	h, err := DecodeHeader(b)
	if err != nil {
		return nil, err
	}

	body := newBody(h.Function)
	if err := body.decode(b); err != nil {
		return nil, parseError(h.Function.String(), err)
	}

	m := &Message{Header: h, Body: body, Peer: peer}

	// 扩展链只在消息体成功解析后处理
	if err := decodeExtensions(b, m); err != nil {
		return nil, err
	}
	return m, nil
}

// ============================================================================
//                              编码
// ============================================================================

// Size 报文编码后的精确长度
func Size(m *Message) int {
	return m.Header.Size() + m.Body.size() + extensionsSize(m)
}

// Encode 编码报文
//
// 先计算长度再一次性分配；Header 的 Length 与 ExtOffset 由编码器填写。
func Encode(m *Message) ([]byte, error) {
	if m == nil || m.Body == nil {
		return nil, encodeError("encode", ErrNoBody)
	}
	if m.Header.Function == 0 {
		m.Header.Function = m.Body.Function()
	}
	if m.Header.Function != m.Body.Function() {
		return nil, encodeError("encode", ErrNoBody)
	}
	if m.Header.Flags&types.FlagsReserved != 0 {
		return nil, encodeError("encode", ErrReservedFlags)
	}
	if len(m.Header.LangTag) > 0xFFFF {
		return nil, encodeError("encode", ErrFieldTooLong)
	}

	total := Size(m)
	if total > MaxLength {
		return nil, types.NewError(types.BufferOverflow, "encode", ErrFieldTooLong)
	}

	b, err := buffer.Allocate(total)
	if err != nil {
		return nil, err
	}

	bodyEnd := m.Header.Size() + m.Body.size()
	m.Header.Version = types.Version
	m.Header.Length = uint32(total)
	m.Header.ExtOffset = 0
	if total > bodyEnd {
		m.Header.ExtOffset = uint32(bodyEnd)
	}

	if err := m.Header.encode(b); err != nil {
		return nil, encodeError(m.Header.Function.String(), err)
	}
	if err := m.Body.encode(b); err != nil {
		return nil, encodeError(m.Header.Function.String(), err)
	}
	if err := encodeExtensions(b, m); err != nil {
		return nil, encodeError(m.Header.Function.String(), err)
	}
	return b.Bytes(), nil
}
