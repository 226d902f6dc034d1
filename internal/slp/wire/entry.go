package wire

import (
	"github.com/dep2p/go-slp/internal/slp/buffer"
)

// ============================================================================
//                              AuthBlock
// ============================================================================

// authBlockFixed 认证块定长部分：BSD(2) + Length(2) + Timestamp(4) + SPI 长度(2)
const authBlockFixed = 10

// AuthBlock 认证块
//
// 内容不做校验，Opaque 为解码缓冲区的视图。
type AuthBlock struct {
	BSD       uint16
	Timestamp uint32
	SPI       string
	Opaque    []byte
}

func (a *AuthBlock) size() int {
	return authBlockFixed + len(a.SPI) + len(a.Opaque)
}

func decodeAuthBlock(b *buffer.Buffer) (AuthBlock, error) {
	var a AuthBlock
	start := b.Pos()
	if b.Remaining() < authBlockFixed {
		return a, ErrBodyTooShort
	}
	a.BSD, _ = b.ReadU16()
	length, _ := b.ReadU16()
	a.Timestamp, _ = b.ReadU32()
	spi, err := b.ReadString16()
	if err != nil {
		return a, err
	}
	a.SPI = spi

	end := start + int(length)
	if int(length) < authBlockFixed || end < b.Pos() || end > b.Len() {
		return a, ErrAuthLength
	}
	if n := end - b.Pos(); n > 0 {
		a.Opaque, _ = b.ReadSlice(n)
	}
	return a, nil
}

func (a *AuthBlock) encode(b *buffer.Buffer) error {
	if a.size() > 0xFFFF {
		return ErrFieldTooLong
	}
	if err := b.WriteU16(a.BSD); err != nil {
		return err
	}
	if err := b.WriteU16(uint16(a.size())); err != nil {
		return err
	}
	if err := b.WriteU32(a.Timestamp); err != nil {
		return err
	}
	if err := b.WriteString16(a.SPI); err != nil {
		return err
	}
	return b.WriteBytes(a.Opaque)
}

// decodeAuthBlocks 读取 1 字节计数与随后的认证块
func decodeAuthBlocks(b *buffer.Buffer) ([]AuthBlock, error) {
	count, err := b.ReadU8()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	auths := make([]AuthBlock, 0, count)
	for i := 0; i < int(count); i++ {
		a, err := decodeAuthBlock(b)
		if err != nil {
			return nil, err
		}
		auths = append(auths, a)
	}
	return auths, nil
}

func authBlocksSize(auths []AuthBlock) int {
	n := 1
	for i := range auths {
		n += auths[i].size()
	}
	return n
}

func encodeAuthBlocks(b *buffer.Buffer, auths []AuthBlock) error {
	if len(auths) > 0xFF {
		return ErrFieldTooLong
	}
	if err := b.WriteU8(uint8(len(auths))); err != nil {
		return err
	}
	for i := range auths {
		if err := auths[i].encode(b); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
//                              URLEntry
// ============================================================================

// urlEntryMin Reserved(1) + Lifetime(2) + URL 长度(2) + 认证块计数(1)
const urlEntryMin = 6

// URLEntry 服务 URL 条目
type URLEntry struct {
	Reserved uint8
	// Lifetime 生存期（秒）
	Lifetime uint16
	URL      string
	Auths    []AuthBlock
}

func (u *URLEntry) size() int {
	return 1 + 2 + str16(u.URL) + authBlocksSize(u.Auths)
}

func decodeURLEntry(b *buffer.Buffer) (URLEntry, error) {
	var u URLEntry
	if b.Remaining() < urlEntryMin {
		return u, ErrBodyTooShort
	}
	u.Reserved, _ = b.ReadU8()
	u.Lifetime, _ = b.ReadU16()
	url, err := b.ReadString16()
	if err != nil {
		return u, err
	}
	u.URL = url
	if u.Auths, err = decodeAuthBlocks(b); err != nil {
		return u, err
	}
	return u, nil
}

func (u *URLEntry) encode(b *buffer.Buffer) error {
	if err := b.WriteU8(u.Reserved); err != nil {
		return err
	}
	if err := b.WriteU16(u.Lifetime); err != nil {
		return err
	}
	if err := b.WriteString16(u.URL); err != nil {
		return err
	}
	return encodeAuthBlocks(b, u.Auths)
}

// str16 16 位长度前缀字符串的编码长度
func str16(s string) int {
	return 2 + len(s)
}
