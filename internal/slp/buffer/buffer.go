// Package buffer 提供带边界检查游标的字节缓冲区
//
// Buffer 维护 start ≤ cursor ≤ end 不变量：所有读写都先检查剩余长度，
// 越界时返回错误而不是读写越界。分配时在 end 之后额外保留 1 字节。
//
//	buf, err := buffer.Allocate(n)
//	buf.WriteU16(0x1234)
//	buf.Seek(0)
//	v, err := buf.ReadU16()
package buffer

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dep2p/go-slp/pkg/types"
)

// MaxSize 单个缓冲区的最大逻辑长度
//
// SLP 报文长度字段为 24 位，超出即视为资源耗尽。
const MaxSize = 1<<24 - 1

var (
	// ErrShortBuffer 读取越过 end
	ErrShortBuffer = errors.New("buffer: read past end")

	// ErrOverflow 写入越过 end
	ErrOverflow = errors.New("buffer: write past end")

	// ErrSeek 游标位置越界
	ErrSeek = errors.New("buffer: seek out of range")

	// ErrValueRange 数值超出字段宽度
	ErrValueRange = errors.New("buffer: value out of range")
)

// Buffer 字节缓冲区
type Buffer struct {
	data   []byte // len(data) == end + 1
	cursor int
	end    int
}

// ============================================================================
//                              生命周期
// ============================================================================

// Allocate 分配 size 字节的缓冲区，游标位于起点
func Allocate(size int) (*Buffer, error) {
	if size < 0 || size > MaxSize {
		return nil, types.NewError(types.ResourceExhausted, "allocate", fmt.Errorf("size %d", size))
	}
	return &Buffer{data: make([]byte, size+1), end: size}, nil
}

// Wrap 复制 p 到新缓冲区
func Wrap(p []byte) (*Buffer, error) {
	b, err := Allocate(len(p))
	if err != nil {
		return nil, err
	}
	copy(b.data, p)
	return b, nil
}

// Reallocate 调整缓冲区逻辑长度为 newSize
//
// 保留前 min(old, newSize) 字节；容量足够时不重新分配。
// b 为 nil 时等同于 Allocate。
func Reallocate(b *Buffer, newSize int) (*Buffer, error) {
	if b == nil {
		return Allocate(newSize)
	}
	if newSize < 0 || newSize > MaxSize {
		return nil, types.NewError(types.ResourceExhausted, "reallocate", fmt.Errorf("size %d", newSize))
	}
	if newSize+1 > cap(b.data) {
		grown := make([]byte, newSize+1)
		copy(grown, b.data[:b.end])
		b.data = grown
	} else {
		b.data = b.data[:newSize+1]
		// 截断后清空新暴露的区域，避免读到旧数据
		if newSize > b.end {
			clear(b.data[b.end:])
		}
	}
	b.end = newSize
	if b.cursor > b.end {
		b.cursor = b.end
	}
	return b, nil
}

// Duplicate 逐字节复制缓冲区（包括游标位置）
func Duplicate(b *Buffer) *Buffer {
	if b == nil {
		return nil
	}
	dup := &Buffer{data: make([]byte, len(b.data)), cursor: b.cursor, end: b.end}
	copy(dup.data, b.data)
	return dup
}

// Release 释放缓冲区，之后任何读写都会失败
func Release(b *Buffer) {
	if b == nil {
		return
	}
	b.data = nil
	b.cursor = 0
	b.end = 0
}

// ============================================================================
//                              游标
// ============================================================================

// Len 逻辑长度（end）
func (b *Buffer) Len() int { return b.end }

// Pos 当前游标位置
func (b *Buffer) Pos() int { return b.cursor }

// Remaining end 与游标之间的字节数
func (b *Buffer) Remaining() int { return b.end - b.cursor }

// Bytes 返回 [0, end) 的视图
func (b *Buffer) Bytes() []byte { return b.data[:b.end] }

// Seek 移动游标到绝对位置
func (b *Buffer) Seek(pos int) error {
	if pos < 0 || pos > b.end {
		return ErrSeek
	}
	b.cursor = pos
	return nil
}

// Skip 向前移动 n 字节
func (b *Buffer) Skip(n int) error {
	if n < 0 || n > b.Remaining() {
		return ErrShortBuffer
	}
	b.cursor += n
	return nil
}

// Truncate 将 end 收缩到 n（n 不超过当前 end）
func (b *Buffer) Truncate(n int) error {
	if n < 0 || n > b.end {
		return ErrSeek
	}
	b.end = n
	b.data = b.data[:n+1]
	if b.cursor > n {
		b.cursor = n
	}
	return nil
}

// ============================================================================
//                              读取
// ============================================================================

func (b *Buffer) take(n int) ([]byte, error) {
	if n < 0 || n > b.Remaining() {
		return nil, ErrShortBuffer
	}
	p := b.data[b.cursor : b.cursor+n : b.cursor+n]
	b.cursor += n
	return p, nil
}

// ReadU8 读取 1 字节
func (b *Buffer) ReadU8() (uint8, error) {
	p, err := b.take(1)
	if err != nil {
		return 0, err
	}
	return p[0], nil
}

// ReadU16 读取大端 16 位整数
func (b *Buffer) ReadU16() (uint16, error) {
	p, err := b.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(p), nil
}

// ReadU24 读取大端 24 位整数
func (b *Buffer) ReadU24() (uint32, error) {
	p, err := b.take(3)
	if err != nil {
		return 0, err
	}
	return uint32(p[0])<<16 | uint32(p[1])<<8 | uint32(p[2]), nil
}

// ReadU32 读取大端 32 位整数
func (b *Buffer) ReadU32() (uint32, error) {
	p, err := b.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(p), nil
}

// ReadSlice 读取 n 字节，返回与缓冲区共享内存的视图
func (b *Buffer) ReadSlice(n int) ([]byte, error) {
	return b.take(n)
}

// ReadBytes16 读取 16 位长度前缀的字节串（视图）
func (b *Buffer) ReadBytes16() ([]byte, error) {
	n, err := b.ReadU16()
	if err != nil {
		return nil, err
	}
	return b.take(int(n))
}

// ReadString16 读取 16 位长度前缀的字符串
func (b *Buffer) ReadString16() (string, error) {
	p, err := b.ReadBytes16()
	if err != nil {
		return "", err
	}
	return string(p), nil
}

// ============================================================================
//                              写入
// ============================================================================

func (b *Buffer) reserve(n int) ([]byte, error) {
	if n < 0 || n > b.Remaining() {
		return nil, ErrOverflow
	}
	p := b.data[b.cursor : b.cursor+n]
	b.cursor += n
	return p, nil
}

// WriteU8 写入 1 字节
func (b *Buffer) WriteU8(v uint8) error {
	p, err := b.reserve(1)
	if err != nil {
		return err
	}
	p[0] = v
	return nil
}

// WriteU16 写入大端 16 位整数
func (b *Buffer) WriteU16(v uint16) error {
	p, err := b.reserve(2)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint16(p, v)
	return nil
}

// WriteU24 写入大端 24 位整数
func (b *Buffer) WriteU24(v uint32) error {
	if v > 0xFFFFFF {
		return ErrValueRange
	}
	p, err := b.reserve(3)
	if err != nil {
		return err
	}
	p[0], p[1], p[2] = byte(v>>16), byte(v>>8), byte(v)
	return nil
}

// WriteU32 写入大端 32 位整数
func (b *Buffer) WriteU32(v uint32) error {
	p, err := b.reserve(4)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint32(p, v)
	return nil
}

// WriteBytes 写入原始字节
func (b *Buffer) WriteBytes(v []byte) error {
	p, err := b.reserve(len(v))
	if err != nil {
		return err
	}
	copy(p, v)
	return nil
}

// WriteBytes16 写入 16 位长度前缀的字节串
func (b *Buffer) WriteBytes16(v []byte) error {
	if len(v) > 0xFFFF {
		return ErrValueRange
	}
	if err := b.WriteU16(uint16(len(v))); err != nil {
		return err
	}
	return b.WriteBytes(v)
}

// WriteString16 写入 16 位长度前缀的字符串
func (b *Buffer) WriteString16(s string) error {
	if len(s) > 0xFFFF {
		return ErrValueRange
	}
	if err := b.WriteU16(uint16(len(s))); err != nil {
		return err
	}
	p, err := b.reserve(len(s))
	if err != nil {
		return err
	}
	copy(p, s)
	return nil
}

// PutU24At 在绝对位置写入 24 位整数，不移动游标
func (b *Buffer) PutU24At(pos int, v uint32) error {
	if v > 0xFFFFFF {
		return ErrValueRange
	}
	if pos < 0 || pos+3 > b.end {
		return ErrOverflow
	}
	b.data[pos], b.data[pos+1], b.data[pos+2] = byte(v>>16), byte(v>>8), byte(v)
	return nil
}
