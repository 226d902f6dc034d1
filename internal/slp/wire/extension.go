package wire

import (
	"github.com/dep2p/go-slp/internal/slp/buffer"
	"github.com/dep2p/go-slp/pkg/types"
)

const (
	// ExtRegPID 注册 PID 扩展
	ExtRegPID uint16 = 0x9799
	// ExtRegPIDExp 注册 PID 扩展的实验编号，仍然接受
	ExtRegPIDExp uint16 = 0x8002

	// 扩展头：ID(2) + 下一扩展偏移(3)
	extHeaderSize = 5

	mustUnderstandLow  = 0x4000
	mustUnderstandHigh = 0x7FFF
)

// MustUnderstand 扩展 ID 是否落在必须理解的范围
func MustUnderstand(id uint16) bool {
	return id >= mustUnderstandLow && id <= mustUnderstandHigh
}

// decodeExtensions 沿扩展链解析，记录访问过的偏移以拒绝环
func decodeExtensions(b *buffer.Buffer, m *Message) error {
	visited := make(map[uint32]struct{})
	next := m.Header.ExtOffset

	for next != 0 {
		if _, seen := visited[next]; seen {
			return parseError("extension", ErrExtCycle)
		}
		visited[next] = struct{}{}

		if err := b.Seek(int(next)); err != nil {
			return parseError("extension", ErrExtOffset)
		}
		if b.Remaining() < extHeaderSize {
			return parseError("extension", ErrExtOffset)
		}
		id, _ := b.ReadU16()
		next, _ = b.ReadU24()

		switch id {
		case ExtRegPID, ExtRegPIDExp:
			reg, ok := m.Body.(*SrvReg)
			if !ok {
				continue
			}
			pid, err := b.ReadU32()
			if err != nil {
				return parseError("extension", err)
			}
			reg.PID = pid
		default:
			if MustUnderstand(id) {
				return types.NewError(types.OptionNotUnderstood, "extension", nil)
			}
		}
	}
	return nil
}

func extensionsSize(m *Message) int {
	if reg, ok := m.Body.(*SrvReg); ok && reg.PID != 0 {
		return extHeaderSize + 4
	}
	return 0
}

func encodeExtensions(b *buffer.Buffer, m *Message) error {
	reg, ok := m.Body.(*SrvReg)
	if !ok || reg.PID == 0 {
		return nil
	}
	if err := b.WriteU16(ExtRegPID); err != nil {
		return err
	}
	if err := b.WriteU24(0); err != nil {
		return err
	}
	return b.WriteU32(reg.PID)
}
