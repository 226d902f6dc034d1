package wire

import (
	"math/rand/v2"
	"sync"
)

// XIDSource 事务 ID 生成器
//
// 随机起点，之后单调递增，跳过 0。
type XIDSource struct {
	mu   sync.Mutex
	next uint16
}

// NewXIDSource 创建随机起点的生成器
func NewXIDSource() *XIDSource {
	return &XIDSource{next: uint16(rand.N(0xFFFF)) + 1}
}

// Next 返回下一个事务 ID
func (s *XIDSource) Next() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next == 0 {
		s.next = 1
	}
	x := s.next
	s.next++
	return x
}

var defaultXIDs = NewXIDSource()

// NextXID 从进程默认生成器取下一个事务 ID
func NextXID() uint16 {
	return defaultXIDs.Next()
}
