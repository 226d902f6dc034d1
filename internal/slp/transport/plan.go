package transport

import (
	"time"

	"github.com/dep2p/go-slp/config"
)

// Class 交换类别，决定使用哪组重传属性
type Class int

const (
	// ClassUnicast 单播数据报
	ClassUnicast Class = iota
	// ClassMulticast 多播
	ClassMulticast
	// ClassBroadcast 广播（net.slp.isBroadcastOnly）
	ClassBroadcast
	// ClassDADiscovery DA 发现
	ClassDADiscovery
)

// String 返回类别名称
func (c Class) String() string {
	switch c {
	case ClassUnicast:
		return "unicast"
	case ClassMulticast:
		return "multicast"
	case ClassBroadcast:
		return "broadcast"
	case ClassDADiscovery:
		return "da-discovery"
	default:
		return "unknown"
	}
}

// Plan 重传计划
type Plan struct {
	// Timeouts 每次发送后的等待时间
	Timeouts []time.Duration
	// MaxWait 所有等待时间之和的上限
	MaxWait time.Duration
}

// PlanFor 从属性构建计划
//
// 广播使用 net.slp.datagramTimeouts 与多播的上限。
func PlanFor(class Class, props *config.Properties) Plan {
	switch class {
	case ClassUnicast:
		return Plan{
			Timeouts: props.MillisList(config.KeyUnicastTimeouts),
			MaxWait:  props.Millis(config.KeyUnicastMaximumWait),
		}
	case ClassBroadcast:
		return Plan{
			Timeouts: props.MillisList(config.KeyDatagramTimeouts),
			MaxWait:  props.Millis(config.KeyMulticastMaximumWait),
		}
	case ClassDADiscovery:
		return Plan{
			Timeouts: props.MillisList(config.KeyDADiscoveryTimeouts),
			MaxWait:  props.Millis(config.KeyDADiscoveryMaximumWait),
		}
	default:
		return Plan{
			Timeouts: props.MillisList(config.KeyMulticastTimeouts),
			MaxWait:  props.Millis(config.KeyMulticastMaximumWait),
		}
	}
}

// Attempts 返回实际发送的每次等待时间
//
// 第 i 次发送前累加 t[i]；t[i] 为 0 或累计超过 MaxWait 即停止。
// 超时列表为空时只发送一次，等待 MaxWait。
func (p Plan) Attempts() []time.Duration {
	if len(p.Timeouts) == 0 {
		if p.MaxWait <= 0 {
			return nil
		}
		return []time.Duration{p.MaxWait}
	}
	var (
		out   []time.Duration
		total time.Duration
	)
	for _, t := range p.Timeouts {
		total += t
		if t <= 0 || total > p.MaxWait {
			break
		}
		out = append(out, t)
	}
	return out
}

// First 流交换使用的等待时间：第一个超时，列表为空时为 MaxWait
func (p Plan) First() time.Duration {
	if len(p.Timeouts) > 0 && p.Timeouts[0] > 0 {
		return p.Timeouts[0]
	}
	return p.MaxWait
}
