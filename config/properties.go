package config

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ============================================================================
//                              属性键
// ============================================================================

const (
	KeyIsBroadcastOnly        = "net.slp.isBroadcastOnly"
	KeyPassiveDADetection     = "net.slp.passiveDADetection"
	KeyActiveDADetection      = "net.slp.activeDADetection"
	KeyLocale                 = "net.slp.locale"
	KeyMulticastTimeouts      = "net.slp.multicastTimeouts"
	KeyMulticastMaximumWait   = "net.slp.multicastMaximumWait"
	KeyUnicastTimeouts        = "net.slp.unicastTimeouts"
	KeyUnicastMaximumWait     = "net.slp.unicastMaximumWait"
	KeyDatagramTimeouts       = "net.slp.datagramTimeouts"
	KeyDADiscoveryTimeouts    = "net.slp.DADiscoveryTimeouts"
	KeyDADiscoveryMaximumWait = "net.slp.DADiscoveryMaximumWait"
	KeyRandomWaitBound        = "net.slp.randomWaitBound"
	KeyInterfaces             = "net.slp.interfaces"
	KeyDAAddresses            = "net.slp.DAAddresses"
	KeySecurityEnabled        = "net.slp.securityEnabled"
	KeyMulticastTTL           = "net.slp.multicastTTL"
	KeyMTU                    = "net.slp.MTU"
	KeyUseScopes              = "net.slp.useScopes"
	KeyUseIPv4                = "net.slp.useIPv4"
	KeyUseIPv6                = "net.slp.useIPv6"
)

const defaultTimeouts = "500,750,1000,1500,2000,3000"

var defaults = map[string]string{
	KeyIsBroadcastOnly:        "false",
	KeyPassiveDADetection:     "false",
	KeyActiveDADetection:      "false",
	KeyLocale:                 "en",
	KeyMulticastTimeouts:      defaultTimeouts,
	KeyMulticastMaximumWait:   "15000",
	KeyUnicastTimeouts:        defaultTimeouts,
	KeyUnicastMaximumWait:     "15000",
	KeyDatagramTimeouts:       defaultTimeouts,
	KeyDADiscoveryTimeouts:    defaultTimeouts,
	KeyDADiscoveryMaximumWait: "2000",
	KeyRandomWaitBound:        "1000",
	KeyInterfaces:             "",
	KeyDAAddresses:            "",
	KeySecurityEnabled:        "false",
	KeyMulticastTTL:           "255",
	KeyMTU:                    "1400",
	KeyUseScopes:              "DEFAULT",
	KeyUseIPv4:                "true",
	KeyUseIPv6:                "false",
}

var (
	boolKeys = []string{
		KeyIsBroadcastOnly, KeyPassiveDADetection, KeyActiveDADetection,
		KeySecurityEnabled, KeyUseIPv4, KeyUseIPv6,
	}
	intKeys = []string{
		KeyMulticastMaximumWait, KeyUnicastMaximumWait, KeyDADiscoveryMaximumWait,
		KeyRandomWaitBound, KeyMulticastTTL, KeyMTU,
	}
	listKeys = []string{
		KeyMulticastTimeouts, KeyUnicastTimeouts, KeyDatagramTimeouts, KeyDADiscoveryTimeouts,
	}
)

// ============================================================================
//                              Properties
// ============================================================================

// Properties 并发安全的 net.slp.* 属性存储
//
// 多个句柄共享同一个 Properties，读写均经过互斥锁。
type Properties struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewProperties 创建带默认值的属性存储
func NewProperties() *Properties {
	p := &Properties{values: make(map[string]string, len(defaults))}
	for k, v := range defaults {
		p.values[k] = v
	}
	return p
}

// Get 读取属性原始值，不存在返回空串
func (p *Properties) Get(key string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.values[key]
}

// Set 设置属性
func (p *Properties) Set(key, value string) {
	p.mu.Lock()
	p.values[key] = strings.TrimSpace(value)
	p.mu.Unlock()
}

// Apply 批量设置属性
func (p *Properties) Apply(values map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, v := range values {
		p.values[k] = strings.TrimSpace(v)
	}
}

// Snapshot 返回所有属性的副本
func (p *Properties) Snapshot() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]string, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

// Keys 返回排序后的属性键
func (p *Properties) Keys() []string {
	p.mu.RLock()
	keys := make([]string, 0, len(p.values))
	for k := range p.values {
		keys = append(keys, k)
	}
	p.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Bool 读取布尔属性（"true"/"yes"/"on"/"1" 为真，大小写不敏感）
func (p *Properties) Bool(key string) bool {
	switch strings.ToLower(p.Get(key)) {
	case "true", "yes", "on", "1":
		return true
	}
	return false
}

// Int 读取整数属性，无法解析返回 0
func (p *Properties) Int(key string) int {
	n, err := strconv.Atoi(p.Get(key))
	if err != nil {
		return 0
	}
	return n
}

// Millis 将毫秒整数属性读取为 time.Duration
func (p *Properties) Millis(key string) time.Duration {
	return time.Duration(p.Int(key)) * time.Millisecond
}

// IntList 读取逗号分隔的整数列表，遇到无法解析的项即停止
func (p *Properties) IntList(key string) []int {
	var out []int
	for _, s := range p.StringList(key) {
		n, err := strconv.Atoi(s)
		if err != nil {
			break
		}
		out = append(out, n)
	}
	return out
}

// MillisList 将毫秒整数列表读取为 []time.Duration
func (p *Properties) MillisList(key string) []time.Duration {
	ints := p.IntList(key)
	out := make([]time.Duration, len(ints))
	for i, n := range ints {
		out[i] = time.Duration(n) * time.Millisecond
	}
	return out
}

// StringList 读取逗号分隔的字符串列表（去除空白与空项）
func (p *Properties) StringList(key string) []string {
	var out []string
	for _, s := range strings.Split(p.Get(key), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate 检查类型化属性能否被解析
func (p *Properties) Validate() error {
	for _, k := range boolKeys {
		switch strings.ToLower(p.Get(k)) {
		case "true", "false", "yes", "no", "on", "off", "1", "0", "":
		default:
			return fmt.Errorf("properties: %s: invalid boolean %q", k, p.Get(k))
		}
	}
	for _, k := range intKeys {
		if v := p.Get(k); v != "" {
			if n, err := strconv.Atoi(v); err != nil || n < 0 {
				return fmt.Errorf("properties: %s: invalid non-negative integer %q", k, v)
			}
		}
	}
	for _, k := range listKeys {
		for _, s := range p.StringList(k) {
			if n, err := strconv.Atoi(s); err != nil || n < 0 {
				return fmt.Errorf("properties: %s: invalid timeout %q", k, s)
			}
		}
	}
	if mtu := p.Int(KeyMTU); mtu != 0 && mtu < 64 {
		return fmt.Errorf("properties: %s: %d is below the minimum of 64", KeyMTU, mtu)
	}
	return nil
}

// LoadConf 读取 slp.conf 风格的属性文件
//
// 每行 "key = value"；以 '#' 或 ';' 开头的行为注释。
func (p *Properties) LoadConf(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	values := make(map[string]string)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' || line[0] == ';' {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("line %d: missing '='", lineNo)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return fmt.Errorf("line %d: empty key", lineNo)
		}
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	p.Apply(values)
	return nil
}
