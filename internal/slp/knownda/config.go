package knownda

import (
	"fmt"
	"time"

	"github.com/dep2p/go-slp/config"
)

// Config KnownDA 缓存配置
type Config struct {
	// PersistPath BadgerDB 目录，为空则只在内存中缓存
	PersistPath string

	// MinDiscoveryInterval 两次主动发现的最小间隔，0 表示不限制
	MinDiscoveryInterval time.Duration

	// BadDATTL 不可达 DA 在负缓存中的保留时间
	BadDATTL time.Duration

	// BadDACapacity 负缓存容量
	BadDACapacity int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return ConfigFromUnified(nil)
}

// ConfigFromUnified 从统一配置创建 KnownDA 配置
func ConfigFromUnified(cfg *config.Config) Config {
	kd := config.DefaultKnownDAConfig()
	if cfg != nil {
		kd = cfg.KnownDA
	}
	return Config{
		PersistPath:          kd.PersistPath,
		MinDiscoveryInterval: kd.MinDiscoveryInterval.Duration(),
		BadDATTL:             kd.BadDATTL.Duration(),
		BadDACapacity:        kd.BadDACapacity,
	}
}

// Validate 验证配置
func (c Config) Validate() error {
	if c.MinDiscoveryInterval < 0 {
		return fmt.Errorf("knownda: negative discovery interval %s", c.MinDiscoveryInterval)
	}
	if c.BadDATTL < 0 {
		return fmt.Errorf("knownda: negative bad DA ttl %s", c.BadDATTL)
	}
	if c.BadDACapacity <= 0 {
		return fmt.Errorf("knownda: bad DA capacity must be > 0, got %d", c.BadDACapacity)
	}
	return nil
}
