// Package config 提供 go-slp 的统一配置管理
//
// 配置分两层：
//   - Config：JSON 可序列化的进程级配置（KnownDA 缓存、指标、会话默认值）
//   - Properties：RFC 2614 风格的 net.slp.* 属性存储，供传输层与会话层读取
//
// 使用示例：
//
//	cfg := config.NewConfig()
//	cfg.Properties[config.KeyDAAddresses] = "10.0.0.5"
//	props, err := cfg.NewProperties()
//
//	// 从 JSON 加载
//	cfg, err := config.LoadFile("/etc/slp.json")
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config go-slp 的完整配置
type Config struct {
	// Properties 覆盖 net.slp.* 属性默认值
	Properties map[string]string `json:"properties,omitempty"`

	// ConfFile slp.conf 风格的属性文件路径（可选，先于 Properties 应用）
	ConfFile string `json:"conf_file,omitempty"`

	// Async 新建句柄是否默认为异步模式
	Async bool `json:"async,omitempty"`

	// KnownDA KnownDA 缓存配置
	KnownDA KnownDAConfig `json:"known_da"`

	// Metrics 指标配置
	Metrics MetricsConfig `json:"metrics"`
}

// KnownDAConfig KnownDA 缓存配置
type KnownDAConfig struct {
	// PersistPath BadgerDB 目录，为空则不持久化
	PersistPath string `json:"persist_path,omitempty"`

	// MinDiscoveryInterval 两次主动发现之间的最小间隔
	// 默认值: 300s
	MinDiscoveryInterval Duration `json:"min_discovery_interval,omitempty"`

	// BadDATTL 被标记为不可达的 DA 在负缓存中保留的时间
	// 默认值: 5m
	BadDATTL Duration `json:"bad_da_ttl,omitempty"`

	// BadDACapacity 负缓存容量
	BadDACapacity int `json:"bad_da_capacity,omitempty"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// Enabled 是否统计收发流量
	Enabled bool `json:"enabled"`

	// Namespace Prometheus 指标命名空间
	Namespace string `json:"namespace,omitempty"`
}

// DefaultKnownDAConfig 返回默认 KnownDA 配置
func DefaultKnownDAConfig() KnownDAConfig {
	return KnownDAConfig{
		MinDiscoveryInterval: Duration(300 * time.Second),
		BadDATTL:             Duration(5 * time.Minute),
		BadDACapacity:        128,
	}
}

// Validate 验证 KnownDA 配置
func (c *KnownDAConfig) Validate() error {
	if c.MinDiscoveryInterval < 0 {
		return errors.New("known_da: min_discovery_interval must be >= 0")
	}
	if c.BadDATTL < 0 {
		return errors.New("known_da: bad_da_ttl must be >= 0")
	}
	if c.BadDACapacity <= 0 {
		return fmt.Errorf("known_da: bad_da_capacity must be > 0, got %d", c.BadDACapacity)
	}
	return nil
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "slp",
	}
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Properties: make(map[string]string),
		KnownDA:    DefaultKnownDAConfig(),
		Metrics:    DefaultMetricsConfig(),
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if err := c.KnownDA.Validate(); err != nil {
		return err
	}
	for k := range c.Properties {
		if !strings.HasPrefix(k, "net.slp.") {
			return fmt.Errorf("properties: unknown key %q", k)
		}
	}
	// 属性值必须能被对应的类型化读取器解析
	props := NewProperties()
	props.Apply(c.Properties)
	return props.Validate()
}

// NewProperties 按配置构建属性存储：默认值 → ConfFile → Properties
func (c *Config) NewProperties() (*Properties, error) {
	props := NewProperties()
	if c.ConfFile != "" {
		f, err := os.Open(c.ConfFile)
		if err != nil {
			return nil, fmt.Errorf("open conf file: %w", err)
		}
		defer f.Close()
		if err := props.LoadConf(f); err != nil {
			return nil, fmt.Errorf("load conf file %s: %w", c.ConfFile, err)
		}
	}
	props.Apply(c.Properties)
	if err := props.Validate(); err != nil {
		return nil, err
	}
	return props, nil
}

// FromJSON 从 JSON 解析配置，未出现的字段保留默认值
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Properties == nil {
		cfg.Properties = make(map[string]string)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile 从 JSON 文件加载配置
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return FromJSON(data)
}
