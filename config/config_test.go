package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewConfig 测试创建默认配置
func TestNewConfig(t *testing.T) {
	cfg := NewConfig()
	require.NotNil(t, cfg)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 300*time.Second, cfg.KnownDA.MinDiscoveryInterval.Duration())
	assert.True(t, cfg.Metrics.Enabled)
}

func TestConfig_Validate(t *testing.T) {
	t.Run("UnknownKey", func(t *testing.T) {
		cfg := NewConfig()
		cfg.Properties["slp.bogus"] = "1"
		assert.Error(t, cfg.Validate())
	})

	t.Run("BadInteger", func(t *testing.T) {
		cfg := NewConfig()
		cfg.Properties[KeyMTU] = "big"
		assert.Error(t, cfg.Validate())
	})

	t.Run("BadTimeoutList", func(t *testing.T) {
		cfg := NewConfig()
		cfg.Properties[KeyMulticastTimeouts] = "100,-5"
		assert.Error(t, cfg.Validate())
	})

	t.Run("NegativeInterval", func(t *testing.T) {
		cfg := NewConfig()
		cfg.KnownDA.MinDiscoveryInterval = -1
		assert.Error(t, cfg.Validate())
	})
}

func TestFromJSON(t *testing.T) {
	data := []byte(`{
		"properties": {"net.slp.useScopes": "eng,sales"},
		"known_da": {"min_discovery_interval": "10s", "bad_da_capacity": 4},
		"metrics": {"enabled": false}
	}`)

	cfg, err := FromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.KnownDA.MinDiscoveryInterval.Duration())
	// 未出现的字段保留默认值
	assert.Equal(t, 5*time.Minute, cfg.KnownDA.BadDATTL.Duration())
	assert.False(t, cfg.Metrics.Enabled)

	props, err := cfg.NewProperties()
	require.NoError(t, err)
	assert.Equal(t, []string{"eng", "sales"}, props.StringList(KeyUseScopes))
}

func TestDuration_JSON(t *testing.T) {
	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"1m30s"`), &d))
	assert.Equal(t, 90*time.Second, d.Duration())

	require.NoError(t, json.Unmarshal([]byte(`1000`), &d))
	assert.Equal(t, time.Microsecond, d.Duration())

	assert.Error(t, json.Unmarshal([]byte(`"soon"`), &d))

	out, err := json.Marshal(Duration(2 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"2s"`, string(out))
}

func TestProperties_Defaults(t *testing.T) {
	p := NewProperties()

	assert.False(t, p.Bool(KeyIsBroadcastOnly))
	assert.False(t, p.Bool(KeyActiveDADetection))
	assert.Equal(t, "en", p.Get(KeyLocale))
	assert.Equal(t, 1400, p.Int(KeyMTU))
	assert.Equal(t, 255, p.Int(KeyMulticastTTL))
	assert.Equal(t, 15*time.Second, p.Millis(KeyMulticastMaximumWait))
	assert.Equal(t, []string{"DEFAULT"}, p.StringList(KeyUseScopes))
	assert.Equal(t, []time.Duration{
		500 * time.Millisecond, 750 * time.Millisecond, time.Second,
		1500 * time.Millisecond, 2 * time.Second, 3 * time.Second,
	}, p.MillisList(KeyMulticastTimeouts))
	assert.Empty(t, p.StringList(KeyDAAddresses))
	assert.NoError(t, p.Validate())
}

func TestProperties_IntListStopsAtGarbage(t *testing.T) {
	p := NewProperties()
	p.Set(KeyUnicastTimeouts, "100, 200,abc,300")
	assert.Equal(t, []int{100, 200}, p.IntList(KeyUnicastTimeouts))
}

func TestProperties_LoadConf(t *testing.T) {
	conf := `
# comment
; another comment
net.slp.DAAddresses = 10.0.0.1, 10.0.0.2
net.slp.activeDADetection=true
`
	p := NewProperties()
	require.NoError(t, p.LoadConf(strings.NewReader(conf)))
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, p.StringList(KeyDAAddresses))
	assert.True(t, p.Bool(KeyActiveDADetection))

	assert.Error(t, p.LoadConf(strings.NewReader("no equals sign")))
}

func TestConfig_NewPropertiesFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slp.conf")
	require.NoError(t, os.WriteFile(path, []byte("net.slp.MTU = 1000\nnet.slp.useScopes = a\n"), 0o600))

	cfg := NewConfig()
	cfg.ConfFile = path
	// Properties 覆盖文件中的值
	cfg.Properties[KeyUseScopes] = "b"

	props, err := cfg.NewProperties()
	require.NoError(t, err)
	assert.Equal(t, 1000, props.Int(KeyMTU))
	assert.Equal(t, "b", props.Get(KeyUseScopes))
}

// 并发读写不产生数据竞争
func TestProperties_Concurrent(t *testing.T) {
	p := NewProperties()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			p.Set(KeyUseScopes, "x")
		}()
		go func() {
			defer wg.Done()
			_ = p.StringList(KeyUseScopes)
		}()
	}
	wg.Wait()
	assert.Equal(t, "x", p.Get(KeyUseScopes))
}
