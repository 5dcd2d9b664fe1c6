package connscope

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

func TestUnmarshalDefaults(t *testing.T) {
	a := assert.New(t)

	config := &Config{}
	err := yaml.UnmarshalStrict([]byte("controller_addr: 10.0.0.1:9090\n"), config)
	require.NoError(t, err)

	a.Equal("10.0.0.1:9090", config.ControllerAddr)
	a.Equal(DefaultPollInterval, config.PollInterval)
	a.Equal(DefaultRetryDelay, config.RetryDelay)
	a.Equal(DefaultMaxRetries, config.MaxRetries)
	a.True(config.Search.MatchCase)
	a.Equal(os.FileMode(DefaultStatsSocketFileMode), config.StatsSocketFileMode)
	a.NoError(config.Validate())
}

func TestUnmarshalFullConfig(t *testing.T) {
	a := assert.New(t)

	// yaml.v2 decodes time.Duration from integer nanoseconds.
	yamlConfig := `
controller_addr: 127.0.0.1:9091
secret: hunter2
poll: true
poll_interval: 2000000000
retry_delay: 500000000
max_retries: 10
search:
  text: example.com
  match_case: false
  whole_word: true
ordering: download-speed
max_snapshot_rate: 4
max_snapshot_burst: 2
stats_addr: 127.0.0.1:4040
stats_socket_file_mode: "0660"
support_proxy_protocol: true
`
	config := &Config{}
	err := yaml.UnmarshalStrict([]byte(yamlConfig), config)
	require.NoError(t, err)

	a.Equal("127.0.0.1:9091", config.ControllerAddr)
	a.Equal("hunter2", config.Secret)
	a.True(config.Poll)
	a.Equal(2*time.Second, config.PollInterval)
	a.Equal(500*time.Millisecond, config.RetryDelay)
	a.Equal(10, config.MaxRetries)

	a.Equal("example.com", config.Search.Text)
	a.False(config.Search.MatchCase)
	a.True(config.Search.WholeWord)
	a.False(config.Search.Regex)
	a.Equal("download-speed", config.Ordering.String())

	a.Equal(4.0, config.MaxSnapshotRate)
	a.Equal(2, config.MaxSnapshotBurst)

	a.Equal("127.0.0.1:4040", config.StatsAddr)
	a.Equal(os.FileMode(0660), config.StatsSocketFileMode)
	a.True(config.SupportProxyProtocol)
}

func TestUnmarshalExplicitZeroRetries(t *testing.T) {
	config := &Config{}
	err := yaml.UnmarshalStrict([]byte("max_retries: 0\n"), config)
	require.NoError(t, err)

	assert.Equal(t, 0, config.MaxRetries)
	assert.Error(t, config.Validate())
}

func TestUnmarshalRejectsUnknownKeys(t *testing.T) {
	config := &Config{}
	err := yaml.UnmarshalStrict([]byte("controler_addr: 127.0.0.1:9090\n"), config)
	assert.Error(t, err)
}

func TestUnmarshalRejectsBadOrdering(t *testing.T) {
	config := &Config{}
	err := yaml.UnmarshalStrict([]byte("ordering: fastest\n"), config)
	assert.Error(t, err)
}

func TestUnmarshalRejectsBadSocketMode(t *testing.T) {
	config := &Config{}
	err := yaml.UnmarshalStrict([]byte("stats_socket_file_mode: \"worldwritable\"\n"), config)
	assert.Error(t, err)
}

func TestLoadConfigFromFile(t *testing.T) {
	a := assert.New(t)

	path := filepath.Join(t.TempDir(), "connscope.yaml")
	contents := "controller_addr: 192.168.1.1:9090\nsecret: sekrit\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	a.Equal("192.168.1.1:9090", config.ControllerAddr)
	a.Equal("sekrit", config.Secret)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	a.Error(err)
}

func TestValidate(t *testing.T) {
	a := assert.New(t)

	config := NewConfig()
	a.NoError(config.Validate())

	config.ControllerAddr = "no-port"
	a.Error(config.Validate())

	config = NewConfig()
	config.PollInterval = 0
	a.Error(config.Validate())

	config = NewConfig()
	config.RetryDelay = -time.Second
	a.Error(config.Validate())
}
