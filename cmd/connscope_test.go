package cmd

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *log.Logger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestNewConfigurationDefaults(t *testing.T) {
	a := assert.New(t)

	conf, err := NewConfiguration([]string{"connscope"}, testLogger())
	require.NoError(t, err)
	require.NotNil(t, conf)

	a.Equal("127.0.0.1:9090", conf.ControllerAddr)
	a.Empty(conf.Secret)
	a.False(conf.Poll)
	a.Equal(time.Second, conf.PollInterval)
	a.Equal(5, conf.MaxRetries)
	a.True(conf.Search.MatchCase)
	a.Equal("default", conf.Ordering.String())
	a.NoError(conf.Validate())
}

func TestNewConfigurationFlags(t *testing.T) {
	a := assert.New(t)

	conf, err := NewConfiguration([]string{
		"connscope",
		"--controller-addr", "10.1.2.3:9090",
		"--secret", "hunter2",
		"--poll",
		"--poll-interval", "5s",
		"--retry-delay", "250ms",
		"--max-retries", "3",
		"--search", "example.com",
		"--ignore-case",
		"--whole-word",
		"--ordering", "upload-speed",
		"--max-snapshot-rate", "2",
		"--stats-addr", "127.0.0.1:4040",
		"--proxy-protocol",
	}, testLogger())
	require.NoError(t, err)
	require.NotNil(t, conf)

	a.Equal("10.1.2.3:9090", conf.ControllerAddr)
	a.Equal("hunter2", conf.Secret)
	a.True(conf.Poll)
	a.Equal(5*time.Second, conf.PollInterval)
	a.Equal(250*time.Millisecond, conf.RetryDelay)
	a.Equal(3, conf.MaxRetries)

	a.Equal("example.com", conf.Search.Text)
	a.False(conf.Search.MatchCase)
	a.True(conf.Search.WholeWord)
	a.False(conf.Search.Regex)
	a.Equal("upload-speed", conf.Ordering.String())

	a.Equal(2.0, conf.MaxSnapshotRate)
	a.Equal(4, conf.MaxSnapshotBurst)

	a.Equal("127.0.0.1:4040", conf.StatsAddr)
	a.True(conf.SupportProxyProtocol)
}

func TestNewConfigurationFromFile(t *testing.T) {
	a := assert.New(t)

	path := filepath.Join(t.TempDir(), "connscope.yaml")
	contents := "controller_addr: 192.168.0.2:9090\npoll: true\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))

	conf, err := NewConfiguration([]string{"connscope", "--config-file", path}, testLogger())
	require.NoError(t, err)
	require.NotNil(t, conf)

	a.Equal("192.168.0.2:9090", conf.ControllerAddr)
	a.True(conf.Poll)
}

func TestNewConfigurationBadOrdering(t *testing.T) {
	conf, err := NewConfiguration([]string{"connscope", "--ordering", "fastest"}, testLogger())
	assert.Error(t, err)
	assert.Nil(t, conf)
}

func TestNewConfigurationUnexpectedArgument(t *testing.T) {
	conf, err := NewConfiguration([]string{"connscope", "surprise"}, testLogger())
	assert.Error(t, err)
	assert.Nil(t, conf)
}

func TestNewConfigurationHelp(t *testing.T) {
	conf, err := NewConfiguration([]string{"connscope", "--help"}, testLogger())
	assert.NoError(t, err)
	assert.Nil(t, conf)
}
