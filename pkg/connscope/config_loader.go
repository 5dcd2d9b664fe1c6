package connscope

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/connscope/connscope/pkg/connscope/filter"
)

type yamlSearch struct {
	Text string `yaml:"text"`
	// MatchCase uses a pointer so an absent key keeps the default of
	// case-sensitive matching.
	MatchCase *bool `yaml:"match_case"`
	WholeWord bool  `yaml:"whole_word"`
	Regex     bool  `yaml:"regex"`
}

// MaxRetries uses a pointer so we can distinguish unset vs explicit
// zero, to avoid overriding a non-zero default when the value is not
// set.
type yamlConfig struct {
	ControllerAddr string `yaml:"controller_addr"`
	Secret         string `yaml:"secret"`

	Poll         bool          `yaml:"poll"`
	PollInterval time.Duration `yaml:"poll_interval"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	MaxRetries   *int          `yaml:"max_retries"`

	Search   *yamlSearch `yaml:"search"`
	Ordering string      `yaml:"ordering"`

	MaxSnapshotRate  float64 `yaml:"max_snapshot_rate"`
	MaxSnapshotBurst int     `yaml:"max_snapshot_burst"`

	StatsAddr            string `yaml:"stats_addr"`
	StatsSocketDir       string `yaml:"stats_socket_dir"`
	StatsSocketFileMode  string `yaml:"stats_socket_file_mode"`
	SupportProxyProtocol bool   `yaml:"support_proxy_protocol"`

	StatsdAddress string `yaml:"statsd_address"`

	PrometheusEnabled    bool   `yaml:"prometheus_enabled"`
	PrometheusEndpoint   string `yaml:"prometheus_endpoint"`
	PrometheusPort       string `yaml:"prometheus_port"`
	PrometheusListenAddr string `yaml:"prometheus_listen_addr"`
}

func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var yc yamlConfig
	*c = *NewConfig()

	err := unmarshal(&yc)
	if err != nil {
		return err
	}

	if yc.ControllerAddr != "" {
		c.ControllerAddr = yc.ControllerAddr
	}
	c.Secret = yc.Secret
	c.Poll = yc.Poll

	if yc.PollInterval != 0 {
		c.PollInterval = yc.PollInterval
	}
	if yc.RetryDelay != 0 {
		c.RetryDelay = yc.RetryDelay
	}
	if yc.MaxRetries != nil {
		c.MaxRetries = *yc.MaxRetries
	}

	if yc.Search != nil {
		query := filter.NewQuery(yc.Search.Text)
		if yc.Search.MatchCase != nil {
			query.MatchCase = *yc.Search.MatchCase
		}
		query.WholeWord = yc.Search.WholeWord
		query.Regex = yc.Search.Regex
		c.Search = query
	}

	if err := c.SetOrdering(yc.Ordering); err != nil {
		return err
	}

	if yc.MaxSnapshotRate > 0 {
		burst := -1
		if yc.MaxSnapshotBurst > 0 {
			burst = yc.MaxSnapshotBurst
		}
		if err := c.SetSnapshotRate(yc.MaxSnapshotRate, burst); err != nil {
			return err
		}
	}

	c.StatsAddr = yc.StatsAddr
	if yc.StatsSocketDir != "" {
		c.StatsSocketDir = yc.StatsSocketDir
	}
	if yc.StatsSocketFileMode != "" {
		filemode, err := strconv.ParseInt(yc.StatsSocketFileMode, 8, 9)
		if err != nil {
			return fmt.Errorf("invalid stats_socket_file_mode: %w", err)
		}
		c.StatsSocketFileMode = os.FileMode(filemode)
	}
	c.SupportProxyProtocol = yc.SupportProxyProtocol

	if yc.PrometheusEnabled {
		endpoint := yc.PrometheusEndpoint
		if endpoint == "" {
			endpoint = DefaultPrometheusEndpoint
		}
		port := yc.PrometheusPort
		if port == "" {
			port = DefaultPrometheusPort
		}
		listenAddr := yc.PrometheusListenAddr
		if listenAddr == "" {
			listenAddr = DefaultPrometheusListenIP
		}
		if err := c.SetupPrometheus(endpoint, port, listenAddr); err != nil {
			return err
		}
	} else if err := c.SetupStatsd(yc.StatsdAddress); err != nil {
		return err
	}

	return nil
}

func LoadConfig(filePath string) (*Config, error) {
	bytes, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	config := &Config{}
	if err := yaml.UnmarshalStrict(bytes, config); err != nil {
		return nil, err
	}

	return config, nil
}
