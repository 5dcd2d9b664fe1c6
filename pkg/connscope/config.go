package connscope

import (
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/connscope/connscope/pkg/connscope/feed"
	"github.com/connscope/connscope/pkg/connscope/filter"
	"github.com/connscope/connscope/pkg/connscope/metrics"
	"github.com/connscope/connscope/pkg/connscope/reconcile"
)

// Configuration defaults
const (
	// Controller defaults
	DefaultControllerAddr = "127.0.0.1:9090"
	DefaultPollInterval   = feed.DefaultPollInterval
	DefaultRetryDelay     = feed.DefaultRetryDelay
	DefaultMaxRetries     = feed.DefaultMaxRetries

	// Stats endpoint defaults
	DefaultStatsSocketFileMode = 0700

	// Feed health window defaults
	DefaultHealthInterval = 5 * time.Second
	DefaultHealthWindow   = 1 * time.Minute

	// Prometheus defaults
	DefaultPrometheusEndpoint = "/metrics"
	DefaultPrometheusListenIP = "0.0.0.0"
	DefaultPrometheusPort     = "9811"

	// Statsd defaults
	DefaultStatsdAddress = "127.0.0.1:8200"
)

type Config struct {
	// ControllerAddr is the controller's external-controller address
	// (host:port). Secret is its API token, if one is configured.
	ControllerAddr string
	Secret         string

	// Poll selects HTTP polling at PollInterval instead of the
	// websocket subscription.
	Poll         bool
	PollInterval time.Duration

	// RetryDelay and MaxRetries bound feed reconnection: a fixed pause
	// between attempts and a cap on consecutive failures.
	RetryDelay time.Duration
	MaxRetries int

	// Search seeds the view filter; Ordering selects the view sort.
	// Both can be changed at runtime through the monitor.
	Search   filter.Query
	Ordering reconcile.Ordering

	// MaxSnapshotRate caps applied snapshots per second (0 = no cap).
	// MaxSnapshotBurst is the burst allowance (0 = 2x rate).
	MaxSnapshotRate  float64
	MaxSnapshotBurst int

	// StatsAddr exposes the view over TCP; StatsSocketDir over a unix
	// socket. Either may be empty. SupportProxyProtocol wraps the TCP
	// listener for deployments behind a PROXY protocol load balancer.
	StatsAddr            string
	StatsSocketDir       string
	StatsSocketFileMode  os.FileMode
	SupportProxyProtocol bool

	MetricsClient metrics.MetricsClientInterface
	Log           *log.Logger
	Health        *feed.HealthTracker
	ShuttingDown  atomic.Value
}

func NewConfig() *Config {
	logger := log.New()
	logger.SetFormatter(&log.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
	})

	return &Config{
		ControllerAddr:      DefaultControllerAddr,
		PollInterval:        DefaultPollInterval,
		RetryDelay:          DefaultRetryDelay,
		MaxRetries:          DefaultMaxRetries,
		Search:              filter.Query{MatchCase: true},
		Ordering:            reconcile.OrderDefault,
		StatsSocketFileMode: os.FileMode(DefaultStatsSocketFileMode),
		MetricsClient:       metrics.NewNoOpMetricsClient(),
		Log:                 logger,
		ShuttingDown:        atomic.Value{},
	}
}

// SetOrdering parses and applies an ordering token.
func (config *Config) SetOrdering(name string) error {
	ordering, err := reconcile.ParseOrdering(name)
	if err != nil {
		return err
	}
	config.Ordering = ordering
	return nil
}

// SetSnapshotRate configures snapshot coalescing. rate is snapshots per
// second (0 = unlimited); burst -1 selects the default of 2x rate.
func (config *Config) SetSnapshotRate(rate float64, burst int) error {
	if rate < 0 {
		return fmt.Errorf("snapshot rate must be >= 0, got %.2f", rate)
	}
	if burst < 0 {
		burst = int(rate * 2)
	}
	config.MaxSnapshotRate = rate
	config.MaxSnapshotBurst = burst
	return nil
}

func (config *Config) SetupStatsdWithNamespace(addr, namespace string) error {
	if addr == "" {
		config.MetricsClient = metrics.NewNoOpMetricsClient()
		return nil
	}

	mc, err := metrics.NewStatsdMetricsClient(addr, namespace)
	if err != nil {
		return err
	}
	config.MetricsClient = mc
	return nil
}

func (config *Config) SetupStatsd(addr string) error {
	return config.SetupStatsdWithNamespace(addr, DefaultStatsdNamespace)
}

func (config *Config) SetupPrometheus(endpoint string, port string, listenAddr string) error {
	metricsClient, err := metrics.NewPrometheusMetricsClient(endpoint, port, listenAddr)
	if err != nil {
		return err
	}
	config.MetricsClient = metricsClient
	return nil
}

// SetupHealthTracker starts the feed availability tracker. Must be
// called after the metrics client is configured.
func (config *Config) SetupHealthTracker() {
	config.Health = feed.StartHealthTracker(DefaultHealthInterval, DefaultHealthWindow, config.MetricsClient)
}

func (config *Config) Validate() error {
	if _, _, err := net.SplitHostPort(config.ControllerAddr); err != nil {
		return fmt.Errorf("controller address must be host:port: %w", err)
	}
	if config.MaxRetries <= 0 {
		return fmt.Errorf("max retries must be > 0, got %d", config.MaxRetries)
	}
	if config.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be > 0, got %s", config.PollInterval)
	}
	if config.RetryDelay <= 0 {
		return fmt.Errorf("retry delay must be > 0, got %s", config.RetryDelay)
	}
	return nil
}
