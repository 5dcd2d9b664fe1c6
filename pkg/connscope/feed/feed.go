// Package feed subscribes to a Clash-compatible controller's
// /connections stream and delivers each full snapshot to the monitor.
// The websocket subscription is the primary transport; HTTP polling is
// available for controllers without websocket support.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/connscope/connscope/pkg/connscope/metrics"
)

const (
	DefaultPollInterval = 1 * time.Second
	DefaultRetryDelay   = 2 * time.Second
	DefaultMaxRetries   = 5

	handshakeTimeout = 10 * time.Second
)

type Config struct {
	// Addr is the controller's external-controller address, host:port.
	Addr string
	// Secret is the controller API token, sent as a bearer token when set.
	Secret string

	// Poll switches from the websocket subscription to HTTP polling at
	// PollInterval.
	Poll         bool
	PollInterval time.Duration

	// RetryDelay is the fixed pause between reconnect attempts.
	// MaxRetries bounds consecutive failures before Run gives up.
	RetryDelay time.Duration
	MaxRetries int

	MetricsClient metrics.MetricsClientInterface
	Log           *logrus.Logger
	Health        *HealthTracker
}

// Client delivers controller snapshots on a channel until its context
// is canceled or its retry budget is exhausted. Snapshots are sent in
// arrival order; the channel is unbuffered so the consumer's
// single-writer discipline also paces the feed.
type Client struct {
	cfg     Config
	httpc   *http.Client
	updates chan Update
	log     *logrus.Entry
}

func NewClient(cfg Config) *Client {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.MetricsClient == nil {
		cfg.MetricsClient = metrics.NewNoOpMetricsClient()
	}
	if cfg.Log == nil {
		cfg.Log = logrus.New()
	}

	httpc := cleanhttp.DefaultClient()
	httpc.Timeout = handshakeTimeout

	return &Client{
		cfg:     cfg,
		httpc:   httpc,
		updates: make(chan Update),
		log: cfg.Log.WithFields(logrus.Fields{
			"session_id": xid.New().String(),
			"controller": cfg.Addr,
		}),
	}
}

// Updates returns the snapshot channel. It is closed when Run returns.
func (c *Client) Updates() <-chan Update {
	return c.updates
}

// Run connects to the controller and delivers snapshots until ctx is
// canceled or MaxRetries consecutive connection failures occur. A
// successful connection resets the failure count.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.updates)

	failures := 0
	for {
		var connected bool
		var err error
		if c.cfg.Poll {
			connected, err = c.poll(ctx)
		} else {
			connected, err = c.subscribe(ctx)
		}
		if ctx.Err() != nil {
			c.log.Info("feed stopped")
			return ctx.Err()
		}

		if connected {
			failures = 0
		}
		failures++

		c.recordAttempt(false, err)
		if failures >= c.cfg.MaxRetries {
			c.log.WithField("error", err.Error()).Error("giving up on controller feed")
			return fmt.Errorf("feed: %d consecutive failures: %w", failures, err)
		}

		c.log.WithFields(logrus.Fields{
			"error":       err.Error(),
			"failures":    failures,
			"retry_delay": c.cfg.RetryDelay,
		}).Warn("feed disconnected, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.RetryDelay):
		}
		c.cfg.MetricsClient.Incr("feed.reconnect", 1)
	}
}

// subscribe holds one websocket subscription open, delivering every
// received snapshot. Returns whether the dial succeeded along with the
// error that ended the subscription.
func (c *Client) subscribe(ctx context.Context) (bool, error) {
	u := url.URL{Scheme: "ws", Host: c.cfg.Addr, Path: "/connections"}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, u.String(), c.authHeader())
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return false, err
	}
	defer conn.Close()

	c.recordAttempt(true, nil)
	c.log.Info("feed connected")

	// Unblock the read loop when the context is torn down. Any snapshot
	// in flight is abandoned without side effects.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var update Update
		if err := conn.ReadJSON(&update); err != nil {
			return true, err
		}
		if !c.deliver(ctx, update) {
			return true, ctx.Err()
		}
	}
}

// poll fetches /connections over HTTP at the configured interval.
// Every request is recorded as a connect attempt, so availability
// stats behave the same in both transports.
func (c *Client) poll(ctx context.Context) (bool, error) {
	u := url.URL{Scheme: "http", Host: c.cfg.Addr, Path: "/connections"}

	connected := false
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		update, elapsed, err := c.fetch(ctx, u.String())
		if err != nil {
			return connected, err
		}
		if !connected {
			connected = true
			c.log.Info("feed connected")
		}
		c.recordAttempt(true, nil)
		c.cfg.MetricsClient.Timing("feed.poll.time", elapsed, 1)

		if !c.deliver(ctx, update) {
			return connected, ctx.Err()
		}

		select {
		case <-ctx.Done():
			return connected, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) fetch(ctx context.Context, url string) (Update, time.Duration, error) {
	var update Update

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return update, 0, err
	}
	for k, v := range c.authHeader() {
		req.Header[k] = v
	}

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		return update, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return update, 0, fmt.Errorf("controller returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&update); err != nil {
		return update, 0, err
	}
	return update, time.Since(start), nil
}

// deliver hands the update to the consumer, reporting false if the
// context was canceled instead.
func (c *Client) deliver(ctx context.Context, update Update) bool {
	select {
	case c.updates <- update:
		c.cfg.MetricsClient.Incr("feed.snapshot.received", 1)
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Client) authHeader() http.Header {
	hdr := http.Header{}
	if c.cfg.Secret != "" {
		hdr.Set("Authorization", "Bearer "+c.cfg.Secret)
	}
	return hdr
}

func (c *Client) recordAttempt(success bool, err error) {
	tag := map[string]string{"success": fmt.Sprintf("%t", success)}
	c.cfg.MetricsClient.IncrWithTags("feed.connect.atpt.total", tag, 1)
	if err != nil {
		metrics.ReportFeedError(c.cfg.MetricsClient, err)
	}
	if c.cfg.Health != nil {
		c.cfg.Health.RecordAttempt(success)
	}
}
