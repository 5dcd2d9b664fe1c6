package metrics

import (
	"errors"
	"net"
	"syscall"
	"time"
)

// metrics contains all of the metric names emitted by connscope. They
// are used to determine if a given metric name is valid before
// associating a persistent tag with the metric. This list must be
// updated with new metric names if the metric should support
// persistent tagging.
var metrics = []string{
	// Feed subscription statistics
	"feed.connect.atpt.total", // Total connect attempts, tagged by success
	"feed.connect.err",        // Connect and read failures, tagged by failure type
	"feed.reconnect",          // Reconnects after a dropped subscription
	"feed.snapshot.received",  // Snapshots delivered by the feed
	"feed.snapshot.throttled", // Snapshots discarded by the coalescing limiter
	"feed.availability",       // Percent of recent connect attempts that succeeded
	"feed.poll.time",          // HTTP poll round-trip in ms (polling mode only)

	// Reconciliation statistics
	"reconcile.time",         // Merge duration per snapshot
	"reconcile.conns.active", // Connections in the displayed list
	"reconcile.conns.new",    // Connections first seen this snapshot
	"reconcile.conns.closed", // Connections dropped this snapshot
	"reconcile.rate.up",      // Summed instantaneous upload bytes per snapshot
	"reconcile.rate.down",    // Summed instantaneous download bytes per snapshot

	// View statistics
	"view.filter.rebuild", // Filter recompilations
	"view.filter.err",     // Filter recompilations that failed
	"view.size",           // Connections surviving the filter
}

type MetricsClientInterface interface {
	AddMetricTags(string, map[string]string) error
	Incr(string, float64) error
	IncrWithTags(string, map[string]string, float64) error
	Gauge(string, float64, float64) error
	Histogram(string, float64, float64) error
	HistogramWithTags(string, float64, map[string]string, float64) error
	Timing(string, time.Duration, float64) error
	TimingWithTags(string, time.Duration, map[string]string, float64) error
	SetStarted()
}

// ReportFeedError emits a detailed metric about a feed connection
// error, with a tag corresponding to the failure type. If err is not a
// net.Error, does nothing.
func ReportFeedError(mc MetricsClientInterface, err error) {
	e, ok := err.(net.Error)
	if !ok {
		return
	}

	errorTag := map[string]string{"type": "unknown"}
	switch {
	case e.Timeout():
		errorTag["type"] = "timeout"
	case errors.Is(e, syscall.ECONNREFUSED):
		errorTag["type"] = "refused"
	case errors.Is(e, syscall.ECONNRESET):
		errorTag["type"] = "reset"
	case errors.Is(e, syscall.ECONNABORTED):
		errorTag["type"] = "aborted"
	}

	mc.IncrWithTags("feed.connect.err", errorTag, 1)
}
