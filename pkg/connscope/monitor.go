package connscope

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/connscope/connscope/pkg/connscope/feed"
	"github.com/connscope/connscope/pkg/connscope/filter"
	"github.com/connscope/connscope/pkg/connscope/hostport"
	"github.com/connscope/connscope/pkg/connscope/reconcile"
)

const logSnapshotApply = "CONNSCOPE-SNAPSHOT-APPLY"

// Monitor owns the displayed connection list. Snapshots are applied
// strictly one at a time through Apply, which is the list's only
// writer; View hands out filtered, ordered copies so readers never see
// a partially merged list.
type Monitor struct {
	config *Config

	mu            sync.Mutex
	displayed     []reconcile.Displayed
	query         filter.Query
	filter        *filter.Filter
	ordering      reconcile.Ordering
	uploadTotal   int64
	downloadTotal int64

	throttle *snapshotThrottle
	log      *logrus.Entry
}

func NewMonitor(config *Config) *Monitor {
	m := &Monitor{
		config:   config,
		query:    config.Search,
		filter:   filter.Build(config.Search),
		ordering: config.Ordering,
		log:      config.Log.WithField("component", "monitor"),
	}
	if config.MaxSnapshotRate > 0 {
		m.throttle = newSnapshotThrottle(config.MaxSnapshotRate, config.MaxSnapshotBurst)
	}
	return m
}

// Run applies updates until the channel closes or ctx is canceled. On
// cancellation any undelivered snapshot is abandoned; the displayed
// list is never left partially merged.
func (m *Monitor) Run(ctx context.Context, updates <-chan feed.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			m.Apply(update)
		}
	}
}

// Apply merges one full snapshot into the displayed list.
func (m *Monitor) Apply(update feed.Update) {
	if m.throttle != nil && !m.throttle.Allow() {
		m.config.MetricsClient.Incr("feed.snapshot.throttled", 1)
		return
	}

	start := time.Now()

	m.mu.Lock()
	prev := m.displayed
	next := reconcile.Merge(prev, update.Connections)
	m.displayed = next
	m.uploadTotal = update.UploadTotal
	m.downloadTotal = update.DownloadTotal
	m.mu.Unlock()

	prevIDs := make(map[string]bool, len(prev))
	for _, c := range prev {
		prevIDs[c.ID] = true
	}

	var newConns, closedConns int
	var rateUp, rateDown int64
	seen := make(map[string]bool, len(next))
	for _, c := range next {
		seen[c.ID] = true
		if !prevIDs[c.ID] {
			newConns++
		}
		rateUp += c.CurUpload
		rateDown += c.CurDownload
	}
	for id := range prevIDs {
		if !seen[id] {
			closedConns++
		}
	}

	elapsed := time.Since(start)
	mc := m.config.MetricsClient
	mc.Timing("reconcile.time", elapsed, 1)
	mc.Gauge("reconcile.conns.active", float64(len(next)), 1)
	mc.Gauge("reconcile.conns.new", float64(newConns), 1)
	mc.Gauge("reconcile.conns.closed", float64(closedConns), 1)
	mc.Gauge("reconcile.rate.up", float64(rateUp), 1)
	mc.Gauge("reconcile.rate.down", float64(rateDown), 1)

	m.log.WithFields(logrus.Fields{
		"active":    len(next),
		"new":       newConns,
		"closed":    closedConns,
		"rate_up":   rateUp,
		"rate_down": rateDown,
		"duration":  elapsed.Seconds(),
	}).Debug(logSnapshotApply)
}

// SetQuery recompiles the view filter. The filter is rebuilt on every
// call, even when only a toggle changed. An invalid regular expression
// is returned to the caller and leaves a filter that matches nothing
// until the next edit.
func (m *Monitor) SetQuery(q filter.Query) error {
	f := filter.Build(q)
	m.config.MetricsClient.Incr("view.filter.rebuild", 1)

	m.mu.Lock()
	m.query = q
	m.filter = f
	m.mu.Unlock()

	if err := f.Err(); err != nil {
		m.config.MetricsClient.Incr("view.filter.err", 1)
		m.log.WithField("error", err.Error()).Warn("search pattern rejected")
		return err
	}
	return nil
}

// Query returns the current search input and toggles.
func (m *Monitor) Query() filter.Query {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.query
}

// FilterErr returns the current filter's compile error, if any.
func (m *Monitor) FilterErr() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter.Err()
}

func (m *Monitor) SetOrdering(o reconcile.Ordering) {
	m.mu.Lock()
	m.ordering = o
	m.mu.Unlock()
}

func (m *Monitor) Ordering() reconcile.Ordering {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ordering
}

// Totals returns the controller-wide cumulative byte counters from the
// most recent snapshot.
func (m *Monitor) Totals() (upload, download int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploadTotal, m.downloadTotal
}

// View returns the current displayed list, filtered and ordered. The
// returned slice is a copy; callers may hold it across later merges.
func (m *Monitor) View() []reconcile.Displayed {
	m.mu.Lock()
	conns := make([]reconcile.Displayed, len(m.displayed))
	copy(conns, m.displayed)
	f := m.filter
	ordering := m.ordering
	m.mu.Unlock()

	filtered := conns[:0]
	for _, c := range conns {
		if matchConn(f, c) {
			filtered = append(filtered, c)
		}
	}
	ordering.Sort(filtered)

	m.config.MetricsClient.Gauge("view.size", float64(len(filtered)), 1)
	return filtered
}

// matchConn applies the filter across a connection's display fields.
// The host is normalized first so Punycode and mixed-case hostnames
// filter the same way they are displayed.
func matchConn(f *filter.Filter, c reconcile.Displayed) bool {
	host := c.Metadata.Host
	if normalized, err := hostport.NormalizeHost(host); err == nil {
		host = normalized
	}
	return f.MatchAny(
		host,
		c.Metadata.DestinationIP,
		c.Metadata.SourceIP,
		c.Metadata.Network,
		c.Metadata.ProcessPath,
		c.Rule,
		c.RulePayload,
		strings.Join(c.Chains, " "),
	)
}
