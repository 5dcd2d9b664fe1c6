package feed

import (
	"sync/atomic"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/rs/xid"

	"github.com/connscope/connscope/pkg/connscope/metrics"
)

// HealthTracker tracks the success rate of feed connect attempts over
// some time interval (which is set in StartHealthTracker()). It answers
// "how available has the controller been lately" for the healthcheck
// endpoint without a single flapping attempt dominating forever:
// attempts age out of the window.
type HealthTracker struct {
	attempts *cache.Cache
	// The availability percentage calculated over attempts in the
	// window configured in StartHealthTracker()
	stats atomic.Value

	metricsClient metrics.MetricsClientInterface
}

// HealthStats represents a timestamped output of computations performed
// over recent connect attempts.
type HealthStats struct {
	CalculatedAt  time.Time `json:"calculatedAt"`
	Availability  float64   `json:"availability"`
	TotalAttempts int       `json:"totalAttempts"`
}

// StartHealthTracker creates a new HealthTracker with a specific
// calculation interval at which HealthStats will be recomputed, and a
// time window to calculate those statistics over.
func StartHealthTracker(calculationInterval, calculationWindow time.Duration, mc metrics.MetricsClientInterface) *HealthTracker {
	if mc == nil {
		mc = metrics.NewNoOpMetricsClient()
	}
	ht := &HealthTracker{
		attempts:      cache.New(calculationWindow, 10*time.Second),
		metricsClient: mc,
	}
	ht.stats.Store(HealthStats{CalculatedAt: time.Now(), Availability: 100, TotalAttempts: 0})

	go func() {
		for {
			var total, succeeded int
			for _, attempt := range ht.attempts.Items() {
				total++
				if attempt.Object.(bool) {
					succeeded++
				}
			}
			// An empty window reports full availability
			availability := float64(100)
			if total > 0 {
				availability = (float64(succeeded) / float64(total)) * 100
			}
			ht.stats.Store(HealthStats{
				CalculatedAt:  time.Now(),
				Availability:  availability,
				TotalAttempts: total,
			})
			ht.metricsClient.Gauge("feed.availability", availability, 1)

			time.Sleep(calculationInterval)
		}
	}()

	return ht
}

// RecordAttempt stores the outcome of one connect attempt. Each attempt
// gets its own key so the window reflects every attempt made, not just
// the most recent one.
func (ht *HealthTracker) RecordAttempt(success bool) {
	ht.attempts.Set(xid.New().String(), success, cache.DefaultExpiration)
}

// Stats returns the most recently computed availability figures.
func (ht *HealthTracker) Stats() HealthStats {
	return ht.stats.Load().(HealthStats)
}
