package connscope

import (
	"math"
	"sync"
	"time"
)

// snapshotThrottle is a token bucket used to coalesce snapshots from
// controllers that refresh faster than the view needs to.
type snapshotThrottle struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

func newSnapshotThrottle(perSecond float64, burstCapacity int) *snapshotThrottle {
	burst := float64(burstCapacity)
	if burst < 1 {
		burst = 1
	}
	return &snapshotThrottle{
		tokens:     burst,
		maxTokens:  burst,
		refillRate: perSecond,
		lastRefill: time.Now(),
	}
}

func (st *snapshotThrottle) Allow() bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	// Refill tokens based on time elapsed
	now := time.Now()
	elapsed := now.Sub(st.lastRefill).Seconds()
	st.tokens = math.Min(st.maxTokens, st.tokens+elapsed*st.refillRate)
	st.lastRefill = now

	if st.tokens >= 1.0 {
		st.tokens -= 1.0
		return true
	}

	return false
}
