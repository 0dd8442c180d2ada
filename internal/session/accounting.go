package session

import (
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/delta4chat/geph4-exit/internal/randpool"
)

// BandwidthAccountant is the single per-exit byte counter shared by every
// SessionPump's egress and ingress branches (§5: "Global bandwidth
// counter — atomic, relaxed ordering; not a synchronization primitive").
// Reporting is sampled: most calls to Add just bump the counter, and only
// a 1-in-100 sample that also clears a shared token-bucket limiter
// flushes the accumulated total to the collector and resets it (§4.4).
type BandwidthAccountant struct {
	bytes         atomic.Int64
	sampleLimiter *rate.Limiter
	statKey       string
	metrics       Counter
}

// NewBandwidthAccountant builds an accountant reporting under statKey
// through metrics, admitting only the sampled reports that sampleLimiter
// allows (a nil metrics is permitted: the spec's collector is
// optional, and Add becomes a no-op counter bump).
func NewBandwidthAccountant(statKey string, metrics Counter, sampleLimiter *rate.Limiter) *BandwidthAccountant {
	return &BandwidthAccountant{
		sampleLimiter: sampleLimiter,
		statKey:       statKey,
		metrics:       metrics,
	}
}

// Add accounts n bytes transferred in either direction. One in a hundred
// calls probes the shared sample limiter; if the limiter admits it, the
// accumulated total is flushed to the collector and the counter resets
// to zero. The 1% gate keeps the random draw itself cheap relative to
// the packet rate it observes.
func (a *BandwidthAccountant) Add(n int) {
	total := a.bytes.Add(int64(n))
	if a.metrics == nil {
		return
	}
	if randpool.Int63n(100) != 0 {
		return
	}
	if a.sampleLimiter != nil && !a.sampleLimiter.Allow() {
		return
	}
	if !a.bytes.CompareAndSwap(total, 0) {
		// Another Add changed the counter since total was read; the next
		// sample will pick up whatever has accumulated since.
		return
	}
	a.metrics.Count(a.statKey, float64(total))
}
