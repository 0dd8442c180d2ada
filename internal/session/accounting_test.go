package session

import (
	"testing"

	"golang.org/x/time/rate"
)

type fakeCounter struct {
	calls []float64
}

func (f *fakeCounter) Count(key string, value float64) {
	f.calls = append(f.calls, value)
}

func TestBandwidthAccountantEventuallyReports(t *testing.T) {
	fc := &fakeCounter{}
	// Unlimited sample limiter so the only gate left is the 1% draw.
	a := NewBandwidthAccountant("exit_usage.test", fc, rate.NewLimiter(rate.Inf, 0))

	for i := 0; i < 5000; i++ {
		a.Add(100)
	}

	if len(fc.calls) == 0 {
		t.Fatal("expected at least one sampled report across 5000 adds")
	}
}

func TestBandwidthAccountantNilMetricsIsNoop(t *testing.T) {
	a := NewBandwidthAccountant("exit_usage.test", nil, rate.NewLimiter(rate.Inf, 0))
	for i := 0; i < 1000; i++ {
		a.Add(100) // must not panic
	}
}
