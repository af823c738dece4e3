package sessionguard

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricSessionCreated)

	if got := m.Value(MetricSessionCreated); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if len(m.Snapshot().Counters) != 0 {
		t.Fatal("disabled snapshot should be empty")
	}
}

func TestMetricsEnabledIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricSessionCreated)
	m.Inc(MetricSessionCreated)
	m.Inc(MetricSessionCreated)

	if got := m.Value(MetricSessionCreated); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricActivityRecorded)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricActivityRecorded); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		10 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		time.Second,
		5 * time.Second,
		7 * time.Second,
	}

	for _, d := range observations {
		m.Observe(MetricRefreshLatency, d)
	}
	m.Observe(MetricSessionCreated, time.Second)

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricRefreshLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}
	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
	if _, ok := snap.Counters[MetricRefreshLatency]; ok {
		t.Fatal("histogram id should not appear as a counter")
	}
}

func TestMetricsSnapshotConsistency(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricRefreshSuccess)
	m.Inc(MetricRefreshFailure)
	m.Inc(MetricRefreshFailure)
	m.Observe(MetricRefreshLatency, 2*time.Millisecond)

	snap := m.Snapshot()

	if snap.Counters[MetricRefreshSuccess] != 1 {
		t.Fatalf("expected MetricRefreshSuccess=1 got %d", snap.Counters[MetricRefreshSuccess])
	}
	if snap.Counters[MetricRefreshFailure] != 2 {
		t.Fatalf("expected MetricRefreshFailure=2 got %d", snap.Counters[MetricRefreshFailure])
	}
	if len(snap.Histograms) != 0 {
		t.Fatal("histograms should be absent when latency tracking is off")
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricSessionCreated)
	m.Observe(MetricRefreshLatency, time.Second)
	if m.Value(MetricSessionCreated) != 0 || m.Enabled() || m.LatencyEnabled() {
		t.Fatal("nil metrics should be inert")
	}
}
