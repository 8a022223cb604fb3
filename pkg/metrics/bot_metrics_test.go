package metrics

import (
	"testing"
	"time"
)

func TestLatencyTrackerPercentiles(t *testing.T) {
	lt := NewLatencyTracker(100)
	for i := 1; i <= 100; i++ {
		lt.Record(time.Duration(i) * time.Millisecond)
	}

	stats := lt.Stats()
	if stats.Count != 100 || stats.Samples != 100 {
		t.Fatalf("unexpected count %d samples %d", stats.Count, stats.Samples)
	}
	if stats.Min != time.Millisecond || stats.Max != 100*time.Millisecond {
		t.Errorf("unexpected min/max %s/%s", stats.Min, stats.Max)
	}
	if stats.P50 != 50*time.Millisecond {
		t.Errorf("expected p50 50ms, got %s", stats.P50)
	}
	if stats.P99 != 99*time.Millisecond {
		t.Errorf("expected p99 99ms, got %s", stats.P99)
	}
}

func TestLatencyTrackerWindow(t *testing.T) {
	lt := NewLatencyTracker(3)
	for _, ms := range []int{100, 1, 2, 3} {
		lt.Record(time.Duration(ms) * time.Millisecond)
	}

	stats := lt.Stats()
	if stats.Samples != 3 {
		t.Fatalf("expected 3 samples, got %d", stats.Samples)
	}
	if stats.Count != 4 {
		t.Errorf("expected total count 4, got %d", stats.Count)
	}
	if stats.Max != 3*time.Millisecond {
		t.Errorf("oldest sample should have been evicted, max %s", stats.Max)
	}
}

func TestLatencyTrackerEmpty(t *testing.T) {
	stats := NewLatencyTracker(10).Stats()
	if stats.Samples != 0 || stats.P50 != 0 {
		t.Errorf("expected empty stats, got %+v", stats)
	}
}

func TestWebhookMetricsSnapshot(t *testing.T) {
	m := NewWebhookMetrics()
	m.Received.Add(3)
	m.Ignore(IgnoreNonText)
	m.ObserveDispatch("book", "created", 20*time.Millisecond, false, false)
	m.ObserveDispatch("cancel", "failed", 10*time.Millisecond, true, true)

	snap := m.Snapshot()
	if snap["received"] != int64(3) || snap["dispatched"] != int64(2) {
		t.Errorf("unexpected counters %v", snap)
	}
	if snap["failed"] != int64(1) || snap["send_failures"] != int64(1) {
		t.Errorf("unexpected failure counters %v", snap)
	}
	ignored := snap["ignored"].(map[string]int64)
	if ignored[IgnoreNonText] != 1 {
		t.Errorf("unexpected ignored %v", ignored)
	}
	latency := snap["latency"].(map[string]any)
	if _, ok := latency["book"]; !ok {
		t.Errorf("expected per-intent latency, got %v", latency)
	}
}
