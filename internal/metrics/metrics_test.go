package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	fetchesTotal = nil
	fetchDurationSeconds = nil
	httpRequestsTotal = nil
	httpRequestDurationSeconds = nil

	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if fetchesTotal == nil || fetchDurationSeconds == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveFetch(t *testing.T) {
	Init()
	ObserveFetch("", "text/html", 100*time.Millisecond)
	if val := testutil.ToFloat64(fetchesTotal.WithLabelValues("")); val < 1 {
		t.Errorf("expected fetchesTotal success count >= 1, got %f", val)
	}

	ObserveFetch("timeout", "", 5*time.Second)
	if val := testutil.ToFloat64(fetchesTotal.WithLabelValues("timeout")); val < 1 {
		t.Errorf("expected fetchesTotal timeout count >= 1, got %f", val)
	}
}

func TestObserveCacheHitMiss(t *testing.T) {
	Init()
	before := testutil.ToFloat64(cacheHitsTotal)
	ObserveCacheHit()
	if after := testutil.ToFloat64(cacheHitsTotal); after != before+1 {
		t.Errorf("expected cacheHitsTotal to increment by 1, got %f -> %f", before, after)
	}

	before = testutil.ToFloat64(cacheMissesTotal)
	ObserveCacheMiss()
	if after := testutil.ToFloat64(cacheMissesTotal); after != before+1 {
		t.Errorf("expected cacheMissesTotal to increment by 1, got %f -> %f", before, after)
	}
}

func TestObserveRateLimitDelay(t *testing.T) {
	Init()
	ObserveRateLimitDelay("example.com", 250*time.Millisecond)
	if val := testutil.CollectAndCount(rateLimitDelaySeconds); val <= 0 {
		t.Errorf("expected rateLimitDelaySeconds to be observed, got %d", val)
	}
}

func TestActivePagesGauge(t *testing.T) {
	Init()
	before := testutil.ToFloat64(activePages)
	IncActivePages()
	if after := testutil.ToFloat64(activePages); after != before+1 {
		t.Errorf("expected activePages to increment by 1, got %f -> %f", before, after)
	}
	DecActivePages()
	if after := testutil.ToFloat64(activePages); after != before {
		t.Errorf("expected activePages to return to %f, got %f", before, after)
	}
}
