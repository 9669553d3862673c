package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"dailyledger/internal/core"
)

func TestCounters(t *testing.T) {
	m := New()
	m.MalformedField(core.FieldAmount, "malformed_amount")
	m.MalformedField(core.FieldAmount, "malformed_amount")
	m.MalformedField(core.FieldDate, "unresolved_date")
	m.ObserveStore("read", 10*time.Millisecond, nil)
	m.ObserveStore("append", time.Millisecond, errors.New("boom"))
	m.CacheEvent(CacheHit)
	m.RowsMaterialized(3)

	if got := testutil.ToFloat64(m.malformed.WithLabelValues("amount", "malformed_amount")); got != 2 {
		t.Fatalf("malformed amount = %v", got)
	}
	if got := testutil.ToFloat64(m.storeOps.WithLabelValues("append", ResultError)); got != 1 {
		t.Fatalf("append errors = %v", got)
	}
	if got := testutil.ToFloat64(m.storeOps.WithLabelValues("read", ResultOK)); got != 1 {
		t.Fatalf("read ok = %v", got)
	}
	if got := testutil.ToFloat64(m.materialized); got != 3 {
		t.Fatalf("materialized = %v", got)
	}
	if got := testutil.ToFloat64(m.cacheEvents.WithLabelValues(CacheHit)); got != 1 {
		t.Fatalf("cache hits = %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.MalformedField(core.FieldDate, "unresolved_date")
	m.ObserveStore("read", time.Second, nil)
	m.CacheEvent(CacheMiss)
	m.RowsMaterialized(1)
	m.ObserveHTTP("GET", "/api/report", 200, time.Millisecond)
	m.RateLimited()
	m.Mirrored(MirrorInserted)
}

func TestHTTPAndMirrorCounters(t *testing.T) {
	m := New()
	m.ObserveHTTP("GET", "/api/report", 200, time.Millisecond)
	m.ObserveHTTP("GET", "/api/report", 200, time.Millisecond)
	m.ObserveHTTP("GET", "", 404, time.Millisecond)
	m.RateLimited()
	m.Mirrored(MirrorDuplicate)

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/report", "200")); got != 2 {
		t.Fatalf("report requests = %v", got)
	}
	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Fatalf("unmatched requests = %v", got)
	}
	if got := testutil.ToFloat64(m.rateLimited); got != 1 {
		t.Fatalf("rate limited = %v", got)
	}
	if got := testutil.ToFloat64(m.mirrored.WithLabelValues(MirrorDuplicate)); got != 1 {
		t.Fatalf("mirror duplicates = %v", got)
	}
}

func TestHandlerExposesLedgerMetrics(t *testing.T) {
	m := New()
	m.RowsMaterialized(1)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ledger_rows_materialized_total 1") {
		t.Fatalf("metrics output missing counter:\n%s", rec.Body.String())
	}
}
