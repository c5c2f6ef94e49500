package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder_ObserveOperation(t *testing.T) {
	collector := NewCollector()
	recorder := NewRecorder(collector, nil)

	recorder.ObserveOperation("get", "customer", time.Now(), nil)
	recorder.ObserveOperation("get", "customer", time.Now(), nil)
	recorder.ObserveOperation("put", "order", time.Now(), errors.New("boom"))

	m := collector.GetStoreMetrics()
	if got := m.OperationCounts["get/customer"]; got != 2 {
		t.Errorf("get/customer count = %d, want 2", got)
	}
	if got := m.OperationCounts["put/order"]; got != 1 {
		t.Errorf("put/order count = %d, want 1", got)
	}
	if got := m.ErrorCounts["put/order"]; got != 1 {
		t.Errorf("put/order errors = %d, want 1", got)
	}
	if _, ok := m.ErrorCounts["get/customer"]; ok {
		t.Error("get/customer should have no error counter")
	}
	if _, ok := m.TotalDurationSeconds["get/customer"]; !ok {
		t.Error("expected duration recorded for get/customer")
	}
}

func TestRecorder_TxAndDeferredPuts(t *testing.T) {
	collector := NewCollector()
	recorder := NewRecorder(collector, nil)

	recorder.ObserveTx(nil)
	recorder.ObserveTx(errors.New("rolled back"))
	recorder.ObserveTx(nil)
	recorder.ObserveDeferredPut("customer")

	m := collector.GetStoreMetrics()
	if m.TxCommitted != 2 || m.TxFailed != 1 {
		t.Errorf("tx committed/failed = %d/%d, want 2/1", m.TxCommitted, m.TxFailed)
	}
	if got := m.DeferredPuts["customer"]; got != 1 {
		t.Errorf("deferred puts = %d, want 1", got)
	}
}

func TestPrometheusExporter(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := NewCollector()
	exporter := NewPrometheusExporter(collector, reg)
	recorder := NewRecorder(collector, exporter)

	recorder.ObserveOperation("get", "customer", time.Now(), nil)
	recorder.ObserveOperation("put", "customer", time.Now(), errors.New("boom"))
	recorder.ObserveTx(nil)
	recorder.ObserveDeferredPut("customer")
	recorder.ObserveCache(true)
	recorder.ObserveCache(false)
	recorder.ObserveCache(false)

	if got := testutil.ToFloat64(exporter.boxOperations.WithLabelValues("get", "customer")); got != 1 {
		t.Errorf("box operations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.boxErrors.WithLabelValues("put", "customer")); got != 1 {
		t.Errorf("box errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.transactions.WithLabelValues("committed")); got != 1 {
		t.Errorf("committed transactions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.deferredPuts.WithLabelValues("customer")); got != 1 {
		t.Errorf("deferred puts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.cacheMisses); got != 2 {
		t.Errorf("cache misses = %v, want 2", got)
	}

	// A second exporter on its own registry must not collide.
	NewPrometheusExporter(NewCollector(), prometheus.NewRegistry())
}

func TestCollector_GetCacheMetricsWithoutCache(t *testing.T) {
	collector := NewCollector()
	m := collector.GetCacheMetrics()
	if m.Hits != 0 || m.KeysCurrent != 0 {
		t.Errorf("GetCacheMetrics() = %+v, want zero value", m)
	}
}
