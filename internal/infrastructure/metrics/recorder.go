package metrics

import "time"

// Recorder feeds store activity into the collector and, when set, the Prometheus exporter.
type Recorder struct {
	collector *Collector
	exporter  *PrometheusExporter
}

// NewRecorder creates a recorder. exporter may be nil.
func NewRecorder(collector *Collector, exporter *PrometheusExporter) *Recorder {
	return &Recorder{collector: collector, exporter: exporter}
}

// ObserveOperation records one box operation that started at start and finished with err.
func (r *Recorder) ObserveOperation(op, entity string, start time.Time, err error) {
	duration := time.Since(start).Seconds()

	r.collector.RecordOperation(op, entity)
	r.collector.RecordDuration(op, entity, duration)
	if r.exporter != nil {
		r.exporter.RecordOperation(op, entity)
		r.exporter.RecordDuration(op, entity, duration)
	}

	if err != nil {
		r.collector.RecordError(op, entity)
		if r.exporter != nil {
			r.exporter.RecordError(op, entity)
		}
	}
}

// ObserveDeferredPut records a transient relation target put ahead of its owner.
func (r *Recorder) ObserveDeferredPut(entity string) {
	r.collector.RecordDeferredPut(entity)
	if r.exporter != nil {
		r.exporter.RecordDeferredPut(entity)
	}
}

// ObserveTx records the outcome of a top-level transaction.
func (r *Recorder) ObserveTx(err error) {
	r.collector.RecordTx(err == nil)
	if r.exporter != nil {
		r.exporter.RecordTx(err == nil)
	}
}

// ObserveCache records a record cache lookup.
func (r *Recorder) ObserveCache(hit bool) {
	if r.exporter == nil {
		return
	}
	if hit {
		r.exporter.RecordCacheHit()
	} else {
		r.exporter.RecordCacheMiss()
	}
}
