// Package metrics records rebuild/sync observability via Prometheus,
// grounded on inful-docbuilder's PrometheusRecorder shape: one struct
// of label-vectored metrics, sync.Once-guarded registration, a fixed
// namespace prefix.
package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// SyncResult labels a batched live-sync flush's outcome.
type SyncResult string

const (
	SyncSuccess SyncResult = "success"
	SyncFailure SyncResult = "failure"
)

// Recorder wraps nsbuild's Prometheus metrics: rebuild duration, delta
// op counts, sync batch sizes and flush latency, device sync outcomes.
// The rebuild path records rebuild duration and delta op counts, and the
// reconciler records delta op counts; the batch-size, flush-latency and
// sync-outcome methods have no caller in the live-sync path.
type Recorder struct {
	once sync.Once

	rebuildDuration *prom.HistogramVec
	deltaOpCount    *prom.GaugeVec
	batchSize       prom.Histogram
	flushLatency    prom.Histogram
	syncOutcomes    *prom.CounterVec
}

// NewRecorder constructs and registers the metrics against reg
// (idempotent; a nil reg creates a private Registry).
func NewRecorder(reg *prom.Registry) *Recorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	r := &Recorder{}
	r.once.Do(func() {
		r.rebuildDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "nsbuild",
			Name:      "rebuild_duration_seconds",
			Help:      "Duration of a full rebuild, by platform",
			Buckets:   prom.DefBuckets,
		}, []string{"platform"})
		r.deltaOpCount = prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "nsbuild",
			Name:      "delta_ops",
			Help:      "Size of the last computed delta, by operation kind",
		}, []string{"op"})
		r.batchSize = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "nsbuild",
			Name:      "sync_batch_files",
			Help:      "Number of files carried by a flushed SyncBatch",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
		})
		r.flushLatency = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "nsbuild",
			Name:      "sync_flush_latency_seconds",
			Help:      "Time from the first AddFile in a batch to its Done callback starting",
			Buckets:   prom.DefBuckets,
		})
		r.syncOutcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "nsbuild",
			Name:      "device_sync_outcomes_total",
			Help:      "Device sync outcomes by platform and result",
		}, []string{"platform", "result"})
		reg.MustRegister(r.rebuildDuration, r.deltaOpCount, r.batchSize, r.flushLatency, r.syncOutcomes)
	})
	return r
}

func (r *Recorder) ObserveRebuildDuration(platform string, d time.Duration) {
	if r == nil || r.rebuildDuration == nil {
		return
	}
	r.rebuildDuration.WithLabelValues(platform).Observe(d.Seconds())
}

// SetDeltaOpCounts records the size of the last computed delta's four
// sets (spec.md §3: mkdir, copy, rmfile, rmdir).
func (r *Recorder) SetDeltaOpCounts(mkdir, copyN, rmfile, rmdir int) {
	if r == nil || r.deltaOpCount == nil {
		return
	}
	r.deltaOpCount.WithLabelValues("mkdir").Set(float64(mkdir))
	r.deltaOpCount.WithLabelValues("copy").Set(float64(copyN))
	r.deltaOpCount.WithLabelValues("rmfile").Set(float64(rmfile))
	r.deltaOpCount.WithLabelValues("rmdir").Set(float64(rmdir))
}

func (r *Recorder) ObserveBatchSize(n int) {
	if r == nil || r.batchSize == nil {
		return
	}
	r.batchSize.Observe(float64(n))
}

func (r *Recorder) ObserveFlushLatency(d time.Duration) {
	if r == nil || r.flushLatency == nil {
		return
	}
	r.flushLatency.Observe(d.Seconds())
}

func (r *Recorder) IncSyncOutcome(platform string, result SyncResult) {
	if r == nil || r.syncOutcomes == nil {
		return
	}
	r.syncOutcomes.WithLabelValues(platform, string(result)).Inc()
}
