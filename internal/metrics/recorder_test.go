package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderObservations(t *testing.T) {
	reg := prom.NewRegistry()
	r := NewRecorder(reg)

	r.ObserveRebuildDuration("ios", 2*time.Second)
	r.SetDeltaOpCounts(3, 5, 1, 0)
	r.ObserveBatchSize(4)
	r.ObserveFlushLatency(250 * time.Millisecond)
	r.IncSyncOutcome("android", SyncSuccess)
	r.IncSyncOutcome("android", SyncFailure)

	if got := testutil.ToFloat64(r.deltaOpCount.WithLabelValues("copy")); got != 5 {
		t.Fatalf("delta copy gauge = %v, want 5", got)
	}
	if got := testutil.ToFloat64(r.syncOutcomes.WithLabelValues("android", "success")); got != 1 {
		t.Fatalf("sync success counter = %v, want 1", got)
	}
}

func TestRecorderNilReceiverIsNoOp(t *testing.T) {
	var r *Recorder
	r.ObserveRebuildDuration("ios", time.Second)
	r.IncSyncOutcome("ios", SyncFailure)
}
