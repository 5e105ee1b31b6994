package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewWithRegistry(reg)

	c.Enqueued("priority")
	c.Enqueued("priority")
	c.Executed("sent")
	c.Depth(3, 1)

	if got := testutil.ToFloat64(c.QueueEnqueued.WithLabelValues("priority")); got != 2 {
		t.Errorf("enqueued = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.QueueDepth.WithLabelValues("priority")); got != 3 {
		t.Errorf("depth = %v, want 3", got)
	}
	if n, err := testutil.GatherAndCount(reg, "vcwarden_queue_executed_total"); err != nil || n != 1 {
		t.Errorf("executed series = %d, %v", n, err)
	}
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	c.Enqueued("normal")
	c.Executed("sent")
	c.Command("kick", "ok")
	c.Classified("CREATED")
	c.OwnershipChanged("creator")
	c.Reloaded()
}
