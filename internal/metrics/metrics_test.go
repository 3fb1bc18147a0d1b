package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveRun(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry(), "test")

	c.ObserveRun("static_fallback", 100*time.Millisecond, 0.001, true)
	c.ObserveRun("direct_llm", time.Second, 0.002, false)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.ProcessingRuns.WithLabelValues("static_fallback")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.DegradedRuns))
	assert.InDelta(t, 0.003, testutil.ToFloat64(c.ProcessingCostUSD), 1e-12)
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveRun("x", time.Second, 1, true)
		c.TierFailed("x", "y")
		c.PersistFailed()
		c.FeedbackReceived("v1.0")
		c.EventDropped("webhook")
		c.PatientCreated("api")
		c.ObserveRequest("GET", "/", 200, time.Millisecond)
	})
}
