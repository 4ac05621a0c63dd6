package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCounterValue(t *testing.T) {
	m := NewMetricsForTesting()

	m.DispatchOutcomes.WithLabelValues("warnings", "sent").Add(3)
	m.TrackedWarnings.Set(7)

	assert.InDelta(t, 3, CounterValue(m.DispatchOutcomes.WithLabelValues("warnings", "sent")), 0)
	assert.InDelta(t, 7, CounterValue(m.TrackedWarnings), 0)
	assert.Zero(t, CounterValue(m.DispatchOutcomes.WithLabelValues("warnings", "failed")))
}

func TestNewUnregisteredMetrics_Independent(t *testing.T) {
	a := NewUnregisteredMetrics()
	b := NewUnregisteredMetrics()

	a.FeedFetches.WithLabelValues("sbw", "success").Inc()

	assert.InDelta(t, 1, CounterValue(a.FeedFetches.WithLabelValues("sbw", "success")), 0)
	assert.Zero(t, CounterValue(b.FeedFetches.WithLabelValues("sbw", "success")))
}
