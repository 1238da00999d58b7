package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistration(t *testing.T) {
	collectors := []prometheus.Collector{
		LifecycleTransitionsTotal,
		LifecycleDuration,
		TimeoutWarningsTotal,
		TimeoutsTotal,
		ReroutePassesTotal,
		RerouteDuration,
		RerouteWaiters,
		ApplicationsByStatus,
	}

	for _, c := range collectors {
		desc := make(chan *prometheus.Desc, 1)
		c.Describe(desc)
		close(desc)
		require.NotNil(t, <-desc, "metric should have a valid descriptor")
	}
}

func TestCounterMetrics(t *testing.T) {
	before := testutil.ToFloat64(ReroutePassesTotal.WithLabelValues(OutcomeCanceled))
	ReroutePassesTotal.WithLabelValues(OutcomeCanceled).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(ReroutePassesTotal.WithLabelValues(OutcomeCanceled)))
}

func TestGaugeMetrics(t *testing.T) {
	ApplicationsByStatus.WithLabelValues("MOUNTED").Set(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(ApplicationsByStatus.WithLabelValues("MOUNTED")))
}
