package diagnostics

import (
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestCountersSaturate(t *testing.T) {
	var c Counters
	c.InboundComplete = math.MaxUint32
	c.IncInboundComplete()
	require.EqualValues(t, math.MaxUint32, c.Load().InboundComplete)
}

func TestSetMaxSaturatingOnlyRaises(t *testing.T) {
	var c Counters
	c.SetOutboundLinkLatencyMax(10)
	c.SetOutboundLinkLatencyMax(3)
	require.EqualValues(t, 10, c.Load().OutboundLinkLatencyMax)
	c.SetOutboundLinkLatencyMax(42)
	require.EqualValues(t, 42, c.Load().OutboundLinkLatencyMax)
}

func TestCollectorExportsCounters(t *testing.T) {
	var c Counters
	c.IncInboundComplete()
	c.IncInboundComplete()

	col := NewCollector(&c, prometheus.Labels{"instance": "test"})

	descs := make(chan *prometheus.Desc, 64)
	col.Describe(descs)
	close(descs)
	require.NotEmpty(t, descs)

	metrics := make(chan prometheus.Metric, 64)
	col.Collect(metrics)
	close(metrics)

	found := false
	for m := range metrics {
		var pb dto.Metric
		require.NoError(t, m.Write(&pb))
		if pb.Counter != nil && pb.Counter.GetValue() == 2 {
			found = true
		}
	}
	require.True(t, found, "expected to find inbound_complete_total == 2")
}
