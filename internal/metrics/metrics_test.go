package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(Exports.WithLabelValues("csv", StatusOK))
	Exports.WithLabelValues("csv", StatusOK).Inc()
	assert.InDelta(t, before+1, testutil.ToFloat64(Exports.WithLabelValues("csv", StatusOK)), 1e-9)

	SnapshotRows.Set(12)
	assert.InDelta(t, 12, testutil.ToFloat64(SnapshotRows), 1e-9)
}
