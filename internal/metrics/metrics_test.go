package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestPrometheusSourceBounds(t *testing.T) {
	src := NewPrometheusSource(prometheus.NewRegistry())
	for i := 0; i < 50; i++ {
		rt, rc := src.ReadLockSample()
		assert.GreaterOrEqual(t, rt, int64(minSampleTime))
		assert.LessOrEqual(t, rt, int64(maxSampleTime))
		assert.GreaterOrEqual(t, rc, int64(minSampleCount))
		assert.LessOrEqual(t, rc, int64(maxSampleCount))

		wt, wc := src.WriteLockSample()
		assert.GreaterOrEqual(t, wt, int64(minSampleTime))
		assert.LessOrEqual(t, wt, int64(maxSampleTime))
		assert.GreaterOrEqual(t, wc, int64(minSampleCount))
		assert.LessOrEqual(t, wc, int64(maxSampleCount))
	}
}

func TestFixedSource(t *testing.T) {
	src := FixedSource{ReadTime: 900, ReadCount: 20, WriteTime: 1100, WriteCount: 80}
	rt, rc := src.ReadLockSample()
	assert.Equal(t, int64(900), rt)
	assert.Equal(t, int64(20), rc)
	wt, wc := src.WriteLockSample()
	assert.Equal(t, int64(1100), wt)
	assert.Equal(t, int64(80), wc)
}
