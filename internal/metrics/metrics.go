// Package metrics backs the "top" command's lock-time reporting with
// Prometheus counters: every sample top reports is also added to a
// cumulative counter in the registry the caller supplies.
package metrics

import (
	"math/rand"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsSource is the collaborator the "top" command handler depends on.
// Production code gets PrometheusSource; tests inject a fixed-value stub.
type MetricsSource interface {
	ReadLockSample() (time, count int64)
	WriteLockSample() (time, count int64)
}

// Bounds for the simulated per-sample lock time (microseconds) and
// operation count reported by the top command.
const (
	minSampleTime  = 800
	maxSampleTime  = 1200
	minSampleCount = 10
	maxSampleCount = 100
)

// PrometheusSource is the production MetricsSource. Each call draws a
// bounded random sample (mongowired has no real lock manager to
// instrument), returns it, and adds it to a running counter, so the
// counters hold the sum of every sample top has handed back. The counters
// are only registered; mongowired does not serve the registry over HTTP.
type PrometheusSource struct {
	readTime   prometheus.Counter
	readCount  prometheus.Counter
	writeTime  prometheus.Counter
	writeCount prometheus.Counter
}

// NewPrometheusSource registers the four counters against reg and returns a
// MetricsSource backed by them.
func NewPrometheusSource(reg prometheus.Registerer) *PrometheusSource {
	s := &PrometheusSource{
		readTime: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mongowired_lock_read_time_micros_total",
			Help: "Cumulative simulated read-lock time in microseconds.",
		}),
		readCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mongowired_lock_read_count_total",
			Help: "Cumulative simulated read-lock acquisitions.",
		}),
		writeTime: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mongowired_lock_write_time_micros_total",
			Help: "Cumulative simulated write-lock time in microseconds.",
		}),
		writeCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mongowired_lock_write_count_total",
			Help: "Cumulative simulated write-lock acquisitions.",
		}),
	}
	reg.MustRegister(s.readTime, s.readCount, s.writeTime, s.writeCount)
	return s
}

func (s *PrometheusSource) ReadLockSample() (int64, int64) {
	t, c := sample()
	s.readTime.Add(float64(t))
	s.readCount.Add(float64(c))
	return t, c
}

func (s *PrometheusSource) WriteLockSample() (int64, int64) {
	t, c := sample()
	s.writeTime.Add(float64(t))
	s.writeCount.Add(float64(c))
	return t, c
}

func sample() (time, count int64) {
	time = minSampleTime + rand.Int63n(maxSampleTime-minSampleTime+1)
	count = minSampleCount + rand.Int63n(maxSampleCount-minSampleCount+1)
	return time, count
}
