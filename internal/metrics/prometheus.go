package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// mustRegisterOrGet registers the given collector, or returns the already
// registered collector with the same descriptor.
func mustRegisterOrGet(c prometheus.Collector) prometheus.Collector {
	if err := prometheus.Register(c); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			panic(err)
		}
		return are.ExistingCollector
	}
	return c
}

// MustRegisterNewTimerWithError registers and returns a function for timing
// functions.
func MustRegisterNewTimerWithError(name, help string, labels []string) func(prometheus.Labels, func() error) error {
	labels = append(labels, "error")

	timer := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: name + "_duration_seconds",
		Help: help,
	}, labels)

	timer = mustRegisterOrGet(timer).(*prometheus.HistogramVec)

	return func(labels prometheus.Labels, f func() error) error {
		if labels == nil {
			labels = prometheus.Labels{}
		}
		labels["error"] = "false"
		start := time.Now()
		err := f()
		elapsed := time.Since(start)

		if err != nil {
			labels["error"] = "true"
		}

		timer.With(labels).Observe(float64(elapsed) / float64(time.Second))
		return err
	}
}

// MustRegisterNewCounter registers and returns a function for counting.
func MustRegisterNewCounter(name string, help string, labels []string) func(prometheus.Labels) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: name + "_count",
		Help: help,
	}, labels)

	counter = mustRegisterOrGet(counter).(*prometheus.CounterVec)

	return func(labels prometheus.Labels) {
		counter.With(labels).Inc()
	}
}
