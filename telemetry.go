package main

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// telemetry instruments the broadcast path. A nil *telemetry is valid and
// records nothing.
type telemetry struct {
	subscribers      prometheus.Gauge
	ticks            prometheus.Counter
	sampleErrors     prometheus.Counter
	deliveries       prometheus.Counter
	deliveryFailures prometheus.Counter
	sampleDuration   prometheus.Histogram
}

func newTelemetry(reg prometheus.Registerer) *telemetry {
	t := &telemetry{
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "devpulse_subscribers",
			Help: "Number of subscribers currently receiving snapshots.",
		}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "devpulse_ticks_total",
			Help: "Broadcast ticks started.",
		}),
		sampleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "devpulse_sample_errors_total",
			Help: "Ticks skipped because the metrics provider failed.",
		}),
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "devpulse_deliveries_total",
			Help: "Snapshots delivered to subscribers.",
		}),
		deliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "devpulse_delivery_failures_total",
			Help: "Failed deliveries; each drops its subscriber.",
		}),
		sampleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "devpulse_sample_duration_seconds",
			Help:    "Time spent reading the metrics provider per tick.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}

	reg.MustRegister(t.subscribers, t.ticks, t.sampleErrors, t.deliveries, t.deliveryFailures, t.sampleDuration)
	return t
}

func (t *telemetry) setSubscribers(n int) {
	if t == nil {
		return
	}
	t.subscribers.Set(float64(n))
}

func (t *telemetry) observeSample(d time.Duration, err error) {
	if t == nil {
		return
	}
	t.ticks.Inc()
	t.sampleDuration.Observe(d.Seconds())
	if err != nil {
		t.sampleErrors.Inc()
	}
}

func (t *telemetry) observeFanOut(attempted, failed int) {
	if t == nil {
		return
	}
	t.deliveries.Add(float64(attempted - failed))
	t.deliveryFailures.Add(float64(failed))
}
