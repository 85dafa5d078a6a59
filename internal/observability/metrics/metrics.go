// Package metrics exposes door and notifier activity as Prometheus metrics
// and serves them (plus /healthz and optional pprof) over HTTP.
package metrics

import (
	"context"
	"net/http"

	"doorbot/internal/door"
	"doorbot/internal/eventbus"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "doorbot"

// Metrics owns a private registry so tests can create as many as they like.
type Metrics struct {
	reg *prometheus.Registry

	samples       *prometheus.CounterVec
	changes       *prometheus.CounterVec
	status        *prometheus.GaugeVec
	lastSample    prometheus.Gauge
	historyErrors prometheus.Counter
	notifications *prometheus.CounterVec
	sendSeconds   prometheus.Histogram
	suppressed    prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "door_samples_total",
			Help: "Poll cycles by observed status.",
		}, []string{"status"}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "door_changes_total",
			Help: "Observed status changes by new status.",
		}, []string{"status"}),
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "door_status",
			Help: "1 for the last observed status, 0 otherwise.",
		}, []string{"status"}),
		lastSample: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "door_last_sample_timestamp_seconds",
			Help: "Unix time of the last poll.",
		}),
		historyErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "history_write_errors_total",
			Help: "Samples that could not be stored.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "notifications_total",
			Help: "Notification sends by result.",
		}, []string{"result"}),
		sendSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "notification_send_seconds",
			Help:    "Latency of a single notification send.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 8),
		}),
		suppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "notifications_suppressed_total",
			Help: "Changes not announced because they were the first after start.",
		}),
	}
	m.reg.MustRegister(
		m.samples, m.changes, m.status, m.lastSample, m.historyErrors,
		m.notifications, m.sendSeconds, m.suppressed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, s := range []door.Status{door.Open, door.Closed, door.Unknown} {
		m.status.WithLabelValues(s.String()).Set(0)
	}
	return m
}

// Registry is exposed for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Observe folds one bus event into the metrics.
func (m *Metrics) Observe(e eventbus.Event) {
	switch d := e.Data.(type) {
	case eventbus.DoorSampled:
		m.samples.WithLabelValues(d.Status).Inc()
		m.lastSample.Set(float64(d.At.Unix()))
		if d.Err != "" {
			m.historyErrors.Inc()
		}
		for _, s := range []door.Status{door.Open, door.Closed, door.Unknown} {
			v := 0.0
			if s.String() == d.Status {
				v = 1
			}
			m.status.WithLabelValues(s.String()).Set(v)
		}
	case eventbus.DoorChanged:
		m.changes.WithLabelValues(d.Status).Inc()
	case eventbus.Delivery:
		switch e.Type {
		case eventbus.TypeNotifierSent:
			m.notifications.WithLabelValues("sent").Inc()
			m.sendSeconds.Observe(d.Took.Seconds())
		case eventbus.TypeNotifierFailed:
			m.notifications.WithLabelValues("failed").Inc()
			m.sendSeconds.Observe(d.Took.Seconds())
		case eventbus.TypeNotifierSuppressed:
			m.suppressed.Inc()
		}
	}
}

// Run consumes bus events until ctx is done.
func (m *Metrics) Run(ctx context.Context, bus eventbus.Bus) error {
	ch, unsub := bus.Subscribe(64)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			m.Observe(e)
		}
	}
}
