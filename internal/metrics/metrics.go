// Package metrics exports scheduler, engine and delivery activity to
// Prometheus. Counters are fed from the event bus so producers stay unaware
// of it.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vocabremind/internal/eventbus"
	"vocabremind/internal/task/engine"
)

const namespace = "vocabremind"

// Metrics owns its registry so several instances (tests, reloads) never
// collide on the global one.
type Metrics struct {
	reg *prometheus.Registry

	TriggersFired   prometheus.Counter
	TriggersExpired prometheus.Counter
	Deliveries      *prometheus.CounterVec
	Tasks           *prometheus.CounterVec
	TaskDuration    prometheus.Histogram
	QueueDelay      prometheus.Histogram
}

// New registers every metric. activeTriggers, when non-nil, backs the
// active_triggers gauge.
func New(activeTriggers func() int) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	m := &Metrics{
		reg: reg,
		TriggersFired: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trigger_firings_total",
			Help:      "Reminder trigger firings inside their window",
		}),
		TriggersExpired: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trigger_expirations_total",
			Help:      "Triggers evicted because their window closed",
		}),
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Reminder deliveries by outcome",
		}, []string{"outcome"}), // outcome: "sent", "failed"
		Tasks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_tasks_total",
			Help:      "Task engine runs by status",
		}, []string{"status"}), // status: "ok", "failed", "skipped", "dropped"
		TaskDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_task_duration_seconds",
			Help:      "Duration of a dispatch task including retries",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		QueueDelay: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_queue_delay_seconds",
			Help:      "Time a task waited in the engine queue",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}
	if activeTriggers != nil {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_triggers",
			Help:      "Live reminder triggers held by the registry",
		}, func() float64 { return float64(activeTriggers()) })
	}
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Observe updates counters for one bus event. Unknown types are ignored.
func (m *Metrics) Observe(e eventbus.Event) {
	if m == nil {
		return
	}
	switch e.Type {
	case eventbus.TypeTriggerFired:
		m.TriggersFired.Inc()
	case eventbus.TypeTriggerExpired:
		m.TriggersExpired.Inc()
	case eventbus.TypeDeliverySent:
		m.Deliveries.WithLabelValues("sent").Inc()
	case eventbus.TypeDeliveryFailed:
		m.Deliveries.WithLabelValues("failed").Inc()
	case eventbus.TypeTaskStarted:
		if te, ok := e.Data.(engine.TaskEvent); ok {
			m.QueueDelay.Observe(te.QueueDelay.Seconds())
		}
	case eventbus.TypeTaskFinished:
		m.Tasks.WithLabelValues("ok").Inc()
		m.observeDuration(e)
	case eventbus.TypeTaskFailed:
		m.Tasks.WithLabelValues("failed").Inc()
		m.observeDuration(e)
	case eventbus.TypeTaskSkipped:
		m.Tasks.WithLabelValues("skipped").Inc()
	case eventbus.TypeTaskDropped:
		m.Tasks.WithLabelValues("dropped").Inc()
	}
}

func (m *Metrics) observeDuration(e eventbus.Event) {
	if te, ok := e.Data.(engine.TaskEvent); ok {
		m.TaskDuration.Observe(te.Duration.Seconds())
	}
}

// Consume feeds bus events into Observe until ctx ends. It is meant to run
// under a supervisor.
func (m *Metrics) Consume(ctx context.Context, bus eventbus.Bus) error {
	ch, unsub := bus.Subscribe(256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			m.Observe(e)
		}
	}
}
