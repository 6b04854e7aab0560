// Package metrics exposes Prometheus collectors fed by the event bus.
package metrics

import (
	"context"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nightbot/internal/eventbus"
	"nightbot/internal/task/engine"
	"nightbot/internal/task/scheduler"
	logx "nightbot/pkg/logx"
)

const namespace = "nightbot"

// Sources are sampled at scrape time. Either may be nil.
type Sources struct {
	Jobs   interface{ Len() int }
	Engine interface{ Snapshot() engine.Snapshot }
}

type Metrics struct {
	reg *prometheus.Registry
	log logx.Logger

	tasks       *prometheus.CounterVec
	taskSeconds *prometheus.HistogramVec
	queueDelay  prometheus.Histogram
	jobEvents   *prometheus.CounterVec
	reconciled  *prometheus.CounterVec
	updates     *prometheus.CounterVec
}

func New(src Sources, log logx.Logger) *Metrics {
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		log: log.With(logx.Comp("metrics")),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "tasks_total",
			Help: "Fired jobs by kind and result.",
		}, []string{"kind", "result"}),
		taskSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "task_duration_seconds",
			Help:    "Run time of fired jobs including retries.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"kind"}),
		queueDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "task_queue_delay_seconds",
			Help:    "Time fired jobs waited for a worker.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		jobEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "job_events_total",
			Help: "Scheduler job lifecycle events.",
		}, []string{"event", "kind"}),
		reconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "reconciled_items_total",
			Help: "Stored items processed by startup reconciliation.",
		}, []string{"result"}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "updates_total",
			Help: "Inbound Telegram updates by kind.",
		}, []string{"kind"}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.tasks, m.taskSeconds, m.queueDelay, m.jobEvents, m.reconciled, m.updates,
	)
	if src.Jobs != nil {
		m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "scheduled_jobs",
			Help: "Jobs currently registered with the scheduler.",
		}, func() float64 { return float64(src.Jobs.Len()) }))
	}
	if src.Engine != nil {
		m.reg.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace, Name: "engine_queue_length",
				Help: "Tasks waiting for a worker.",
			}, func() float64 { return float64(src.Engine.Snapshot().QueueLen) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace, Name: "engine_in_flight",
				Help: "Tasks currently running.",
			}, func() float64 { return float64(src.Engine.Snapshot().InFlight) }),
		)
	}
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// ObserveUpdate counts one inbound update ("message", "media", "callback").
func (m *Metrics) ObserveUpdate(kind string) {
	m.updates.WithLabelValues(kind).Inc()
}

// ObserveReconcile records a reconciliation pass.
func (m *Metrics) ObserveReconcile(scheduled, skipped int) {
	m.reconciled.WithLabelValues("scheduled").Add(float64(scheduled))
	m.reconciled.WithLabelValues("skipped").Add(float64(skipped))
}

// Run consumes bus events until ctx is done.
func (m *Metrics) Run(ctx context.Context, bus eventbus.Bus) error {
	ch, unsubscribe := bus.Subscribe(256)
	defer unsubscribe()
	m.log.Debug("metrics subscriber started")
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

// Observe applies one event.
func (m *Metrics) Observe(e eventbus.Event) {
	switch d := e.Data.(type) {
	case engine.TaskEvent:
		kind := cmpKind(d.Kind)
		switch e.Type {
		case eventbus.TaskStarted:
			m.queueDelay.Observe(d.QueueDelay.Seconds())
		case eventbus.TaskFinished:
			m.tasks.WithLabelValues(kind, "ok").Inc()
			m.taskSeconds.WithLabelValues(kind).Observe(d.Duration.Seconds())
		case eventbus.TaskFailed:
			m.tasks.WithLabelValues(kind, "failed").Inc()
			m.taskSeconds.WithLabelValues(kind).Observe(d.Duration.Seconds())
		case eventbus.TaskDropped:
			m.tasks.WithLabelValues(kind, "dropped").Inc()
		}
	case scheduler.JobEvent:
		ev := strings.TrimPrefix(e.Type, "job.")
		m.jobEvents.WithLabelValues(ev, cmpKind(d.Kind)).Inc()
	}
}

func cmpKind(k string) string {
	if k == "" {
		return "unknown"
	}
	return k
}
