// Package metrics exposes Prometheus metrics for the task loop and timers,
// and serves them over HTTP.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/alan/internal/runtime"
)

// Task outcomes.
const (
	outcomeOK    = "ok"
	outcomeError = "error"
	outcomeStop  = "stop"
)

// Collector implements runtime.Observer and timers.Observer.
type Collector struct {
	tasksTotal       *prometheus.CounterVec
	taskDuration     *prometheus.HistogramVec
	timersRegistered *prometheus.CounterVec
	timersFired      prometheus.Counter
	timersCancelled  prometheus.Counter
	timersActive     prometheus.Gauge
}

// New creates a Collector and registers it with reg.
// Panics if the metrics are already registered.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		tasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alan_tasks_total",
				Help: "Total number of tasks dispatched by the event loop.",
			},
			[]string{"kind", "outcome"},
		),
		taskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "alan_task_duration_seconds",
				Help:    "Task execution time in seconds, including the job queue flush.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"kind"},
		),
		timersRegistered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alan_timers_registered_total",
				Help: "Total number of timers registered.",
			},
			[]string{"kind"},
		),
		timersFired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alan_timers_fired_total",
			Help: "Total number of timer callbacks invoked.",
		}),
		timersCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alan_timers_cancelled_total",
			Help: "Total number of timers cancelled, including those cancelled by runtime teardown.",
		}),
		timersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alan_timers_active",
			Help: "Number of live timers.",
		}),
	}

	reg.MustRegister(
		c.tasksTotal,
		c.taskDuration,
		c.timersRegistered,
		c.timersFired,
		c.timersCancelled,
		c.timersActive,
	)
	return c
}

// TaskExecuted implements runtime.Observer.
func (c *Collector) TaskExecuted(ev runtime.TaskEvent) {
	outcome := outcomeOK
	switch {
	case ev.Err != nil:
		outcome = outcomeError
	case ev.Stop:
		outcome = outcomeStop
	}

	c.tasksTotal.WithLabelValues(ev.Kind, outcome).Inc()
	c.taskDuration.WithLabelValues(ev.Kind).Observe(ev.Duration.Seconds())
}

// TimerRegistered implements timers.Observer.
func (c *Collector) TimerRegistered(id int64, repeat bool) {
	c.timersRegistered.WithLabelValues(timerKind(repeat)).Inc()
	c.timersActive.Inc()
}

// TimerFired implements timers.Observer. A fired one-shot is no longer live.
func (c *Collector) TimerFired(id int64, repeat bool) {
	c.timersFired.Inc()
	if !repeat {
		c.timersActive.Dec()
	}
}

// TimerCancelled implements timers.Observer.
func (c *Collector) TimerCancelled(id int64) {
	c.timersCancelled.Inc()
	c.timersActive.Dec()
}

func timerKind(repeat bool) string {
	if repeat {
		return "interval"
	}
	return "timeout"
}
