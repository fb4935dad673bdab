// Package metrics holds the reference host's Prometheus instrumentation
// surface for the kernel's operational behavior (poll outcomes, event
// emission/drops, call latencies, mode transitions, automation health).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every Prometheus metric the reference host exposes.
type Registry struct {
	pollsOK          prometheus.Counter
	pollsFailed      prometheus.Counter
	signalsStale     prometheus.Gauge
	eventsEmitted    *prometheus.CounterVec
	eventsDropped    prometheus.Counter
	callsTotal       *prometheus.CounterVec
	callLatency      prometheus.Histogram
	modeTransitions  *prometheus.CounterVec
	paramChanges     prometheus.Counter
	automationTicks  prometheus.Counter
	automationErrors prometheus.Counter
}

// NewRegistry constructs and registers every metric with the default
// Prometheus registerer, the way the ingestion teacher's registry.go does.
func NewRegistry() *Registry {
	return &Registry{
		pollsOK: promauto.NewCounter(prometheus.CounterOpts{
			Name: "anolis_poll_success_total",
			Help: "Total number of successful device poll passes",
		}),
		pollsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "anolis_poll_failure_total",
			Help: "Total number of failed device poll passes",
		}),
		signalsStale: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "anolis_signals_stale",
			Help: "Current count of cached signals considered stale",
		}),
		eventsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "anolis_events_emitted_total",
			Help: "Total number of events emitted, labeled by kind",
		}, []string{"kind"}),
		eventsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "anolis_events_dropped_total",
			Help: "Total number of events dropped from subscriber queue overflow",
		}),
		callsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "anolis_calls_total",
			Help: "Total number of Call Router dispatches, labeled by result kind",
		}, []string{"kind"}),
		callLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "anolis_call_latency_seconds",
			Help:    "Call Router dispatch latency",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}),
		modeTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "anolis_mode_transitions_total",
			Help: "Total number of mode transitions, labeled by new mode",
		}, []string{"mode"}),
		paramChanges: promauto.NewCounter(prometheus.CounterOpts{
			Name: "anolis_parameter_changes_total",
			Help: "Total number of successful parameter writes",
		}),
		automationTicks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "anolis_automation_ticks_total",
			Help: "Total number of automation tick loop iterations",
		}),
		automationErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "anolis_automation_errors_total",
			Help: "Total number of automation tick errors",
		}),
	}
}

func (r *Registry) IncPollOK()               { r.pollsOK.Inc() }
func (r *Registry) IncPollFailed()           { r.pollsFailed.Inc() }
func (r *Registry) SetStaleSignals(n float64) { r.signalsStale.Set(n) }
func (r *Registry) IncEventEmitted(kind string) { r.eventsEmitted.WithLabelValues(kind).Inc() }
func (r *Registry) IncEventDropped()         { r.eventsDropped.Inc() }
func (r *Registry) IncCall(kind string)      { r.callsTotal.WithLabelValues(kind).Inc() }
func (r *Registry) ObserveCallLatency(seconds float64) { r.callLatency.Observe(seconds) }
func (r *Registry) IncModeTransition(mode string) { r.modeTransitions.WithLabelValues(mode).Inc() }
func (r *Registry) IncParameterChange()      { r.paramChanges.Inc() }
func (r *Registry) IncAutomationTick()       { r.automationTicks.Inc() }
func (r *Registry) IncAutomationError()      { r.automationErrors.Inc() }
