// Package metrics exposes Prometheus counters for lead transitions and outcome delivery.
package metrics

import (
	"context"
	"net/http"

	"lead_dispatch_backend/internal/events"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns a registry and the counters fed from the event bus.
type Recorder struct {
	registry         *prometheus.Registry
	stageTransitions *prometheus.CounterVec
	leadsClosed      *prometheus.CounterVec
	leadsReopened    prometheus.Counter
	dispatchAttempts *prometheus.CounterVec
	sweepClaimed     prometheus.Counter
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		stageTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lead_stage_transitions_total",
			Help: "Committed lead stage transitions",
		}, []string{"from", "to"}),
		leadsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leads_closed_total",
			Help: "Leads closed, by close reason",
		}, []string{"reason"}),
		leadsReopened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leads_reopened_total",
			Help: "Closed leads sent back to Inbox",
		}),
		dispatchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_attempts_total",
			Help: "Persisted dispatch attempt outcomes",
		}, []string{"type", "status"}),
		sweepClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_sweep_claimed_total",
			Help: "Attempts claimed by retry sweeps",
		}),
	}

	r.registry.MustRegister(
		r.stageTransitions,
		r.leadsClosed,
		r.leadsReopened,
		r.dispatchAttempts,
		r.sweepClaimed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Subscribe feeds the counters from domain events.
func (r *Recorder) Subscribe(bus events.Bus) {
	bus.Subscribe(events.LeadStageChanged{}.EventName(), events.HandlerFunc(r.onStageChanged))
	bus.Subscribe(events.LeadClosed{}.EventName(), events.HandlerFunc(r.onLeadClosed))
	bus.Subscribe(events.LeadReopened{}.EventName(), events.HandlerFunc(r.onLeadReopened))
	bus.Subscribe(events.DispatchAttemptFinished{}.EventName(), events.HandlerFunc(r.onAttemptFinished))
	bus.Subscribe(events.DispatchSweepCompleted{}.EventName(), events.HandlerFunc(r.onSweepCompleted))
}

func (r *Recorder) onStageChanged(_ context.Context, event events.Event) error {
	if e, ok := event.(events.LeadStageChanged); ok {
		r.stageTransitions.WithLabelValues(e.From, e.To).Inc()
	}
	return nil
}

func (r *Recorder) onLeadClosed(_ context.Context, event events.Event) error {
	if e, ok := event.(events.LeadClosed); ok {
		r.leadsClosed.WithLabelValues(e.CloseReason).Inc()
	}
	return nil
}

func (r *Recorder) onLeadReopened(_ context.Context, event events.Event) error {
	if _, ok := event.(events.LeadReopened); ok {
		r.leadsReopened.Inc()
	}
	return nil
}

func (r *Recorder) onAttemptFinished(_ context.Context, event events.Event) error {
	if e, ok := event.(events.DispatchAttemptFinished); ok {
		r.dispatchAttempts.WithLabelValues(e.Type, e.Status).Inc()
	}
	return nil
}

func (r *Recorder) onSweepCompleted(_ context.Context, event events.Event) error {
	if e, ok := event.(events.DispatchSweepCompleted); ok && e.Claimed > 0 {
		r.sweepClaimed.Add(float64(e.Claimed))
	}
	return nil
}
