package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Histogram bucket definitions.
var (
	executionDurationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	hookDurationBuckets      = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5}
	cascadeDepthBuckets      = []float64{0, 1, 2, 3, 5, 8, 10}
)

// Metrics holds all Prometheus metric instruments for the engine.
type Metrics struct {
	RequestsCreatedTotal   *prometheus.CounterVec
	ActionExecutionsTotal  *prometheus.CounterVec
	ActionDuration         *prometheus.HistogramVec
	TransitionsTotal       *prometheus.CounterVec
	ValidationFailures     *prometheus.CounterVec
	AuthorizationDenials   *prometheus.CounterVec
	CascadeDepth           *prometheus.HistogramVec
	CascadeLimitHits       *prometheus.CounterVec

	HookExecutionsTotal   *prometheus.CounterVec
	HookDuration          *prometheus.HistogramVec
	BackgroundHooksActive prometheus.Gauge
	BackgroundHookFaults  *prometheus.CounterVec
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsCreatedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatehouse_requests_created_total",
			Help: "Total number of requests created.",
		}, []string{"definition"}),
		ActionExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatehouse_action_executions_total",
			Help: "Total number of action executions by outcome.",
		}, []string{"definition", "action", "outcome"}),
		ActionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gatehouse_action_duration_seconds",
			Help:    "Action execution duration in seconds, including hooks.",
			Buckets: executionDurationBuckets,
		}, []string{"definition", "action"}),
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatehouse_transitions_total",
			Help: "Total number of state transitions.",
		}, []string{"definition", "from_state", "to_state"}),
		ValidationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatehouse_validation_failures_total",
			Help: "Total number of validation failures.",
		}, []string{"definition", "action"}),
		AuthorizationDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatehouse_authorization_denials_total",
			Help: "Total number of authorization denials.",
		}, []string{"definition", "action"}),
		CascadeDepth: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gatehouse_cascade_depth",
			Help:    "Auto-transition cascade depth per execution.",
			Buckets: cascadeDepthBuckets,
		}, []string{"definition"}),
		CascadeLimitHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatehouse_cascade_limit_hits_total",
			Help: "Total number of executions aborted by the cascade depth limit.",
		}, []string{"definition"}),

		HookExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatehouse_hook_executions_total",
			Help: "Total number of hook executions by outcome.",
		}, []string{"hook", "outcome"}),
		HookDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gatehouse_hook_duration_seconds",
			Help:    "Hook execution duration in seconds.",
			Buckets: hookDurationBuckets,
		}, []string{"hook"}),
		BackgroundHooksActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gatehouse_background_hooks_active",
			Help: "Number of fire-and-forget hooks currently scheduled or running.",
		}),
		BackgroundHookFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatehouse_background_hook_faults_total",
			Help: "Total number of fire-and-forget hook failures.",
		}, []string{"hook"}),
	}

	reg.MustRegister(
		m.RequestsCreatedTotal,
		m.ActionExecutionsTotal,
		m.ActionDuration,
		m.TransitionsTotal,
		m.ValidationFailures,
		m.AuthorizationDenials,
		m.CascadeDepth,
		m.CascadeLimitHits,
		m.HookExecutionsTotal,
		m.HookDuration,
		m.BackgroundHooksActive,
		m.BackgroundHookFaults,
	)

	return m
}
