package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the chat service.
type Metrics struct {
	RequestTotal      *prometheus.CounterVec
	RequestDurationMs *prometheus.HistogramVec
	StepsPerRequest   *prometheus.HistogramVec
	ToolCallTotal     *prometheus.CounterVec
	SafetyFlagTotal   *prometheus.CounterVec
	AuditFailureTotal *prometheus.CounterVec
	RateLimitHitTotal *prometheus.CounterVec
	CacheLookupTotal  *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_chat_request_total",
			Help: "Total number of chat requests handled by the orchestrator.",
		}, []string{"model", "backend", "status"}),

		RequestDurationMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aegis_chat_request_duration_ms",
			Help:    "Total chat request duration in milliseconds, including all model steps and tool calls.",
			Buckets: []float64{250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000, 180000},
		}, []string{"model", "backend"}),

		StepsPerRequest: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aegis_chat_steps_per_request",
			Help:    "Number of model steps taken per request.",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
		}, []string{"finish_reason"}),

		ToolCallTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_chat_tool_call_total",
			Help: "Total tool executions by tool and outcome.",
		}, []string{"tool", "outcome"}),

		SafetyFlagTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_chat_safety_flag_total",
			Help: "Inbound messages flagged by the safety filter.",
		}, []string{"category", "severity"}),

		AuditFailureTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_chat_audit_failure_total",
			Help: "Security log records that could not be written.",
		}, []string{"reason"}),

		RateLimitHitTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_chat_rate_limit_hit_total",
			Help: "Requests rejected by the rate limiter.",
		}, []string{"dimension"}),

		CacheLookupTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_chat_cache_lookup_total",
			Help: "Persona and catalog cache lookups by result.",
		}, []string{"cache", "result"}),
	}
}

// RecordRequest records metrics for a finished chat request.
func (m *Metrics) RecordRequest(labels RequestLabels) {
	if m == nil {
		return
	}
	m.RequestTotal.WithLabelValues(labels.Model, labels.Backend, labels.Status).Inc()
	m.RequestDurationMs.WithLabelValues(labels.Model, labels.Backend).Observe(labels.DurationMs)
	if labels.Steps > 0 {
		m.StepsPerRequest.WithLabelValues(labels.FinishReason).Observe(float64(labels.Steps))
	}
}

// RecordToolCall records a tool execution outcome ("success" or "failure").
func (m *Metrics) RecordToolCall(tool string, success bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.ToolCallTotal.WithLabelValues(tool, outcome).Inc()
}

func (m *Metrics) RecordSafetyFlag(category, severity string) {
	if m == nil {
		return
	}
	m.SafetyFlagTotal.WithLabelValues(category, severity).Inc()
}

func (m *Metrics) RecordAuditFailure(reason string) {
	if m == nil {
		return
	}
	m.AuditFailureTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordRateLimitHit(dimension string) {
	if m == nil {
		return
	}
	m.RateLimitHitTotal.WithLabelValues(dimension).Inc()
}

// RecordCacheLookup records a cache hit or miss.
func (m *Metrics) RecordCacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookupTotal.WithLabelValues(cache, result).Inc()
}

// RequestLabels holds the label values for recording a request.
type RequestLabels struct {
	Model        string
	Backend      string
	Status       string
	FinishReason string
	Steps        int
	DurationMs   float64
}
