package agentloop

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus counters/histograms for one Loop,
// grounded on the observability.Metrics registry-per-subsystem
// pattern: a private registry, one init<Area>Metrics per concern, and
// small Record* methods that are no-ops on a nil receiver so callers
// never have to nil-check before instrumenting.
type Metrics struct {
	registry *prometheus.Registry

	missionsTotal    *prometheus.CounterVec
	missionDuration  *prometheus.HistogramVec
	turnsTotal       *prometheus.CounterVec
	llmCallsTotal    *prometheus.CounterVec
	llmCallDuration  *prometheus.HistogramVec
	toolCallsTotal   *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec
}

// NewMetrics builds a Metrics instance registered into a fresh
// registry. namespace/subsystem follow the teacher's convention of
// naming every metric family after the owning package.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.initMissionMetrics(namespace)
	m.initTurnMetrics(namespace)
	m.initLLMMetrics(namespace)
	m.initToolMetrics(namespace)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) initMissionMetrics(namespace string) {
	m.missionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "mission", Name: "runs_total",
		Help: "Total number of missions run to a terminal Step.",
	}, []string{"reason"})
	m.missionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "mission", Name: "duration_seconds",
		Help:    "Mission wall-clock duration.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"reason"})
	m.registry.MustRegister(m.missionsTotal, m.missionDuration)
}

func (m *Metrics) initTurnMetrics(namespace string) {
	m.turnsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "turn", Name: "total",
		Help: "Total number of turns executed across all missions.",
	}, []string{"mode"})
	m.registry.MustRegister(m.turnsTotal)
}

func (m *Metrics) initLLMMetrics(namespace string) {
	m.llmCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "llm", Name: "calls_total",
		Help: "Total number of LLM completion attempts, including retries.",
	}, []string{"outcome"})
	m.llmCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "llm", Name: "call_duration_seconds",
		Help:    "LLM completion call duration.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"outcome"})
	m.registry.MustRegister(m.llmCallsTotal, m.llmCallDuration)
}

func (m *Metrics) initToolMetrics(namespace string) {
	m.toolCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "tool", Name: "calls_total",
		Help: "Total number of tool calls made from inside the sandbox.",
	}, []string{"tool", "outcome"})
	m.toolCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "tool", Name: "call_duration_seconds",
		Help:    "Tool call duration as measured by the sandbox collector.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"tool"})
	m.registry.MustRegister(m.toolCallsTotal, m.toolCallDuration)
}

func (m *Metrics) RecordMission(reason Reason, d time.Duration) {
	if m == nil {
		return
	}
	r := string(reason)
	if r == "" {
		r = "return"
	}
	m.missionsTotal.WithLabelValues(r).Inc()
	m.missionDuration.WithLabelValues(r).Observe(d.Seconds())
}

func (m *Metrics) RecordTurn(mode OutputMode) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(string(mode)).Inc()
}

func (m *Metrics) RecordLLMCall(ok bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.llmCallsTotal.WithLabelValues(outcome).Inc()
	m.llmCallDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) RecordToolCall(tool string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.toolCallsTotal.WithLabelValues(tool, outcome).Inc()
	m.toolCallDuration.WithLabelValues(tool).Observe(d.Seconds())
}
