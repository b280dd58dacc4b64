package metrics

import "github.com/prometheus/client_golang/prometheus"

// ChatMetrics exposes counters/histograms for chat turns.
type ChatMetrics struct {
	turnsTotal    *prometheus.CounterVec
	guardedTotal  *prometheus.CounterVec
	sideEffects   *prometheus.CounterVec
	turnLatency   *prometheus.HistogramVec
	stateConflict prometheus.Counter
}

func NewChatMetrics(reg prometheus.Registerer) *ChatMetrics {
	m := &ChatMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "botdesk",
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Total chat turns by detected intent and outcome",
		}, []string{"intent", "outcome"}),
		guardedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "botdesk",
			Subsystem: "chat",
			Name:      "low_signal_total",
			Help:      "Turns that skipped retrieval because the message carried no question",
		}, []string{"reason"}),
		sideEffects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "botdesk",
			Subsystem: "chat",
			Name:      "side_effects_total",
			Help:      "Side effects emitted by chat turns",
		}, []string{"type", "status"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "botdesk",
			Subsystem: "chat",
			Name:      "turn_latency_seconds",
			Help:      "End to end latency of a chat turn",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		stateConflict: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "botdesk",
			Subsystem: "chat",
			Name:      "state_conflicts_total",
			Help:      "Conversation state saves rejected by a concurrent writer",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.guardedTotal, m.sideEffects, m.turnLatency, m.stateConflict)
	return m
}

func (m *ChatMetrics) ObserveTurn(intent, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(intent, outcome).Inc()
	m.turnLatency.WithLabelValues(outcome).Observe(seconds)
}

func (m *ChatMetrics) ObserveLowSignal(reason string) {
	if m == nil {
		return
	}
	m.guardedTotal.WithLabelValues(reason).Inc()
}

func (m *ChatMetrics) ObserveSideEffect(kind string, delivered bool) {
	if m == nil {
		return
	}
	status := "published"
	if !delivered {
		status = "failed"
	}
	m.sideEffects.WithLabelValues(kind, status).Inc()
}

func (m *ChatMetrics) ObserveStateConflict() {
	if m == nil {
		return
	}
	m.stateConflict.Inc()
}
