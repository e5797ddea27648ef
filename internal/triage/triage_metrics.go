package triage

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the intake subsystem.
type Metrics struct {
	SessionsTotal           *prometheus.CounterVec
	SessionDuration         *prometheus.HistogramVec
	SessionTurns            prometheus.Histogram
	ClassificationsBySource *prometheus.CounterVec
	ReviewFlagsTotal        prometheus.Counter
	AssignmentsTotal        *prometheus.CounterVec
	RetrievalHits           prometheus.Histogram
	RetrievalDuration       prometheus.Histogram
	LLMCallsTotal           prometheus.Counter
	LLMTokensIn             prometheus.Counter
	LLMTokensOut            prometheus.Counter
	LLMDuration             prometheus.Histogram
}

// NewMetrics registers and returns intake metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "doula_sessions_total",
			Help: "Completed intake sessions by final urgency.",
		}, []string{"urgency"}),
		SessionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "doula_session_duration_seconds",
			Help:    "Wall-clock duration of completed sessions in seconds.",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10s .. ~2.8h
		}, []string{"urgency"}),
		SessionTurns: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "doula_session_turns",
			Help:    "Transcript turns per completed session.",
			Buckets: prometheus.LinearBuckets(2, 2, 15), // 2 .. 30
		}),
		ClassificationsBySource: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "doula_classifications_total",
			Help: "Classifications by producing layer (rule, llm, fallback).",
		}, []string{"source"}),
		ReviewFlagsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "doula_review_flags_total",
			Help: "Sessions flagged for human review.",
		}),
		AssignmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "doula_assignments_total",
			Help: "Physician assignments by outcome.",
		}, []string{"outcome"}),
		RetrievalHits: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "doula_retrieval_hits",
			Help:    "Handbook passages returned per retrieval.",
			Buckets: prometheus.LinearBuckets(0, 1, 6), // 0 .. 5
		}),
		RetrievalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "doula_retrieval_duration_seconds",
			Help:    "Duration of handbook retrievals in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 8), // 50ms .. ~6.4s
		}),
		LLMCallsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "doula_llm_calls_total",
			Help: "Total LLM provider calls.",
		}),
		LLMTokensIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "doula_llm_tokens_input_total",
			Help: "Total LLM input tokens consumed.",
		}),
		LLMTokensOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "doula_llm_tokens_output_total",
			Help: "Total LLM output tokens consumed.",
		}),
		LLMDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "doula_llm_call_duration_seconds",
			Help:    "Duration of individual LLM calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s .. ~64s
		}),
	}

	reg.MustRegister(
		m.SessionsTotal,
		m.SessionDuration,
		m.SessionTurns,
		m.ClassificationsBySource,
		m.ReviewFlagsTotal,
		m.AssignmentsTotal,
		m.RetrievalHits,
		m.RetrievalDuration,
		m.LLMCallsTotal,
		m.LLMTokensIn,
		m.LLMTokensOut,
		m.LLMDuration,
	)

	return m
}

// Hooks returns an EngineHooks that increments the corresponding metrics.
func (m *Metrics) Hooks() EngineHooks {
	return EngineHooks{
		OnLLMCall: func(inputTokens, outputTokens int, duration float64) {
			m.LLMCallsTotal.Inc()
			m.LLMTokensIn.Add(float64(inputTokens))
			m.LLMTokensOut.Add(float64(outputTokens))
			m.LLMDuration.Observe(duration)
		},
		OnClassify: func(source string) {
			m.ClassificationsBySource.WithLabelValues(source).Inc()
		},
		OnRetrieve: func(hits int, duration float64) {
			m.RetrievalHits.Observe(float64(hits))
			m.RetrievalDuration.Observe(duration)
		},
		OnAssign: func(outcome string) {
			m.AssignmentsTotal.WithLabelValues(outcome).Inc()
		},
		OnComplete: func(e *CompleteEvent) {
			m.SessionsTotal.WithLabelValues(string(e.Urgency)).Inc()
			m.SessionDuration.WithLabelValues(string(e.Urgency)).Observe(e.Duration)
			m.SessionTurns.Observe(float64(e.Turns))
			if e.Review {
				m.ReviewFlagsTotal.Inc()
			}
		},
	}
}
